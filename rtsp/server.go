package rtsp

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/session"
)

// Server accepts control-plane connections and runs one serve loop per
// client, dispatching requests to the session package's state machine.
type Server struct {
	logger     *zap.Logger
	manager    *session.Manager
	openSource session.OpenSourceFunc

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer constructs a control-plane server; Start binds it. manager
// tracks per-client Session state; open resolves a SETUP request's
// filename to a Video Source.
func NewServer(manager *session.Manager, open session.OpenSourceFunc, logger *zap.Logger) *Server {
	return &Server{
		logger:     logger,
		manager:    manager,
		openSource: open,
	}
}

// Start listens on addr and begins accepting connections in the
// background.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("rtsp server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("accept failed", zap.Error(err))
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener and waits for every open connection's serve
// loop to end, which happens when that client disconnects.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	remoteIP, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		remoteIP = conn.RemoteAddr().String()
	}

	logger := s.logger.With(zap.String("client", conn.RemoteAddr().String()))
	reader := bufio.NewReader(conn)

	var sess *session.Session

	for {
		req, err := ReadRequest(reader)
		if err != nil {
			logger.Debug("connection closed", zap.Error(err))
			if sess != nil {
				s.manager.Remove(sess.ID)
			}
			return
		}

		logger.Info("request", zap.String("method", req.Method), zap.String("filename", req.Filename), zap.Int("cseq", req.CSeq))

		switch req.Method {
		case "SETUP":
			if sess == nil {
				sess, err = s.manager.Create()
				if err != nil {
					logger.Error("create session failed", zap.Error(err))
					writeReply(conn, ServerError500(req.CSeq))
					continue
				}
			}

			clientPort := ClientPort(req.Header("Transport"))
			fps := FPS(req.Header("FPS"))

			switch err := sess.Setup(req.Filename, s.openSource, remoteIP, clientPort, fps); {
			case errors.Is(err, session.ErrWrongState):
				logger.Debug("setup ignored, wrong state", zap.String("state", sess.State().String()))
				continue
			case err != nil:
				logger.Warn("setup failed", zap.Error(err))
				writeReply(conn, NotFound404(req.CSeq))
				continue
			}
			writeReply(conn, OK200(req.CSeq, sess.ID))

		case "PLAY":
			if sess == nil {
				logger.Debug("play ignored, no session")
				continue
			}
			switch err := sess.Play(s.ctx); {
			case errors.Is(err, session.ErrWrongState):
				logger.Debug("play ignored, wrong state", zap.String("state", sess.State().String()))
				continue
			case err != nil:
				logger.Error("play failed", zap.Error(err))
				writeReply(conn, ServerError500(req.CSeq))
				continue
			}
			writeReply(conn, OK200(req.CSeq, sess.ID))

		case "PAUSE":
			if sess == nil {
				logger.Debug("pause ignored, no session")
				continue
			}
			if err := sess.Pause(); errors.Is(err, session.ErrWrongState) {
				logger.Debug("pause ignored, wrong state", zap.String("state", sess.State().String()))
				continue
			}
			writeReply(conn, OK200(req.CSeq, sess.ID))

		case "TEARDOWN":
			if sess == nil {
				writeReply(conn, ServerError500(req.CSeq))
				continue
			}
			id := sess.ID
			s.manager.Remove(id)
			writeReply(conn, OK200(req.CSeq, id))

		case "REPORT":
			if sess != nil {
				sess.Report(req.Body)
			}
			sid := uint32(0)
			if sess != nil {
				sid = sess.ID
			}
			writeReply(conn, OK200(req.CSeq, sid))

		default:
			logger.Warn("unexpected method", zap.String("method", req.Method))
		}
	}
}

func writeReply(conn net.Conn, reply string) {
	conn.Write([]byte(reply))
}
