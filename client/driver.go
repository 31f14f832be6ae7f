package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// teardownReplyTimeout bounds how long Teardown waits for the server's
// reply before closing the sockets anyway.
const teardownReplyTimeout = 2 * time.Second

// State is the client's position in the control state machine (spec.md §4.5).
type State int

const (
	StateInit State = iota
	StateReady
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// Driver is the control-plane driver: it issues SETUP/PLAY/PAUSE/
// TEARDOWN over a reliable stream, tracks client state, and owns the
// datagram receiver and paced renderer it starts in response to replies.
type Driver struct {
	logger *zap.Logger
	conn   net.Conn
	reader *bufio.Reader

	mu        sync.Mutex
	state     State
	cseq      int
	sessionID uint32
	filename  string

	localPort int
	fps       int
	jitterMs  int

	udpConn  *net.UDPConn
	buffer   *JitterBuffer
	receiver *Receiver
	renderer *Renderer

	epochCancel context.CancelFunc
	recvCancel  context.CancelFunc
	wg          sync.WaitGroup

	frameRenderer FrameRenderer
}

// NewDriver wraps a dialed control connection. localPort is the local
// UDP port the receiver binds to on a successful SETUP; fps and
// jitterMs configure the renderer and jitter buffer (spec.md §6).
func NewDriver(conn net.Conn, localPort, fps, jitterMs int, renderer FrameRenderer, logger *zap.Logger) *Driver {
	return &Driver{
		logger:        logger,
		conn:          conn,
		reader:        bufio.NewReader(conn),
		state:         StateInit,
		localPort:     localPort,
		fps:           fps,
		jitterMs:      jitterMs,
		frameRenderer: renderer,
	}
}

// State returns the driver's current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) nextCSeq() int {
	d.cseq++
	return d.cseq
}

// applySessionID implements the session-id latch rule: the first
// non-zero Session value seen is latched; later replies bearing a
// different value for the same request sequence are ignored.
func (d *Driver) applySessionID(id uint32) bool {
	if id == 0 {
		return true
	}
	if d.sessionID == 0 {
		d.sessionID = id
		return true
	}
	return id == d.sessionID
}

func (d *Driver) sendRequest(ctx context.Context, raw string) (*Reply, error) {
	if _, err := d.conn.Write([]byte(raw)); err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}
	reply, err := ReadReply(d.reader)
	if err != nil {
		return nil, fmt.Errorf("client: read reply: %w", err)
	}
	return reply, nil
}

// Setup issues SETUP for filename and, on a 200 reply, binds the
// datagram socket and starts the receiver. State is left unchanged on
// failure or a non-200 reply.
func (d *Driver) Setup(ctx context.Context, filename string) error {
	d.mu.Lock()
	if d.state != StateInit {
		d.mu.Unlock()
		return nil
	}
	cseq := d.nextCSeq()
	d.mu.Unlock()

	raw := fmt.Sprintf("SETUP %s RTSP/1.0\r\nCSeq: %d\r\nTransport: RTP/UDP; client_port=%d\r\n\r\n",
		filename, cseq, d.localPort)

	reply, err := d.sendRequest(ctx, raw)
	if err != nil {
		return err
	}
	if reply.StatusCode != 200 {
		d.logger.Warn("setup rejected", zap.Int("status", reply.StatusCode))
		return nil
	}

	d.mu.Lock()
	if !d.applySessionID(reply.SessionID) {
		d.mu.Unlock()
		d.logger.Warn("setup reply session mismatch, ignored", zap.Uint32("got", reply.SessionID))
		return nil
	}
	d.filename = filename
	d.mu.Unlock()

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: d.localPort})
	if err != nil {
		return fmt.Errorf("client: bind datagram port: %w", err)
	}

	jitterThreshold := (d.jitterMs * d.fps) / 1000
	if jitterThreshold < 1 {
		jitterThreshold = 1
	}

	d.mu.Lock()
	d.udpConn = udpConn
	d.buffer = NewJitterBuffer(30, jitterThreshold)
	d.receiver = NewReceiver(udpConn, d.buffer, d.logger)
	recvCtx, recvCancel := context.WithCancel(ctx)
	d.recvCancel = recvCancel
	d.state = StateReady
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.receiver.Run(recvCtx)
	}()

	d.logger.Info("setup complete", zap.Uint32("session_id", d.sessionID))
	return nil
}

// Play issues PLAY and, on a 200 reply, starts the renderer.
func (d *Driver) Play(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateReady {
		d.mu.Unlock()
		return nil
	}
	cseq := d.nextCSeq()
	sessionID := d.sessionID
	d.mu.Unlock()

	raw := fmt.Sprintf("PLAY %s RTSP/1.0\r\nCSeq: %d\r\nSession: %d\r\n\r\n", d.filename, cseq, sessionID)
	reply, err := d.sendRequest(ctx, raw)
	if err != nil {
		return err
	}
	if reply.StatusCode != 200 {
		return nil
	}

	d.mu.Lock()
	if !d.applySessionID(reply.SessionID) {
		d.mu.Unlock()
		return nil
	}

	renderer := d.frameRenderer
	if renderer == nil {
		renderer = NewCacheFileRenderer(d.sessionID)
	}
	d.renderer = NewRenderer(d.buffer, renderer, d.fps, d.logger)
	epochCtx, epochCancel := context.WithCancel(ctx)
	d.epochCancel = epochCancel
	d.state = StatePlaying
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.renderer.Run(epochCtx)
	}()

	d.logger.Info("play started", zap.Uint32("session_id", sessionID))
	return nil
}

// Pause issues PAUSE and, on a 200 reply, ends the renderer's current epoch.
func (d *Driver) Pause(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StatePlaying {
		d.mu.Unlock()
		return nil
	}
	cseq := d.nextCSeq()
	sessionID := d.sessionID
	epochCancel := d.epochCancel
	d.mu.Unlock()

	raw := fmt.Sprintf("PAUSE %s RTSP/1.0\r\nCSeq: %d\r\nSession: %d\r\n\r\n", d.filename, cseq, sessionID)
	reply, err := d.sendRequest(ctx, raw)
	if err != nil {
		return err
	}
	if reply.StatusCode != 200 {
		return nil
	}

	if epochCancel != nil {
		epochCancel()
	}

	d.mu.Lock()
	d.state = StateReady
	d.mu.Unlock()

	d.logger.Info("paused", zap.Uint32("session_id", sessionID))
	return nil
}

// Teardown issues TEARDOWN and closes all sockets regardless of whether
// a reply is ever received — teardown is best-effort (spec.md §7).
func (d *Driver) Teardown(ctx context.Context) error {
	d.mu.Lock()
	if d.state == StateInit {
		d.mu.Unlock()
		return nil
	}
	cseq := d.nextCSeq()
	sessionID := d.sessionID
	epochCancel := d.epochCancel
	recvCancel := d.recvCancel
	udpConn := d.udpConn
	d.mu.Unlock()

	raw := fmt.Sprintf("TEARDOWN %s RTSP/1.0\r\nCSeq: %d\r\nSession: %d\r\n\r\n", d.filename, cseq, sessionID)
	_ = d.conn.SetReadDeadline(time.Now().Add(teardownReplyTimeout))
	_, _ = d.sendRequest(ctx, raw)

	if epochCancel != nil {
		epochCancel()
	}
	if recvCancel != nil {
		recvCancel()
	}
	d.wg.Wait()

	if udpConn != nil {
		udpConn.Close()
	}
	d.conn.Close()

	d.mu.Lock()
	d.udpConn = nil
	d.state = StateInit
	d.mu.Unlock()

	d.logger.Info("torn down", zap.Uint32("session_id", sessionID))
	return nil
}
