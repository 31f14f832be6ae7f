// Package session implements the server-side Session Engine: the
// per-client state machine driven by the RTSP-like control protocol,
// and the emitter goroutine that fragments and paces frames onto a
// client's UDP socket once PLAY has been issued.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/frame"
)

// State is a client session's position in the INIT/READY/PLAYING state
// machine (spec.md §4.4).
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

// DefaultFPS is used whenever a session's frame rate is unset, zero, or
// could not be parsed from a SETUP request's optional FPS header.
const DefaultFPS = 25

// MTU, RTPHeaderSize, and FragmentHeaderSize bound the payload each
// emitted datagram can carry (spec.md §4.4).
const (
	MTU               = 1400
	RTPHeaderSize     = 12
	FragmentHeaderSize = 8
	PayloadPerPacket  = MTU - RTPHeaderSize - FragmentHeaderSize
)

// OpenSourceFunc opens the Video Source for a SETUP request's named
// resource. Session depends on this function, not on the frame package
// directly, so callers can point SETUP at any resolution scheme.
type OpenSourceFunc func(filename string) (*frame.Source, error)

// ErrFileNotFound is returned by Setup when OpenSourceFunc fails; the
// caller (the rtsp package) replies 404 and the session stays in INIT.
type ErrFileNotFound struct {
	Filename string
	Err      error
}

func (e *ErrFileNotFound) Error() string {
	return fmt.Sprintf("session: file not found: %s: %v", e.Filename, e.Err)
}

func (e *ErrFileNotFound) Unwrap() error { return e.Err }

// ErrWrongState is returned by Setup/Play/Pause when the request
// arrives while the session is not in the state that request expects.
// Per spec.md:85, such requests are silently ignored at the session
// level; the rtsp package uses this sentinel to withhold the reply
// entirely rather than send a disguised 200 OK, matching the original
// server's nested-if reply placement (ServerWorker.py).
var ErrWrongState = errors.New("session: request not valid in current state")

// Session holds one client's server-side state: its position in the
// state machine, its Video Source, its datagram transport, and the
// counters the emitter advances while PLAYING.
type Session struct {
	ID     uint32
	logger *zap.Logger

	mu    sync.Mutex
	state State

	source   *frame.Source
	fps      int
	clientIP string
	clientPt int

	frameID uint32
	rtpSeq  uint16

	conn      *net.UDPConn
	destAddr  *net.UDPAddr
	stopEmit  context.CancelFunc
	emitterWG sync.WaitGroup

	packetsSent uint64
	bytesSent   uint64
}

// NewSessionID allocates a random 6-digit session identifier, matching
// the original server's randint(100000, 999999).
func NewSessionID() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return 0, fmt.Errorf("session: allocate id: %w", err)
	}
	return uint32(n.Int64()) + 100000, nil
}

// NewSession constructs a session in the INIT state.
func NewSession(id uint32, logger *zap.Logger) *Session {
	return &Session{
		ID:     id,
		logger: logger.With(zap.Uint32("session_id", id)),
		state:  StateInit,
		fps:    DefaultFPS,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Setup handles a SETUP request: INIT->READY on success, INIT->INIT
// (reply 404, no session_id change) if the file cannot be opened.
// Requests outside INIT return ErrWrongState and get no reply at all,
// per spec.md's state table.
func (s *Session) Setup(filename string, open OpenSourceFunc, clientIP string, clientPort int, fps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInit {
		return ErrWrongState
	}

	src, err := open(filename)
	if err != nil {
		return &ErrFileNotFound{Filename: filename, Err: err}
	}

	s.source = src
	s.clientIP = clientIP
	s.clientPt = clientPort
	if fps > 0 {
		s.fps = fps
	}
	s.state = StateReady

	s.logger.Info("session ready",
		zap.String("filename", filename),
		zap.String("client_ip", clientIP),
		zap.Int("client_port", clientPort),
		zap.Int("fps", s.fps))

	return nil
}

// Play handles a PLAY request: READY->PLAYING. It opens the datagram
// socket (reusing the one left open by an earlier PAUSE), resets the
// per-session counters, and starts the emitter.
// Requests outside READY return ErrWrongState and get no reply at all.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrWrongState
	}

	destAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.clientIP, s.clientPt))
	if err != nil {
		return fmt.Errorf("session: resolve client datagram address: %w", err)
	}

	conn := s.conn
	if conn == nil {
		conn, err = net.ListenUDP("udp", nil)
		if err != nil {
			return fmt.Errorf("session: open datagram socket: %w", err)
		}
	}

	s.conn = conn
	s.destAddr = destAddr
	s.frameID = 0
	s.rtpSeq = 0
	atomic.StoreUint64(&s.packetsSent, 0)
	atomic.StoreUint64(&s.bytesSent, 0)

	emitCtx, cancel := context.WithCancel(ctx)
	s.stopEmit = cancel

	s.emitterWG.Add(1)
	go s.emitterLoop(emitCtx)

	s.state = StatePlaying
	s.logger.Info("session playing", zap.String("dest", destAddr.String()))

	return nil
}

// Pause handles a PAUSE request: PLAYING->READY, stopping the emitter
// but leaving the Video Source and datagram socket intact so PLAY can
// resume. Requests outside PLAYING return ErrWrongState and get no
// reply at all.
func (s *Session) Pause() error {
	s.mu.Lock()
	stop := s.stopEmit
	wasPlaying := s.state == StatePlaying
	s.mu.Unlock()

	if !wasPlaying {
		return ErrWrongState
	}

	if stop != nil {
		stop()
	}
	s.emitterWG.Wait()

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	s.logger.Info("session paused")
	return nil
}

// Teardown handles a TEARDOWN request from READY or PLAYING: stops the
// emitter if running, closes the datagram socket, and returns to INIT.
// It is idempotent and never fails.
func (s *Session) Teardown() error {
	s.mu.Lock()
	stop := s.stopEmit
	conn := s.conn
	wasActive := s.state == StateReady || s.state == StatePlaying
	s.mu.Unlock()

	if !wasActive {
		return nil
	}

	if stop != nil {
		stop()
	}
	s.emitterWG.Wait()

	if conn != nil {
		conn.Close()
	}

	if s.source != nil {
		s.source.Close()
	}

	s.mu.Lock()
	s.conn = nil
	s.stopEmit = nil
	s.source = nil
	s.state = StateInit
	s.mu.Unlock()

	s.logger.Info("session torn down")
	return nil
}

// Report logs a REPORT request's body. It never changes state and
// never fails the reply; per spec.md's state table it is accepted in
// any state.
func (s *Session) Report(body []string) {
	for _, line := range body {
		if line == "" {
			continue
		}
		s.logger.Info("report", zap.String("line", line))
	}
}

// Stats returns the packet/byte counters the emitter has accumulated.
func (s *Session) Stats() (packets, bytesSent uint64) {
	return atomic.LoadUint64(&s.packetsSent), atomic.LoadUint64(&s.bytesSent)
}

// sleepInterruptible sleeps for d or until ctx is cancelled, whichever
// comes first. It returns false if ctx was cancelled.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
