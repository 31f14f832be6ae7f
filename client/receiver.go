package client

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/rtp"
)

// reassemblyTimeout is the age at which an incomplete frame is
// discarded (spec.md §3, §7 ReassemblyTimeout).
const reassemblyTimeout = 2 * time.Second

// readTimeout bounds each blocking receive so the purge sweep and
// cancellation checks run regularly even with no traffic.
const readTimeout = 500 * time.Millisecond

// reassemblyEntry tracks the chunks received so far for one in-flight
// frame_id.
type reassemblyEntry struct {
	total     uint16
	chunks    map[uint16][]byte
	firstSeen time.Time
	timestamp uint32
}

// Receiver is the datagram receiver + reassembler: it decodes incoming
// RTP-like packets, reassembles fragmented frames, and pushes completed
// frames into a JitterBuffer.
type Receiver struct {
	conn   *net.UDPConn
	buffer *JitterBuffer
	logger *zap.Logger

	mu      sync.Mutex
	entries map[uint32]*reassemblyEntry

	wg sync.WaitGroup
}

// NewReceiver constructs a Receiver reading from conn and pushing
// completed frames into buffer.
func NewReceiver(conn *net.UDPConn, buffer *JitterBuffer, logger *zap.Logger) *Receiver {
	return &Receiver{
		conn:    conn,
		buffer:  buffer,
		logger:  logger,
		entries: make(map[uint32]*reassemblyEntry),
	}
}

// Run reads datagrams until ctx is cancelled. It is meant to run in its
// own goroutine; callers should track completion with a WaitGroup if
// needed.
func (r *Receiver) Run(ctx context.Context) {
	buf := make([]byte, 65536)
	lastPurge := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastPurge) >= readTimeout {
			r.purgeStale()
			lastPurge = time.Now()
		}

		r.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				r.logger.Debug("datagram read error", zap.Error(err))
				continue
			}
		}

		r.handleDatagram(buf[:n])
	}
}

func (r *Receiver) handleDatagram(datagram []byte) {
	pkt, err := rtp.Decode(datagram)
	if err != nil {
		r.logger.Debug("malformed packet discarded", zap.Error(err))
		return
	}

	payload := pkt.Payload()
	if len(payload) < rtp.FragmentHeaderSize {
		// Legacy whole-frame payload: no fragment sub-header.
		r.buffer.Push(pkt.TimestampValue(), append([]byte(nil), payload...))
		return
	}

	fragHdr, chunk, err := rtp.DecodeFragmentHeader(payload)
	if err != nil {
		r.logger.Debug("malformed fragment header discarded", zap.Error(err))
		return
	}

	r.mu.Lock()
	entry, ok := r.entries[fragHdr.FrameID]
	if !ok {
		entry = &reassemblyEntry{
			total:     fragHdr.Total,
			chunks:    make(map[uint16][]byte),
			firstSeen: time.Now(),
			timestamp: pkt.TimestampValue(),
		}
		r.entries[fragHdr.FrameID] = entry
	}

	if _, dup := entry.chunks[fragHdr.FragmentIndex]; dup {
		r.mu.Unlock()
		return
	}
	entry.chunks[fragHdr.FragmentIndex] = append([]byte(nil), chunk...)

	complete := len(entry.chunks) == int(entry.total)
	if complete {
		delete(r.entries, fragHdr.FrameID)
	}
	r.mu.Unlock()

	if complete {
		frameBytes := make([]byte, 0, len(entry.chunks)*len(chunk))
		for i := uint16(0); i < entry.total; i++ {
			frameBytes = append(frameBytes, entry.chunks[i]...)
		}
		r.buffer.Push(entry.timestamp, frameBytes)
	}
}

func (r *Receiver) purgeStale() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		if now.Sub(entry.firstSeen) > reassemblyTimeout {
			delete(r.entries, id)
		}
	}
}

// PendingCount returns the number of in-flight reassembly entries, for
// diagnostics and the dashboard.
func (r *Receiver) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
