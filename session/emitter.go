package session

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/frame"
	"mjpeg-rtsp-streamer/rtp"
)

// emitterLoop pulls successive frames from the session's Video Source,
// fragments and paces them onto the datagram socket, and exits when
// ctx is cancelled (PAUSE or TEARDOWN). It implements spec.md §4.4's
// emitter algorithm.
func (s *Session) emitterLoop(ctx context.Context) {
	defer s.emitterWG.Done()

	s.logger.Info("emitter started")
	defer s.logger.Info("emitter stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := s.source.NextFrame()
		if err == frame.ErrEndOfStream || len(data) == 0 {
			if !sleepInterruptible(ctx, 10*time.Millisecond) {
				return
			}
			continue
		}
		if err != nil {
			s.logger.Error("video source error", zap.Error(err))
			if !sleepInterruptible(ctx, 10*time.Millisecond) {
				return
			}
			continue
		}

		s.frameID++
		frameID := s.frameID

		fps := s.fps
		if fps <= 0 {
			fps = DefaultFPS
		}
		timestamp := uint32((uint64(frameID-1) * 1000) / uint64(fps))

		total := (len(data) + PayloadPerPacket - 1) / PayloadPerPacket
		if total == 0 {
			total = 1
		}

		for i := 0; i < total; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}

			start := i * PayloadPerPacket
			end := start + PayloadPerPacket
			if end > len(data) {
				end = len(data)
			}
			chunk := data[start:end]

			fragHdr := rtp.EncodeFragmentHeader(rtp.FragmentHeader{
				FrameID:       frameID,
				FragmentIndex: uint16(i),
				Total:         uint16(total),
			})
			payload := append(fragHdr, chunk...)

			marker := i == total-1
			pkt := rtp.Encode(2, 0, 0, 0, s.rtpSeq, marker, rtp.PayloadTypeMJPEG, 0, payload, timestamp)

			if _, err := s.conn.WriteToUDP(pkt, s.destAddr); err != nil {
				s.logger.Error("datagram send failed",
					zap.Error(err),
					zap.Uint32("frame_id", frameID),
					zap.Int("fragment", i))
			} else {
				atomic.AddUint64(&s.packetsSent, 1)
				atomic.AddUint64(&s.bytesSent, uint64(len(pkt)))
			}

			s.rtpSeq++
		}

		if !sleepInterruptible(ctx, time.Duration(float64(time.Second)/float64(fps))) {
			return
		}
	}
}
