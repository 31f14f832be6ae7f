// Package frame implements the Frame Packager and Video Source: the
// tools that turn a concatenated MJPEG byte stream into a sequence of
// length-prefixed frame records on disk, and read that sequence back.
package frame

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// MaxRecordLen is the largest frame length a single prefixed record can
// carry (5 ASCII decimal digits). Frames longer than this are split into
// successive records; the Video Source does not re-join them (see
// Source.NextFrame).
const MaxRecordLen = 99999

// PrefixLen is the width of the ASCII decimal length prefix on every
// record.
const PrefixLen = 5

// Packager scans a byte buffer for JPEG frames and writes them out as
// length-prefixed records.
type Packager struct {
	logger *zap.Logger
}

// NewPackager constructs a Packager.
func NewPackager(logger *zap.Logger) *Packager {
	return &Packager{logger: logger}
}

// findJPEGs scans data left to right for SOI (0xFFD8)/EOI (0xFFD9) pairs
// and returns each inclusive [SOI, EOI] range as a frame. Trailing bytes
// after the last recognized EOI, or a dangling SOI with no following
// EOI, are discarded silently.
func findJPEGs(data []byte) [][]byte {
	var frames [][]byte
	i := 0
	n := len(data)

	for {
		for i+1 < n && !(data[i] == 0xFF && data[i+1] == 0xD8) {
			i++
		}
		if i+1 >= n {
			break
		}
		start := i
		i += 2

		for i+1 < n && !(data[i] == 0xFF && data[i+1] == 0xD9) {
			i++
		}
		if i+1 >= n {
			break
		}

		end := i + 2
		i = end

		frames = append(frames, data[start:end])
	}

	return frames
}

// Write scans data for JPEG frames and writes each as one or more
// length-prefixed records to out. It returns the number of records
// written. A frame longer than MaxRecordLen bytes is split into
// successive MaxRecordLen-byte records, in order; the Video Source does
// not reassemble these splits, so a very large source frame arrives at
// playback as several back-to-back "frames" by design (see spec note on
// the 99999-byte split — this is intentional, not a bug to be patched
// here).
//
// Write fails only on an I/O error writing to out; a buffer containing
// no recognizable frames yields zero records and a nil error.
func (p *Packager) Write(data []byte, out io.Writer) (int, error) {
	frames := findJPEGs(data)

	count := 0
	for _, f := range frames {
		n, err := writeFrame(f, out)
		if err != nil {
			return count, fmt.Errorf("frame: write record: %w", err)
		}
		count += n
	}

	if p.logger != nil {
		p.logger.Info("packaged frames",
			zap.Int("jpeg_frames", len(frames)),
			zap.Int("records_written", count))
	}

	return count, nil
}

// writeFrame writes one JPEG frame as one or more prefixed records and
// returns the number of records it took.
func writeFrame(f []byte, out io.Writer) (int, error) {
	if len(f) <= MaxRecordLen {
		if err := writeRecord(f, out); err != nil {
			return 0, err
		}
		return 1, nil
	}

	count := 0
	for pos := 0; pos < len(f); pos += MaxRecordLen {
		end := pos + MaxRecordLen
		if end > len(f) {
			end = len(f)
		}
		if err := writeRecord(f[pos:end], out); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func writeRecord(chunk []byte, out io.Writer) error {
	prefix := []byte(fmt.Sprintf("%0*d", PrefixLen, len(chunk)))
	if _, err := out.Write(prefix); err != nil {
		return err
	}
	if _, err := out.Write(chunk); err != nil {
		return err
	}
	return nil
}
