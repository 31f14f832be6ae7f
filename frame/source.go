package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// ErrEndOfStream is returned by Source.NextFrame once the prefixed file
// is exhausted, including when a record's prefix or body is cut short.
var ErrEndOfStream = errors.New("frame: end of stream")

// Source reads successive frames from a prefixed frame file written by
// Packager. It reconstructs each record as exactly one frame-like unit;
// it does not re-merge records that the Packager split because the
// source frame exceeded MaxRecordLen bytes (see Packager.Write).
type Source struct {
	logger *zap.Logger
	file   *os.File
	reader *bufio.Reader

	recordsRead uint64
}

// OpenSource opens path as a prefixed frame file for sequential reading.
func OpenSource(path string, logger *zap.Logger) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("frame: open source: %w", err)
	}

	return &Source{
		logger: logger,
		file:   f,
		reader: bufio.NewReader(f),
	}, nil
}

// NextFrame reads one prefixed record: a 5-ASCII-digit length L followed
// by exactly L bytes. A short read anywhere in the record — including an
// immediate EOF before the length prefix — is reported as ErrEndOfStream.
func (s *Source) NextFrame() ([]byte, error) {
	prefix := make([]byte, PrefixLen)
	if _, err := io.ReadFull(s.reader, prefix); err != nil {
		return nil, ErrEndOfStream
	}

	l, err := strconv.Atoi(string(prefix))
	if err != nil {
		return nil, ErrEndOfStream
	}

	body := make([]byte, l)
	if l > 0 {
		if _, err := io.ReadFull(s.reader, body); err != nil {
			return nil, ErrEndOfStream
		}
	}

	s.recordsRead++
	return body, nil
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.logger != nil {
		s.logger.Info("video source closed", zap.Uint64("records_read", s.recordsRead))
	}
	return s.file.Close()
}
