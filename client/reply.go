// Package client implements the Media Client: the control driver,
// datagram receiver, reassembler, jitter buffer, and paced renderer
// described in spec.md §4.5.
package client

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Reply is a parsed control-plane reply from the server.
type Reply struct {
	StatusCode int
	CSeq       int
	SessionID  uint32
}

// ReadReply reads one reply in a single Read, mirroring the original
// client's recv-then-split approach: the server sends a whole reply
// ("RTSP/1.0 200 OK\nCSeq: N\nSession: S") in one write with no
// terminating blank line, so line-by-line framing would block forever
// waiting for a newline that never arrives after the last header.
func ReadReply(r io.Reader) (*Reply, error) {
	buf := make([]byte, 1024)
	n, err := r.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}

	return ParseReply(string(buf[:n]))
}

// ParseReply parses a complete reply text into its status code, CSeq,
// and Session fields. Unparseable lines are ignored (ErrDecodeFailed
// semantics, spec.md §7).
func ParseReply(text string) (*Reply, error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("client: empty reply")
	}

	reply := &Reply{}
	status := strings.TrimSpace(lines[0])
	switch {
	case strings.Contains(status, "200"):
		reply.StatusCode = 200
	case strings.Contains(status, "404"):
		reply.StatusCode = 404
	case strings.Contains(status, "500"):
		reply.StatusCode = 500
	default:
		return nil, fmt.Errorf("client: unparseable status line: %q", status)
	}

	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch {
		case strings.EqualFold(key, "CSeq"):
			if n, e := strconv.Atoi(val); e == nil {
				reply.CSeq = n
			}
		case strings.EqualFold(key, "Session"):
			if n, e := strconv.ParseUint(val, 10, 32); e == nil {
				reply.SessionID = uint32(n)
			}
		}
	}

	return reply, nil
}
