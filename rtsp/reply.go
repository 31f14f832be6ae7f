package rtsp

import "fmt"

// Reply lines are terminated by \n (not \r\n) from server to client,
// per spec.md §6.

// OK200 formats a success reply carrying the paired request's CSeq and
// the session identifier.
func OK200(cseq int, sessionID uint32) string {
	return fmt.Sprintf("RTSP/1.0 200 OK\nCSeq: %d\nSession: %d", cseq, sessionID)
}

// NotFound404 formats the reply to a SETUP whose named resource could
// not be opened. No Session header is sent: the conservative reading of
// spec.md §9's open question is that a 404 does not also carry a 200.
func NotFound404(cseq int) string {
	return fmt.Sprintf("RTSP/1.0 404 Not Found\nCSeq: %d", cseq)
}

// ServerError500 formats a reply for an internal failure unrelated to a
// missing resource (e.g. the datagram socket could not be opened).
func ServerError500(cseq int) string {
	return fmt.Sprintf("RTSP/1.0 500 Internal Server Error\nCSeq: %d", cseq)
}
