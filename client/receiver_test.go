package client

import (
	"bytes"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"mjpeg-rtsp-streamer/rtp"
)

func udpPair(t *testing.T) (server, client *net.UDPConn) {
	t.Helper()
	s, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen server: %v", err)
	}
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	return s, c
}

func TestReceiverReassemblesInOrder(t *testing.T) {
	logger := zaptest.NewLogger(t)
	serverConn, clientConn := udpPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	buffer := NewJitterBuffer(10, 1)
	recv := NewReceiver(clientConn, buffer, logger)

	chunks := [][]byte{[]byte("AAA"), []byte("BBB"), []byte("CCC")}
	total := uint16(len(chunks))
	for i, chunk := range chunks {
		fragHdr := rtp.EncodeFragmentHeader(rtp.FragmentHeader{FrameID: 7, FragmentIndex: uint16(i), Total: total})
		payload := append(fragHdr, chunk...)
		pkt := rtp.Encode(2, 0, 0, 0, uint16(i), i == len(chunks)-1, rtp.PayloadTypeMJPEG, 0, payload, 120)
		if _, err := serverConn.WriteToUDP(pkt, clientConn.LocalAddr().(*net.UDPAddr)); err != nil {
			t.Fatalf("send fragment %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && buffer.Len() == 0 {
		recv.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		buf := make([]byte, 2048)
		n, _, err := recv.conn.ReadFromUDP(buf)
		if err == nil {
			recv.handleDatagram(buf[:n])
		}
	}

	data, ts, ok := buffer.Pop()
	if !ok {
		t.Fatal("expected a completed frame in the jitter buffer")
	}
	if ts != 120 {
		t.Errorf("timestamp = %d, want 120", ts)
	}
	want := bytes.Join(chunks, nil)
	if !bytes.Equal(data, want) {
		t.Errorf("reassembled = %q, want %q", data, want)
	}
}

func TestReceiverReordersFragments(t *testing.T) {
	logger := zaptest.NewLogger(t)
	serverConn, clientConn := udpPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	buffer := NewJitterBuffer(10, 1)
	recv := NewReceiver(clientConn, buffer, logger)

	order := []int{2, 0, 1}
	chunks := [][]byte{[]byte("11"), []byte("22"), []byte("33")}
	for _, i := range order {
		fragHdr := rtp.EncodeFragmentHeader(rtp.FragmentHeader{FrameID: 7, FragmentIndex: uint16(i), Total: 3})
		payload := append(fragHdr, chunks[i]...)
		pkt := rtp.Encode(2, 0, 0, 0, uint16(i), i == 2, rtp.PayloadTypeMJPEG, 0, payload, 0)
		serverConn.WriteToUDP(pkt, clientConn.LocalAddr().(*net.UDPAddr))

		recv.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 2048)
		n, _, err := recv.conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read fragment: %v", err)
		}
		recv.handleDatagram(buf[:n])
	}

	data, _, ok := buffer.Pop()
	if !ok {
		t.Fatal("expected reassembly to complete on receiving the final missing fragment")
	}
	want := bytes.Join(chunks, nil)
	if !bytes.Equal(data, want) {
		t.Errorf("reassembled = %q, want %q (order must be index order, not arrival order)", data, want)
	}
}

func TestReceiverLegacyWholeFramePayload(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, clientConn := udpPair(t)
	defer clientConn.Close()

	buffer := NewJitterBuffer(10, 1)
	recv := NewReceiver(clientConn, buffer, logger)

	pkt := rtp.Encode(2, 0, 0, 0, 0, true, rtp.PayloadTypeMJPEG, 0, []byte("abc"), 55)
	recv.handleDatagram(pkt)

	data, ts, ok := buffer.Pop()
	if !ok {
		t.Fatal("expected legacy payload to be pushed directly")
	}
	if ts != 55 || !bytes.Equal(data, []byte("abc")) {
		t.Errorf("got (%q, %d), want (\"abc\", 55)", data, ts)
	}
}

func TestReceiverDuplicateFragmentDiscarded(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, clientConn := udpPair(t)
	defer clientConn.Close()

	buffer := NewJitterBuffer(10, 1)
	recv := NewReceiver(clientConn, buffer, logger)

	fragHdr := rtp.EncodeFragmentHeader(rtp.FragmentHeader{FrameID: 1, FragmentIndex: 0, Total: 2})
	payload := append(fragHdr, []byte("a")...)
	pkt := rtp.Encode(2, 0, 0, 0, 0, false, rtp.PayloadTypeMJPEG, 0, payload, 0)

	recv.handleDatagram(pkt)
	recv.handleDatagram(pkt) // duplicate of fragment 0

	if recv.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (duplicate must not grow state beyond one entry)", recv.PendingCount())
	}
}

func TestReceiverPurgesStaleEntries(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, clientConn := udpPair(t)
	defer clientConn.Close()

	buffer := NewJitterBuffer(10, 1)
	recv := NewReceiver(clientConn, buffer, logger)

	fragHdr := rtp.EncodeFragmentHeader(rtp.FragmentHeader{FrameID: 1, FragmentIndex: 0, Total: 2})
	payload := append(fragHdr, []byte("a")...)
	pkt := rtp.Encode(2, 0, 0, 0, 0, false, rtp.PayloadTypeMJPEG, 0, payload, 0)
	recv.handleDatagram(pkt)

	recv.mu.Lock()
	recv.entries[1].firstSeen = time.Now().Add(-3 * time.Second)
	recv.mu.Unlock()

	recv.purgeStale()

	if recv.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0 after purge", recv.PendingCount())
	}
}
