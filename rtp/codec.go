// Package rtp implements encoding and decoding of the fixed-size,
// RTP-like header used to carry fragmented MJPEG frames over UDP.
//
// The wire format follows RFC 3550's 12-byte header layout (version,
// padding, extension, CSRC count, marker, payload type, sequence number,
// timestamp, SSRC) but none of RTP's extension mechanisms, CSRC lists,
// or RTCP companion protocol are implemented. This is a simplified
// dialect sufficient for a single MJPEG stream. The frame-fragmentation
// sub-header that follows this one is encoded and decoded in fragment.go,
// shared by the session emitter and the client receiver.
package rtp

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed RTP-like header length in bytes.
	HeaderSize = 12

	// PayloadTypeMJPEG is the payload type carried by this protocol.
	PayloadTypeMJPEG = 26
)

// MalformedPacket is returned by Decode when the buffer is too short to
// hold a valid header.
type MalformedPacket struct {
	Len int
}

func (e *MalformedPacket) Error() string {
	return fmt.Sprintf("rtp: malformed packet: %d bytes, need at least %d", e.Len, HeaderSize)
}

// Packet is a decoded RTP-like packet. The payload slice aliases the
// buffer passed to Decode.
type Packet struct {
	Version        uint8
	Padding        uint8
	Extension      uint8
	CC             uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32

	payload []byte
}

// Payload returns the bytes following the fixed header.
func (p *Packet) Payload() []byte {
	return p.payload
}

// SeqNum returns the packet's sequence number.
func (p *Packet) SeqNum() uint16 {
	return p.SequenceNumber
}

// TimestampValue returns the packet's timestamp, verbatim from the wire.
func (p *Packet) TimestampValue() uint32 {
	return p.Timestamp
}

// Encode serializes a header plus payload into a single wire buffer.
func Encode(
	version, padding, extension, cc uint8,
	seq uint16,
	marker bool,
	payloadType uint8,
	ssrc uint32,
	payload []byte,
	timestamp uint32,
) []byte {
	buf := make([]byte, HeaderSize+len(payload))

	buf[0] = (version << 6) | (padding << 5) | (extension << 4) | (cc & 0x0F)

	b1 := payloadType & 0x7F
	if marker {
		b1 |= 0x80
	}
	buf[1] = b1

	binary.BigEndian.PutUint16(buf[2:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], timestamp)
	binary.BigEndian.PutUint32(buf[8:12], ssrc)

	copy(buf[HeaderSize:], payload)

	return buf
}

// Decode parses a wire buffer into a Packet. It returns a *MalformedPacket
// error when buf is shorter than HeaderSize; the returned Packet is nil
// in that case.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, &MalformedPacket{Len: len(buf)}
	}

	p := &Packet{
		Version:        buf[0] >> 6,
		Padding:        (buf[0] >> 5) & 0x01,
		Extension:      (buf[0] >> 4) & 0x01,
		CC:             buf[0] & 0x0F,
		Marker:         buf[1]&0x80 != 0,
		PayloadType:    buf[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		Timestamp:      binary.BigEndian.Uint32(buf[4:8]),
		SSRC:           binary.BigEndian.Uint32(buf[8:12]),
	}
	p.payload = buf[HeaderSize:]

	return p, nil
}
