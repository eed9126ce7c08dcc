// Package protocol implements the Hazel wire format: the outer packet
// envelope, the inner tagged message records, and the primitive codec
// including packed variable-length integers.
package protocol

import (
	"encoding/binary"
	"errors"
)

// Packet type constants (first byte of every datagram).
const (
	TypeNormal     byte = 0x00 // unreliable, carries message records
	TypeReliable   byte = 0x01 // acked + retransmitted, carries message records
	TypeFragment   byte = 0x05 // reserved upstream, never emitted, ignored on receipt
	TypeHello      byte = 0x08 // connection-establishing first reliable packet
	TypeDisconnect byte = 0x09 // terminal, optionally carries a reason record
	TypeAck        byte = 0x0A // acknowledges a reliable or ping nonce
	TypePing       byte = 0x0C // liveness probe, acked like a reliable packet
)

// Version is the protocol version byte carried in every HELLO. Both sides
// must agree on it; a mismatch is a fatal handshake error.
const Version byte = 0

// ErrTruncated reports a datagram whose header exceeds its body.
var ErrTruncated = errors.New("truncated packet")

// Packet is a decoded outer envelope. Type selects which of the remaining
// fields are meaningful.
type Packet struct {
	Type  byte
	Nonce uint16 // RELIABLE, HELLO, PING, ACK

	Messages []Message // NORMAL, RELIABLE

	Version byte   // HELLO
	Payload []byte // HELLO opaque handshake payload

	Mask byte // ACK selective-ack mask

	// DISCONNECT fields. Forced is the inverse of the on-wire graceful flag.
	Forced     bool
	HasReason  bool
	Reason     byte
	ReasonText string
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func messagesSize(msgs []Message) int {
	size := 0
	for _, m := range msgs {
		size += SizeOfMessage(m)
	}
	return size
}

func writeMessages(b []byte, off int, msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += WriteMessage(b, off+n, m)
	}
	return n
}

// EncodeNormal frames msgs as an unreliable packet.
func EncodeNormal(msgs ...Message) []byte {
	buf := make([]byte, 1+messagesSize(msgs))
	buf[0] = TypeNormal
	writeMessages(buf, 1, msgs)
	return buf
}

// EncodeReliable frames msgs as a reliable packet with the given nonce.
func EncodeReliable(nonce uint16, msgs ...Message) []byte {
	buf := make([]byte, 3+messagesSize(msgs))
	buf[0] = TypeReliable
	binary.BigEndian.PutUint16(buf[1:3], nonce)
	writeMessages(buf, 3, msgs)
	return buf
}

// EncodeHello frames the handshake packet: nonce, version byte, then the
// opaque application payload.
func EncodeHello(nonce uint16, version byte, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	buf[0] = TypeHello
	binary.BigEndian.PutUint16(buf[1:3], nonce)
	buf[3] = version
	copy(buf[4:], payload)
	return buf
}

// EncodePing frames a liveness probe.
func EncodePing(nonce uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = TypePing
	binary.BigEndian.PutUint16(buf[1:3], nonce)
	return buf
}

// EncodeAck frames an acknowledgement for nonce. Bit i-1 of mask is set iff
// nonce-i had not been seen when the ack was computed.
func EncodeAck(nonce uint16, mask byte) []byte {
	buf := make([]byte, 4)
	buf[0] = TypeAck
	binary.BigEndian.PutUint16(buf[1:3], nonce)
	buf[3] = mask
	return buf
}

// EncodeDisconnect frames the minimal forced disconnect.
func EncodeDisconnect() []byte {
	return []byte{TypeDisconnect, 0x00}
}

// EncodeDisconnectReason frames a graceful disconnect carrying a reason code
// and an optional message inside a tag-0 record.
func EncodeDisconnectReason(reason byte, message string) []byte {
	payload := make([]byte, 1+SizeOfString(message))
	payload[0] = reason
	WriteString(payload, 1, message)

	rec := Message{Tag: 0, Payload: payload}
	buf := make([]byte, 2+SizeOfMessage(rec))
	buf[0] = TypeDisconnect
	buf[1] = 0x01 // graceful
	WriteMessage(buf, 2, rec)
	return buf
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode parses one datagram into a Packet. Decoded slices reference data.
//
// A truncated header or a truncated inner record returns an error; the
// connection treats that as a fatal protocol error. Unknown packet types and
// FRAGMENT decode successfully into a Packet the connection ignores.
func Decode(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}

	p := &Packet{Type: data[0]}

	switch data[0] {
	case TypeNormal:
		msgs, err := readMessages(data, 1)
		if err != nil {
			return nil, err
		}
		p.Messages = msgs

	case TypeReliable:
		if len(data) < 3 {
			return nil, ErrTruncated
		}
		p.Nonce = binary.BigEndian.Uint16(data[1:3])
		msgs, err := readMessages(data, 3)
		if err != nil {
			return nil, err
		}
		p.Messages = msgs

	case TypeHello:
		if len(data) < 4 {
			return nil, ErrTruncated
		}
		p.Nonce = binary.BigEndian.Uint16(data[1:3])
		p.Version = data[3]
		p.Payload = data[4:]

	case TypeAck:
		if len(data) < 4 {
			return nil, ErrTruncated
		}
		p.Nonce = binary.BigEndian.Uint16(data[1:3])
		p.Mask = data[3]

	case TypePing:
		if len(data) < 3 {
			return nil, ErrTruncated
		}
		p.Nonce = binary.BigEndian.Uint16(data[1:3])

	case TypeDisconnect:
		decodeDisconnect(data, p)
	}

	return p, nil
}

func readMessages(data []byte, off int) ([]Message, error) {
	var msgs []Message
	for off < len(data) {
		m, n, err := ReadMessage(data, off)
		if err != nil {
			return nil, ErrTruncated
		}
		msgs = append(msgs, m)
		off += n
	}
	return msgs, nil
}

// decodeDisconnect parses the disconnect body. A single-byte packet is a
// forced disconnect; otherwise the second byte is the graceful flag and an
// optional record carries the reason code plus a length-prefixed message.
// A malformed trailer degrades to "no reason"; the connection is going away
// either way.
func decodeDisconnect(data []byte, p *Packet) {
	if len(data) < 2 {
		p.Forced = true
		return
	}
	p.Forced = data[1] == 0

	if len(data) <= 2 {
		return
	}
	rec, _, err := ReadMessage(data, 2)
	if err != nil || len(rec.Payload) == 0 {
		return
	}
	p.HasReason = true
	p.Reason = rec.Payload[0]
	if len(rec.Payload) > 1 {
		if s, _, err := ReadString(rec.Payload, 1); err == nil {
			p.ReasonText = s
		}
	}
}
