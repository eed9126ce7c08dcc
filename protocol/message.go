package protocol

// Message is the inner length-tag-payload record multiplexed inside a single
// outer packet. Any number of records may be concatenated in one datagram.
//
// Payload slices returned by ReadMessage reference the input buffer; callers
// that retain them past the decode must copy.
type Message struct {
	Tag     byte
	Payload []byte
}

// messageHdrSize is the record header: length (2) + tag (1).
const messageHdrSize = 3

// SizeOfMessage returns the encoded size of m including its header.
func SizeOfMessage(m Message) int {
	return messageHdrSize + len(m.Payload)
}

// WriteMessage writes m at off and returns the number of bytes written.
// The buffer must have been sized with SizeOfMessage.
func WriteMessage(b []byte, off int, m Message) int {
	n := WriteUint16(b, off, uint16(len(m.Payload)))
	n += WriteUint8(b, off+n, m.Tag)
	n += copy(b[off+n:], m.Payload)
	return n
}

// ReadMessage reads one record at off and returns it along with the number
// of bytes consumed.
func ReadMessage(b []byte, off int) (Message, int, error) {
	l, n, err := ReadUint16(b, off)
	if err != nil {
		return Message{}, n, err
	}
	tag, n2, err := ReadUint8(b, off+n)
	if err != nil {
		return Message{}, n + n2, err
	}
	n += n2
	if off+n+int(l) > len(b) {
		return Message{}, n, ErrShortBuffer
	}
	m := Message{Tag: tag, Payload: b[off+n : off+n+int(l)]}
	return m, n + int(l), nil
}
