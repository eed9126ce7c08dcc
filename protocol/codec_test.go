package protocol

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func TestPackedUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7F, 0x80, 0xFF, 0x3FFF, 0x4000, 0x1FFFFF, 0x200000, 0xFFFFFFFF}

	for _, v := range values {
		size := SizeOfPackedUint32(v)
		if size < 1 || size > 5 {
			t.Fatalf("SizeOfPackedUint32(%#x) = %d, out of range", v, size)
		}

		buf := make([]byte, size)
		if n := WritePackedUint32(buf, 0, v); n != size {
			t.Errorf("WritePackedUint32(%#x) wrote %d bytes, size helper said %d", v, n, size)
		}

		got, n, err := ReadPackedUint32(buf, 0)
		if err != nil {
			t.Fatalf("ReadPackedUint32(%#x): %v", v, err)
		}
		if got != v || n != size {
			t.Errorf("round trip %#x: got %#x (%d bytes)", v, got, n)
		}
	}
}

func TestPackedUint32Vectors(t *testing.T) {
	testCases := []struct {
		v    uint32
		want []byte
	}{
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x80, 0x01}},
		{0x3FFF, []byte{0xFF, 0x7F}},
	}

	for _, tc := range testCases {
		buf := make([]byte, SizeOfPackedUint32(tc.v))
		WritePackedUint32(buf, 0, tc.v)
		if !bytes.Equal(buf, tc.want) {
			t.Errorf("WritePackedUint32(%#x) = %v, want %v", tc.v, buf, tc.want)
		}
	}
}

func TestPackedInt32RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 63, -64, 64, -65, 1000000, -1000000, 1 << 30, -(1 << 30)}

	for _, v := range values {
		buf := make([]byte, SizeOfPackedInt32(v))
		WritePackedInt32(buf, 0, v)

		got, _, err := ReadPackedInt32(buf, 0)
		if err != nil {
			t.Fatalf("ReadPackedInt32(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestPackedReadErrors(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrShortBuffer},
		{"unterminated short", []byte{0x80, 0x80}, ErrShortBuffer},
		{"unterminated 5 bytes", []byte{0x80, 0x80, 0x80, 0x80, 0x80}, ErrPackedOverflow},
		{"continuation past cap", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80}, ErrPackedOverflow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ReadPackedUint32(tc.data, 0)
			if !errors.Is(err, tc.want) {
				t.Errorf("got err %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "hello world", "héllo ünïcode"} {
		buf := make([]byte, SizeOfString(s))
		if n := WriteString(buf, 0, s); n != len(buf) {
			t.Fatalf("WriteString(%q) wrote %d bytes, want %d", s, n, len(buf))
		}
		got, n, err := ReadString(buf, 0)
		if err != nil {
			t.Fatalf("ReadString(%q): %v", s, err)
		}
		if got != s || n != len(buf) {
			t.Errorf("round trip %q: got %q (%d bytes)", s, got, n)
		}
	}
}

func TestIPv4(t *testing.T) {
	buf := make([]byte, 4)
	WriteIPv4(buf, 0, net.ParseIP("192.168.1.2"))
	if !bytes.Equal(buf, []byte{0xC0, 0xA8, 0x01, 0x02}) {
		t.Errorf("WriteIPv4 = %v", buf)
	}

	ip, n, err := ReadIPv4(buf, 0)
	if err != nil || n != 4 {
		t.Fatalf("ReadIPv4: %v (n=%d)", err, n)
	}
	if ip.String() != "192.168.1.2" {
		t.Errorf("ReadIPv4 = %s", ip)
	}
}

func TestPrimitiveRoundTrips(t *testing.T) {
	buf := make([]byte, 16)

	WriteUint16(buf, 0, 0xBEEF)
	if v, _, _ := ReadUint16(buf, 0); v != 0xBEEF {
		t.Errorf("uint16 round trip: %#x", v)
	}

	WriteInt32(buf, 2, -123456)
	if v, _, _ := ReadInt32(buf, 2); v != -123456 {
		t.Errorf("int32 round trip: %d", v)
	}

	WriteBool(buf, 6, true)
	if v, _, _ := ReadBool(buf, 6); !v {
		t.Error("bool round trip: false")
	}

	WriteInt16(buf, 7, -2)
	if v, _, _ := ReadInt16(buf, 7); v != -2 {
		t.Errorf("int16 round trip: %d", v)
	}
}

func TestPrimitiveShortReads(t *testing.T) {
	short := []byte{0x01}

	if _, _, err := ReadUint16(short, 0); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadUint16: %v", err)
	}
	if _, _, err := ReadUint32(short, 0); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadUint32: %v", err)
	}
	if _, _, err := ReadUint8(short, 1); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadUint8 past end: %v", err)
	}
	if _, _, err := ReadIPv4(short, 0); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadIPv4: %v", err)
	}
	if _, _, err := ReadString([]byte{0x05, 'a'}, 0); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadString truncated body: %v", err)
	}
}
