package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeNormalWire(t *testing.T) {
	data := EncodeNormal(
		Message{Tag: 7, Payload: []byte("ab")},
		Message{Tag: 9},
	)
	want := []byte{0x00, 0x00, 0x02, 0x07, 0x61, 0x62, 0x00, 0x00, 0x09}
	if !bytes.Equal(data, want) {
		t.Errorf("EncodeNormal = %v, want %v", data, want)
	}
}

func TestEncodeHelloWire(t *testing.T) {
	data := EncodeHello(1, 0, nil)
	want := []byte{0x08, 0x00, 0x01, 0x00}
	if !bytes.Equal(data, want) {
		t.Errorf("EncodeHello = %v, want %v", data, want)
	}

	data = EncodeHello(2, 0, []byte("hi"))
	want = []byte{0x08, 0x00, 0x02, 0x00, 'h', 'i'}
	if !bytes.Equal(data, want) {
		t.Errorf("EncodeHello with payload = %v, want %v", data, want)
	}
}

func TestEncodePingAckWire(t *testing.T) {
	if got := EncodePing(0x1234); !bytes.Equal(got, []byte{0x0C, 0x12, 0x34}) {
		t.Errorf("EncodePing = %v", got)
	}
	if got := EncodeAck(1, 0xFF); !bytes.Equal(got, []byte{0x0A, 0x00, 0x01, 0xFF}) {
		t.Errorf("EncodeAck = %v", got)
	}
}

func TestEncodeDisconnectWire(t *testing.T) {
	if got := EncodeDisconnect(); !bytes.Equal(got, []byte{0x09, 0x00}) {
		t.Errorf("EncodeDisconnect = %v", got)
	}

	got := EncodeDisconnectReason(4, "bye")
	want := []byte{0x09, 0x01, 0x00, 0x05, 0x00, 0x04, 0x03, 'b', 'y', 'e'}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeDisconnectReason = %v, want %v", got, want)
	}
}

func TestDecodeReliable(t *testing.T) {
	data := EncodeReliable(0xABCD,
		Message{Tag: 1, Payload: []byte("abc")},
		Message{Tag: 2},
	)

	pkt, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Type != TypeReliable || pkt.Nonce != 0xABCD {
		t.Fatalf("got type %#x nonce %d", pkt.Type, pkt.Nonce)
	}
	if len(pkt.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(pkt.Messages))
	}
	if pkt.Messages[0].Tag != 1 || string(pkt.Messages[0].Payload) != "abc" {
		t.Errorf("first message: tag %d payload %q", pkt.Messages[0].Tag, pkt.Messages[0].Payload)
	}
	if pkt.Messages[1].Tag != 2 || len(pkt.Messages[1].Payload) != 0 {
		t.Errorf("second message: tag %d payload %q", pkt.Messages[1].Tag, pkt.Messages[1].Payload)
	}
}

func TestDecodeHello(t *testing.T) {
	pkt, err := Decode([]byte{0x08, 0x00, 0x01, 0x00})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Type != TypeHello || pkt.Nonce != 1 || pkt.Version != 0 || len(pkt.Payload) != 0 {
		t.Errorf("got %+v", pkt)
	}

	pkt, err = Decode([]byte{0x08, 0x00, 0x02, 0x03, 'x'})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Version != 3 || string(pkt.Payload) != "x" {
		t.Errorf("got version %d payload %q", pkt.Version, pkt.Payload)
	}
}

func TestDecodeTruncated(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"reliable no nonce", []byte{0x01, 0x00}},
		{"reliable bad record", []byte{0x01, 0x00, 0x01, 0x00, 0x05, 0x07}},
		{"normal bad record", []byte{0x00, 0x00}},
		{"hello no version", []byte{0x08, 0x00, 0x01}},
		{"ack no mask", []byte{0x0A, 0x00, 0x01}},
		{"ping no nonce", []byte{0x0C, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.data); !errors.Is(err, ErrTruncated) {
				t.Errorf("got err %v, want ErrTruncated", err)
			}
		})
	}
}

func TestDecodeDisconnect(t *testing.T) {
	testCases := []struct {
		name       string
		data       []byte
		forced     bool
		hasReason  bool
		reason     byte
		reasonText string
	}{
		{"bare", []byte{0x09}, true, false, 0, ""},
		{"forced", []byte{0x09, 0x00}, true, false, 0, ""},
		{"graceful no reason", []byte{0x09, 0x01}, false, false, 0, ""},
		{"graceful reason only", []byte{0x09, 0x01, 0x00, 0x01, 0x00, 0x04}, false, true, 4, ""},
		{"graceful reason and message", []byte{0x09, 0x01, 0x00, 0x05, 0x00, 0x04, 0x03, 'b', 'y', 'e'}, false, true, 4, "bye"},
		{"malformed trailer", []byte{0x09, 0x01, 0xFF}, false, false, 0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pkt, err := Decode(tc.data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if pkt.Forced != tc.forced || pkt.HasReason != tc.hasReason ||
				pkt.Reason != tc.reason || pkt.ReasonText != tc.reasonText {
				t.Errorf("got %+v", pkt)
			}
		})
	}
}

func TestDecodeReservedAndUnknown(t *testing.T) {
	pkt, err := Decode([]byte{TypeFragment, 0x00, 0x01, 0xAA})
	if err != nil {
		t.Fatalf("Decode fragment: %v", err)
	}
	if pkt.Type != TypeFragment {
		t.Errorf("got type %#x", pkt.Type)
	}

	pkt, err = Decode([]byte{0xFF, 0x01, 0x02})
	if err != nil {
		t.Fatalf("Decode unknown: %v", err)
	}
	if pkt.Type != 0xFF {
		t.Errorf("got type %#x", pkt.Type)
	}
}

func TestDisconnectEncodeDecodeRoundTrip(t *testing.T) {
	pkt, err := Decode(EncodeDisconnectReason(7, "server shutting down"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Forced || !pkt.HasReason || pkt.Reason != 7 || pkt.ReasonText != "server shutting down" {
		t.Errorf("got %+v", pkt)
	}
}
