package ws

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"testing"
)

func TestWriteHeader(t *testing.T) {
	for i, test := range headerCases {
		t.Run(fmt.Sprintf("#%d", i), func(t *testing.T) {
			buf := &bytes.Buffer{}
			err := WriteHeader(buf, test.Header)
			if test.Err && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !test.Err && err != nil {
				t.Errorf("unexpected error: %s", err)
			}
			if test.Err {
				return
			}
			if bts := buf.Bytes(); !bytes.Equal(bts, test.Data) {
				t.Errorf("WriteHeader()\nwrote:\n\t%08b\nwant:\n\t%08b", bts, test.Data)
			}
		})
	}
}

func TestEncodeFrameLength(t *testing.T) {
	for _, test := range []struct {
		length    int
		masked    bool
		lenBits   byte
		headerLen int
	}{
		{0, false, 0, 2},
		{125, false, 125, 2},
		{126, false, 126, 4},
		{65535, false, 126, 4},
		{65536, false, 127, 10},
		{125, true, 125, 6},
		{126, true, 126, 8},
		{65536, true, 127, 14},
	} {
		t.Run(fmt.Sprintf("%d/masked=%t", test.length, test.masked), func(t *testing.T) {
			payload := bytes.Repeat([]byte{'a'}, test.length)
			bts := EncodeFrame(OpBinary, payload, test.masked)

			if n := len(bts); n != test.headerLen+test.length {
				t.Fatalf("encoded %d bytes; want %d", n, test.headerLen+test.length)
			}
			if bts[0] != bit0|byte(OpBinary) {
				t.Errorf("first byte is %08b; want %08b", bts[0], bit0|byte(OpBinary))
			}
			if masked := bts[1]&bit0 != 0; masked != test.masked {
				t.Errorf("mask bit is %t; want %t", masked, test.masked)
			}
			if lb := bts[1] & 0x7f; lb != test.lenBits {
				t.Errorf("length bits are %d; want %d", lb, test.lenBits)
			}
			switch test.lenBits {
			case 126:
				if n := binary.BigEndian.Uint16(bts[2:]); int(n) != test.length {
					t.Errorf("16-bit length is %d; want %d", n, test.length)
				}
			case 127:
				if n := binary.BigEndian.Uint64(bts[2:]); int(n) != test.length {
					t.Errorf("64-bit length is %d; want %d", n, test.length)
				}
			}

			h, n, err := ParseHeader(bts)
			if err != nil || n != test.headerLen {
				t.Fatalf("ParseHeader() = %d, %v; want %d, nil", n, err, test.headerLen)
			}
			if h.Length != int64(test.length) || h.Masked != test.masked {
				t.Errorf("ParseHeader() header is %+v", h)
			}
			p := bts[n:]
			if h.Masked {
				Cipher(p, h.Mask, 0)
			}
			if !bytes.Equal(p, payload) {
				t.Errorf("payload mismatch after unmasking")
			}
		})
	}
}

func TestEncodeFrameKeepsPayload(t *testing.T) {
	payload := []byte("do not touch")
	orig := append([]byte(nil), payload...)
	_ = EncodeFrame(OpText, payload, true)
	if !bytes.Equal(payload, orig) {
		t.Errorf("EncodeFrame() modified payload: %q", payload)
	}
}

func TestHeaderSize(t *testing.T) {
	for _, test := range []struct {
		header Header
		exp    int
	}{
		{Header{Length: 0}, 2},
		{Header{Length: len7, Masked: true}, 6},
		{Header{Length: len7 + 1}, 4},
		{Header{Length: len16 + 1, Masked: true}, 14},
		{Header{Length: -1}, -1},
	} {
		if act := HeaderSize(test.header); act != test.exp {
			t.Errorf("HeaderSize(%+v) = %d; want %d", test.header, act, test.exp)
		}
	}
}

func TestCompiledFrames(t *testing.T) {
	for _, test := range []struct {
		name string
		bts  []byte
		exp  []byte
	}{
		{"ping", CompiledPing, []byte{0x89, 0x00}},
		{"pong", CompiledPong, []byte{0x8a, 0x00}},
		{"close", CompiledClose, []byte{0x88, 0x00}},
	} {
		if !bytes.Equal(test.bts, test.exp) {
			t.Errorf("compiled %s is %x; want %x", test.name, test.bts, test.exp)
		}
	}
}

func BenchmarkWriteHeader(b *testing.B) {
	for _, bench := range headerBenchCases {
		b.Run(bench.label, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if err := WriteHeader(io.Discard, bench.header); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
