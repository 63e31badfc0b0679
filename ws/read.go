package ws

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/netkit/netkit/framing"
)

// Errors used by frame reader.
var (
	ErrHeaderLengthMSB        = fmt.Errorf("header error: the most significant bit must be 0")
	ErrHeaderLengthUnexpected = fmt.Errorf("header error: unexpected payload length bits")
	ErrFrameTooLarge          = errors.New("frame error: frame exceeds buffer limit")
)

// ParseHeader parses frame header from the beginning of p.
// It returns header and its size in bytes. Zero size with nil error means
// that p does not contain complete header yet.
func ParseHeader(p []byte) (h Header, n int, err error) {
	if len(p) < MinHeaderSize {
		return h, 0, nil
	}

	h.Fin = p[0]&bit0 != 0
	h.Rsv = (p[0] & 0x70) >> 4
	h.OpCode = OpCode(p[0] & 0x0f)
	h.Masked = p[1]&bit0 != 0

	n = 2
	length := p[1] & 0x7f
	switch {
	case length < 126:
		h.Length = int64(length)

	case length == 126:
		if len(p) < n+2 {
			return h, 0, nil
		}
		h.Length = int64(binary.BigEndian.Uint16(p[n:]))
		n += 2

	default:
		if len(p) < n+8 {
			return h, 0, nil
		}
		if p[n]&0x80 != 0 {
			return h, 0, ErrHeaderLengthMSB
		}
		h.Length = int64(binary.BigEndian.Uint64(p[n:]))
		n += 8
	}

	if h.Masked {
		if len(p) < n+4 {
			return h, 0, nil
		}
		n += copy(h.Mask[:], p[n:n+4])
	}

	return h, n, nil
}

// TryDecodeFrame decodes one frame from the head of a. If a does not hold
// a complete frame yet, it returns ok false and leaves a untouched.
//
// On success frame bytes are drained from a and payload is unmasked.
func TryDecodeFrame(a *framing.Accumulator) (f Frame, ok bool, err error) {
	h, n, err := ParseHeader(a.Bytes())
	if err != nil || n == 0 {
		return f, false, err
	}

	// The total length of the packet: header, mask and payload.
	bound := int64(PlatformSizeLimit)
	if limit := a.Limit(); limit > 0 {
		bound = int64(limit)
	}
	if h.Length > bound-int64(n) {
		return f, false, ErrFrameTooLarge
	}
	total := n + int(h.Length)
	if a.Len() < total {
		return f, false, nil
	}

	a.Discard(n)
	f.Header = h
	f.Payload = a.Drain(int(h.Length))
	if h.Masked {
		Cipher(f.Payload, h.Mask, 0)
	}

	return f, true, nil
}

// PlatformSizeLimit is the max int value for current platform.
const PlatformSizeLimit = int(^uint(0) >> 1)

// ReadHeader reads a frame header from r.
func ReadHeader(r io.Reader) (h Header, err error) {
	// Make slice with 2 bytes len for header, but with 14 bytes capacity to
	// read extended length and mask without extra allocation.
	bts := make([]byte, 2, MaxHeaderSize)

	// Prepare to hold first 2 bytes to choose size of next read.
	_, err = io.ReadFull(r, bts)
	if err != nil {
		return
	}

	var extra int
	if bts[1]&bit0 != 0 {
		extra += 4
	}
	switch length := bts[1] & 0x7f; {
	case length == 126:
		extra += 2
	case length == 127:
		extra += 8
	}

	if extra > 0 {
		bts = bts[:2+extra]
		if _, err = io.ReadFull(r, bts[2:]); err != nil {
			return
		}
	}

	h, _, err = ParseHeader(bts)
	return
}

// ReadFrame reads a frame from r.
// It is not designed for high optimized use case cause it makes allocation
// for frame.Header.Length size inside to read frame payload into.
//
// Note that ReadFrame does not unmask payload.
func ReadFrame(r io.Reader) (f Frame, err error) {
	f.Header, err = ReadHeader(r)
	if err != nil {
		return
	}

	if f.Header.Length > 0 {
		// int(f.Header.Length) is safe here cause we have
		// checked it for overflow above in ReadHeader.
		f.Payload = make([]byte, int(f.Header.Length))
		_, err = io.ReadFull(r, f.Payload)
	}

	return
}
