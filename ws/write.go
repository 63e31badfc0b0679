package ws

import (
	"encoding/binary"
	"io"
)

// Header size length bounds in bytes.
const (
	MaxHeaderSize = 14
	MinHeaderSize = 2
)

const (
	bit0 = 0x80
	bit1 = 0x40
	bit2 = 0x20
	bit3 = 0x10
	bit4 = 0x08
	bit5 = 0x04
	bit6 = 0x02
	bit7 = 0x01

	len7  = int64(125)
	len16 = int64(^(uint16(0)))
	len64 = int64(^(uint64(0)) >> 1)
)

// HeaderSize returns number of bytes that are needed to encode given header.
// It returns -1 if header is malformed.
func HeaderSize(h Header) (n int) {
	switch {
	case h.Length < 0:
		return -1
	case h.Length <= len7:
		n = 2
	case h.Length <= len16:
		n = 4
	default:
		n = 10
	}
	if h.Masked {
		n += len(h.Mask)
	}
	return n
}

// PutHeader encodes h into p and returns the number of bytes written.
// p must be at least HeaderSize(h) bytes length.
func PutHeader(p []byte, h Header) int {
	p[0] = h.Rsv<<4 | byte(h.OpCode)
	if h.Fin {
		p[0] |= bit0
	}

	var n int
	switch {
	case h.Length <= len7:
		p[1] = byte(h.Length)
		n = 2

	case h.Length <= len16:
		p[1] = 126
		binary.BigEndian.PutUint16(p[2:], uint16(h.Length))
		n = 4

	default:
		p[1] = 127
		binary.BigEndian.PutUint64(p[2:], uint64(h.Length))
		n = 10
	}

	if h.Masked {
		p[1] |= bit0
		n += copy(p[n:], h.Mask[:])
	}

	return n
}

// WriteHeader writes header binary representation into w.
func WriteHeader(w io.Writer, h Header) error {
	if h.Length < 0 {
		return ErrHeaderLengthUnexpected
	}
	var bts [MaxHeaderSize]byte
	n := PutHeader(bts[:], h)
	_, err := w.Write(bts[:n])
	return err
}

// WriteFrame writes frame binary representation into w.
// Note that it does not mask payload; f.Payload is expected to be already
// masked if f.Header.Masked is set.
func WriteFrame(w io.Writer, f Frame) error {
	err := WriteHeader(w, f.Header)
	if err != nil {
		return err
	}
	_, err = w.Write(f.Payload)
	return err
}

// AppendFrame appends binary representation of f to dst.
// Note that, as WriteFrame, it does not mask payload.
func AppendFrame(dst []byte, f Frame) []byte {
	var bts [MaxHeaderSize]byte
	n := PutHeader(bts[:], f.Header)
	dst = append(dst, bts[:n]...)
	return append(dst, f.Payload...)
}

// EncodeFrame returns binary representation of final frame with given
// operation code and payload. If masked is true, payload is masked with
// random mask. The p slice is never modified.
func EncodeFrame(op OpCode, p []byte, masked bool) []byte {
	h := Header{
		Fin:    true,
		OpCode: op,
		Length: int64(len(p)),
		Masked: masked,
	}
	if masked {
		h.Mask = NewMask()
	}

	bts := make([]byte, HeaderSize(h)+len(p))
	n := PutHeader(bts, h)
	copy(bts[n:], p)
	if masked {
		Cipher(bts[n:], h.Mask, 0)
	}
	return bts
}

// CompileFrame returns byte representation of given frame.
// In terms of memory consumption it is useful to precompile static frames which are often used.
func CompileFrame(f Frame) (bts []byte, err error) {
	if f.Header.Length < 0 {
		return nil, ErrHeaderLengthUnexpected
	}
	return AppendFrame(make([]byte, 0, HeaderSize(f.Header)+len(f.Payload)), f), nil
}

// MustCompileFrame is like CompileFrame but panics if frame can not be
// encoded.
func MustCompileFrame(f Frame) []byte {
	bts, err := CompileFrame(f)
	if err != nil {
		panic(err)
	}
	return bts
}

// Compiled control frames for common use cases.
var (
	CompiledPing  = MustCompileFrame(NewPingFrame(nil))
	CompiledPong  = MustCompileFrame(NewPongFrame(nil))
	CompiledClose = MustCompileFrame(NewCloseFrame(0, ""))
)
