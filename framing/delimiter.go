package framing

import (
	"bytes"
	"errors"
)

// CRLF is the default message delimiter.
var CRLF = []byte("\r\n")

// ErrDelimiterInPayload is returned by Delimiter.Check when payload contains
// the delimiter sequence and thus can not be framed.
var ErrDelimiterInPayload = errors.New("framing: payload contains delimiter")

// Delimiter frames messages by terminating each one with a fixed byte
// sequence. Zero value uses CRLF.
type Delimiter struct {
	Sep []byte
}

func (d Delimiter) sep() []byte {
	if len(d.Sep) == 0 {
		return CRLF
	}
	return d.Sep
}

// ExtractAll drains every complete message from a and returns them in
// arrival order. Delimiter bytes are not included. Two adjacent delimiters
// produce an empty message.
func (d Delimiter) ExtractAll(a *Accumulator) (msgs [][]byte) {
	sep := d.sep()
	for {
		i := a.IndexOf(sep)
		if i == -1 {
			return msgs
		}
		msgs = append(msgs, a.Drain(i))
		a.Discard(len(sep))
	}
}

// Encode returns p followed by the delimiter.
func (d Delimiter) Encode(p []byte) []byte {
	return d.AppendEncode(make([]byte, 0, len(p)+len(d.sep())), p)
}

// AppendEncode appends p followed by the delimiter to dst.
func (d Delimiter) AppendEncode(dst, p []byte) []byte {
	dst = append(dst, p...)
	return append(dst, d.sep()...)
}

// Check reports whether p could be framed without ambiguity.
func (d Delimiter) Check(p []byte) error {
	if bytes.Contains(p, d.sep()) {
		return ErrDelimiterInPayload
	}
	return nil
}
