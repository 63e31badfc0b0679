// Package framing contains tools for cutting a byte stream into messages.
package framing

import (
	"bytes"
	"errors"
)

// ErrOverflow is returned by Accumulator.Check when the bytes left after
// extraction exceed the accumulator limit.
var ErrOverflow = errors.New("framing: accumulated data exceeds limit")

// Accumulator is an append-only buffer of received bytes with a consumable
// prefix. It is not safe for concurrent use.
type Accumulator struct {
	buf   []byte
	limit int

	// needle and scanned describe the last IndexOf search: no occurrence of
	// needle starts before scanned.
	needle  string
	scanned int
}

// NewAccumulator creates accumulator which may keep at most limit bytes
// between extractions. Non-positive limit means no limit.
func NewAccumulator(limit int) *Accumulator {
	return &Accumulator{limit: limit}
}

// Append adds p to the tail of the buffer.
//
// The limit is not checked here: p may complete messages which are
// extracted right after. Callers call Check once extraction is done.
func (a *Accumulator) Append(p []byte) {
	a.buf = append(a.buf, p...)
}

// Check returns ErrOverflow if the buffered bytes exceed the limit.
func (a *Accumulator) Check() error {
	if a.limit > 0 && len(a.buf) > a.limit {
		return ErrOverflow
	}
	return nil
}

// Drain removes first n bytes from the buffer and returns them.
// Returned slice is a copy and stays valid after further mutations.
// It panics if n is greater than Len().
func (a *Accumulator) Drain(n int) []byte {
	p := make([]byte, n)
	copy(p, a.buf[:n])
	a.Discard(n)
	return p
}

// Discard removes first n bytes from the buffer.
// It panics if n is greater than Len().
func (a *Accumulator) Discard(n int) {
	if n > len(a.buf) {
		panic("framing: discard beyond buffered length")
	}
	m := copy(a.buf, a.buf[n:])
	a.buf = a.buf[:m]

	if a.scanned -= n; a.scanned < 0 {
		a.scanned = 0
	}
}

// IndexOf returns the offset of the first occurrence of needle in the
// buffered bytes, or -1 if needle is not present.
//
// Repeated calls with the same needle scan only bytes appended since the
// previous call.
func (a *Accumulator) IndexOf(needle []byte) int {
	if len(needle) == 0 {
		return 0
	}
	if a.needle != string(needle) {
		a.needle = string(needle)
		a.scanned = 0
	}
	from := a.scanned - (len(needle) - 1)
	if from < 0 {
		from = 0
	}
	i := bytes.Index(a.buf[from:], needle)
	if i == -1 {
		a.scanned = len(a.buf)
		return -1
	}
	a.scanned = from + i
	return from + i
}

// Len returns the number of buffered bytes.
func (a *Accumulator) Len() int { return len(a.buf) }

// Limit returns the limit given to NewAccumulator.
func (a *Accumulator) Limit() int { return a.limit }

// Bytes returns buffered bytes.
// Note that returned slice is only valid until the next mutation.
func (a *Accumulator) Bytes() []byte { return a.buf }

// Reset drops all buffered bytes.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
	a.scanned = 0
}
