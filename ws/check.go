package ws

import "fmt"

// State represents state of websocket endpoint.
// It used by some functions to be more strict when checking compatibility with RFC6455.
type State uint8

const (
	// StateServerSide means that endpoint (caller) is a server.
	StateServerSide State = 0x1 << iota
	// StateClientSide means that endpoint (caller) is a client.
	StateClientSide
)

// Is checks whether the s has v enabled.
func (s State) Is(v State) bool {
	return uint8(s)&uint8(v) != 0
}

// ProtocolError describes error during checking/parsing websocket frames or headers.
type ProtocolError error

// Errors used by the protocol checkers.
var (
	ErrProtocolOpCodeReserved         = ProtocolError(fmt.Errorf("use of reserved op code"))
	ErrProtocolControlPayloadOverflow = ProtocolError(fmt.Errorf("control frame payload limit exceeded"))
	ErrProtocolControlNotFinal        = ProtocolError(fmt.Errorf("control frame is not final"))
	ErrProtocolNonZeroRsv             = ProtocolError(fmt.Errorf("non-zero rsv bits with no extension negotiated"))
	ErrProtocolMaskRequired           = ProtocolError(fmt.Errorf("frames from client to server must be masked"))
	ErrProtocolMaskUnexpected         = ProtocolError(fmt.Errorf("frames from server to client must be not masked"))
	ErrProtocolFragmented             = ProtocolError(fmt.Errorf("fragmented messages are not supported"))
)

// CheckHeader checks h to contain valid header data for given state s.
//
// Note that zero state (0) means that state is clean, neither server or
// client side.
func CheckHeader(h Header, s State) error {
	if h.OpCode.IsReserved() {
		return ErrProtocolOpCodeReserved
	}
	if h.OpCode.IsControl() {
		if h.Length > MaxControlFramePayloadSize {
			return ErrProtocolControlPayloadOverflow
		}
		if !h.Fin {
			return ErrProtocolControlNotFinal
		}
	}

	switch {
	// [RFC6455]: MUST be 0 unless an extension is negotiated that defines meanings for
	// non-zero values. If a nonzero value is received and none of the
	// negotiated extensions defines the meaning of such a nonzero value, the
	// receiving endpoint MUST _Fail the WebSocket Connection_.
	case h.Rsv != 0:
		return ErrProtocolNonZeroRsv

	// [RFC6455]: The server MUST close the connection upon receiving a frame that is not masked.
	// In this case, a server MAY send a Close frame with a status code of 1002 (protocol error)
	// as defined in Section 7.4.1. A server MUST NOT mask any frames that it sends to the client.
	// A client MUST close a connection if it detects a masked frame. In this case, it MAY use the
	// status code 1002 (protocol error) as defined in Section 7.4.1.
	case s.Is(StateServerSide) && !h.Masked:
		return ErrProtocolMaskRequired
	case s.Is(StateClientSide) && h.Masked:
		return ErrProtocolMaskUnexpected

	case h.OpCode == OpContinuation, h.OpCode.IsData() && !h.Fin:
		return ErrProtocolFragmented
	}

	return nil
}
