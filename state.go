package netkit

import "strconv"

// State describes the lifecycle phase of a session.
// States only move forward: Connecting, Handshaking, Open, Closing, Closed.
type State uint32

const (
	StateConnecting State = iota
	StateHandshaking
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "state(" + strconv.FormatUint(uint64(s), 10) + ")"
}

// Kind selects the message format of sessions.
type Kind uint8

const (
	// KindTCP sessions exchange CRLF terminated messages.
	KindTCP Kind = iota
	// KindWS sessions exchange WebSocket frames.
	KindWS
	// KindUDP sessions exchange datagrams.
	KindUDP
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindWS:
		return "ws"
	case KindUDP:
		return "udp"
	}
	return "kind(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// ParseKind returns Kind named by s, as printed by Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindTCP, KindWS, KindUDP} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
