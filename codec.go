package netkit

import (
	"errors"
	"fmt"
	"io"

	"github.com/netkit/netkit/framing"
	"github.com/netkit/netkit/ws"
)

// errPeerClosed is returned by codecs when the peer has finished the session
// in an orderly way.
var errPeerClosed = errors.New("closed by peer")

// codec turns received bytes into messages and messages into bytes for one
// kind of session. Its methods, except encode, are called only by the
// receive goroutine of the session.
type codec interface {
	// open is called once the transport is connected.
	open(s *Session) error
	// decode consumes bytes of a single read and returns complete messages.
	// Messages must be delivered even if error is returned.
	decode(s *Session, p []byte) ([][]byte, error)
	// encode returns wire representation of a single message.
	encode(op ws.OpCode, p []byte) ([]byte, error)
	// closing returns bytes to be sent before an open session is closed
	// locally. It may return nil.
	closing() []byte
}

// delimiterCodec handles CRLF (or other separator) terminated messages.
type delimiterCodec struct {
	framing.Delimiter
}

func (c *delimiterCodec) open(s *Session) error {
	s.opened()
	return nil
}

func (c *delimiterCodec) decode(s *Session, p []byte) ([][]byte, error) {
	s.acc.Append(p)
	msgs := c.ExtractAll(s.acc)
	return msgs, s.acc.Check()
}

func (c *delimiterCodec) encode(_ ws.OpCode, p []byte) ([]byte, error) {
	if err := c.Check(p); err != nil {
		return nil, err
	}
	return c.AppendEncode(make([]byte, 0, len(p)+len(framing.CRLF)), p), nil
}

func (c *delimiterCodec) closing() []byte { return nil }

// datagramCodec treats every read as a message.
type datagramCodec struct{}

func (datagramCodec) open(s *Session) error {
	s.opened()
	return nil
}

func (datagramCodec) decode(_ *Session, p []byte) ([][]byte, error) {
	return [][]byte{append(make([]byte, 0, len(p)), p...)}, nil
}

func (datagramCodec) encode(_ ws.OpCode, p []byte) ([]byte, error) { return p, nil }

func (datagramCodec) closing() []byte { return nil }

// wsCodec implements frame handling shared by both endpoint sides.
type wsCodec struct {
	state       ws.State
	established bool
}

func (c *wsCodec) masked() bool {
	return c.state.Is(ws.StateClientSide)
}

func (c *wsCodec) encode(op ws.OpCode, p []byte) ([]byte, error) {
	return ws.EncodeFrame(op, p, c.masked()), nil
}

func (c *wsCodec) closing() []byte {
	return ws.EncodeFrame(ws.OpClose, ws.NewCloseFrameData(ws.StatusNormalClosure, ""), c.masked())
}

// frames decodes all complete frames buffered in the session accumulator.
func (c *wsCodec) frames(s *Session) ([][]byte, error) {
	var msgs [][]byte
	for {
		f, ok, err := ws.TryDecodeFrame(s.acc)
		if err != nil {
			code := ws.StatusProtocolError
			if errors.Is(err, ws.ErrFrameTooLarge) {
				code = ws.StatusMessageTooBig
			}
			c.fail(s, code)
			return msgs, err
		}
		if !ok {
			if err := s.acc.Check(); err != nil {
				c.fail(s, ws.StatusMessageTooBig)
				return msgs, err
			}
			return msgs, nil
		}
		if err := ws.CheckHeader(f.Header, c.state); err != nil {
			c.fail(s, ws.StatusProtocolError)
			return msgs, err
		}

		switch f.Header.OpCode {
		case ws.OpText, ws.OpBinary:
			msgs = append(msgs, f.Payload)

		case ws.OpPing:
			s.reply(ws.EncodeFrame(ws.OpPong, f.Payload, c.masked()))

		case ws.OpPong:

		case ws.OpClose:
			var p []byte
			switch code, _ := ws.ParseCloseFrameData(f.Payload); {
			case code.Empty():
			case code.IsProtocolReserved():
				p = ws.NewCloseFrameData(ws.StatusProtocolError, "")
			default:
				p = ws.NewCloseFrameData(code, "")
			}
			c.established = false
			s.reply(ws.EncodeFrame(ws.OpClose, p, c.masked()))
			return msgs, errPeerClosed
		}
	}
}

func (c *wsCodec) fail(s *Session, code ws.StatusCode) {
	if c.established {
		c.established = false
		s.reply(ws.EncodeFrame(ws.OpClose, ws.NewCloseFrameData(code, ""), c.masked()))
	}
}

// wsServerCodec accepts client opening handshake and then exchanges frames.
type wsServerCodec struct {
	wsCodec
	protocols []string
}

func newWSServerCodec(protocols []string) *wsServerCodec {
	return &wsServerCodec{
		wsCodec:   wsCodec{state: ws.StateServerSide},
		protocols: protocols,
	}
}

func (c *wsServerCodec) open(s *Session) error {
	s.advance(StateHandshaking)
	return nil
}

func (c *wsServerCodec) decode(s *Session, p []byte) ([][]byte, error) {
	s.acc.Append(p)
	if !c.established {
		i := s.acc.IndexOf(ws.HeaderTerminator)
		if i == -1 {
			return nil, s.acc.Check()
		}
		req, err := ws.ParseUpgradeRequest(s.acc.Drain(i + len(ws.HeaderTerminator)))
		if err != nil {
			s.reply(ws.AppendErrorResponse(nil, err))
			return nil, fmt.Errorf("handshake: %w", err)
		}
		s.protocol = ws.SelectProtocol(req.Protocols, c.protocols)
		s.reply(ws.AppendUpgradeResponse(nil, ws.AcceptKey(req.Key), s.protocol))
		c.established = true
		s.opened()
	}
	return c.frames(s)
}

// wsClientCodec performs client opening handshake and then exchanges frames.
type wsClientCodec struct {
	wsCodec
	host      string
	uri       string
	nonce     string
	protocols []string
}

func newWSClientCodec(host, uri string, protocols []string) *wsClientCodec {
	return &wsClientCodec{
		wsCodec:   wsCodec{state: ws.StateClientSide},
		host:      host,
		uri:       uri,
		nonce:     ws.NewNonce(),
		protocols: protocols,
	}
}

func (c *wsClientCodec) open(s *Session) error {
	s.advance(StateHandshaking)
	err := s.writeWith(func(w io.Writer) error {
		return ws.WriteUpgradeRequest(w, c.host, c.uri, c.nonce, c.protocols)
	})
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

func (c *wsClientCodec) decode(s *Session, p []byte) ([][]byte, error) {
	s.acc.Append(p)
	if !c.established {
		i := s.acc.IndexOf(ws.HeaderTerminator)
		if i == -1 {
			return nil, s.acc.Check()
		}
		hs, err := ws.ParseUpgradeResponse(s.acc.Drain(i+len(ws.HeaderTerminator)), c.nonce, c.protocols)
		if err != nil {
			return nil, fmt.Errorf("handshake: %w", err)
		}
		s.protocol = hs.Protocol
		c.established = true
		s.opened()
	}
	return c.frames(s)
}
