package netkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/pool/pbytes"
	"github.com/rs/zerolog"

	"github.com/netkit/netkit/framing"
	"github.com/netkit/netkit/ws"
)

// Errors returned by Session.Send.
var (
	ErrClosed  = errors.New("netkit: session is closed")
	ErrNotOpen = errors.New("netkit: session is not open")
)

// Session is a single message oriented connection. It is created by Dial or
// by a Server and runs its own receive goroutine.
//
// Send methods are safe for concurrent use.
type Session struct {
	id       uint64
	kind     Kind
	conn     net.Conn
	handler  Handler
	config   *Config
	log      zerolog.Logger
	acc      *framing.Accumulator // owned by receive goroutine.
	codec    codec
	protocol string

	state atomic.Uint32

	sendMu sync.Mutex // serializes writes.
	closed bool       // guarded by sendMu.

	local     atomic.Bool // Close has been called.
	closeOnce sync.Once

	reporting sync.WaitGroup // senders reporting a write error.
	errMu     sync.Mutex
	err       error

	open chan struct{}
	done chan struct{}

	// Server hooks called by the receive goroutine.
	onOpen  func(*Session)
	onClose func(*Session)
}

func newSession(conn net.Conn, kind Kind, c codec, h Handler, config *Config) *Session {
	s := &Session{
		id:      nextID(),
		kind:    kind,
		conn:    conn,
		handler: h,
		config:  config,
		acc:     framing.NewAccumulator(config.MaxMessageSize),
		codec:   c,
		open:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.log = config.Logger.With().
		Uint64("session", s.id).
		Str("kind", kind.String()).
		Str("remote", addrString(conn.RemoteAddr())).
		Logger()
	return s
}

// ID returns session identifier.
func (s *Session) ID() uint64 { return s.id }

// Kind returns session kind.
func (s *Session) Kind() Kind { return s.kind }

// RemoteAddr returns remote network address of the transport.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// LocalAddr returns local network address of the transport.
func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// State returns current state of the session.
func (s *Session) State() State { return State(s.state.Load()) }

// Protocol returns WebSocket subprotocol selected during handshake.
func (s *Session) Protocol() string {
	if s.State() < StateOpen {
		return ""
	}
	return s.protocol
}

// Done returns a channel which is closed after the session is closed and
// OnClose has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error which terminated the session. It returns nil if the
// session is still running or was closed in an orderly way.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Send sends p as a single message. WebSocket sessions send it as a binary
// frame.
func (s *Session) Send(p []byte) error {
	return s.send(ws.OpBinary, p)
}

// SendText sends str as a single message. WebSocket sessions send it as
// a text frame.
func (s *Session) SendText(str string) error {
	return s.send(ws.OpText, []byte(str))
}

func (s *Session) send(op ws.OpCode, p []byte) error {
	switch st := s.State(); {
	case st < StateOpen:
		return ErrNotOpen
	case st > StateOpen:
		return ErrClosed
	}
	bts, err := s.codec.encode(op, p)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return ErrClosed
	}
	s.setWriteDeadline()
	if _, err = s.conn.Write(bts); err != nil {
		// Joined before sendMu is released, so finish waits for the report
		// and OnClose stays the last event.
		s.reporting.Add(1)
		s.sendMu.Unlock()
		defer s.reporting.Done()

		err = fmt.Errorf("write: %w", err)
		s.advance(StateClosing)
		s.fail(err)
		// Receive goroutine exits on closed transport and reports OnClose.
		s.conn.Close()
		return err
	}
	s.sendMu.Unlock()

	s.handler.OnSent(s, p)
	return nil
}

// Close closes the session without waiting for the receive goroutine. Open
// WebSocket sessions send a close frame first. It is safe to call Close
// multiple times.
func (s *Session) Close() (err error) {
	s.closeOnce.Do(func() {
		s.local.Store(true)
		prev := s.advance(StateClosing)

		s.sendMu.Lock()
		if !s.closed && prev == StateOpen {
			if p := s.codec.closing(); p != nil {
				if err := s.writeLocked(p); err != nil {
					s.log.Debug().Err(err).Msg("close frame write error")
				}
			}
		}
		s.closed = true
		s.sendMu.Unlock()

		if err = s.conn.Close(); errors.Is(err, net.ErrClosed) {
			err = nil
		}
		s.log.Debug().Stringer("state", prev).Msg("closing session")
	})
	return err
}

// Shutdown closes the session and waits for its receive goroutine to exit
// or for ctx to be done.
func (s *Session) Shutdown(ctx context.Context) error {
	err := s.Close()
	select {
	case <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer s.finish()

	if err := s.codec.open(s); err != nil {
		s.fail(err)
		return
	}

	buf := pbytes.GetLen(s.config.ReadBufferSize)
	defer pbytes.Put(buf)

	var (
		handshake = time.Now().Add(s.config.HandshakeTimeout)
		deadline  bool
	)
	for {
		switch {
		case s.State() < StateOpen:
			s.setReadDeadline(handshake)
			deadline = true
		case s.config.IdleTimeout > 0:
			s.setReadDeadline(time.Now().Add(s.config.IdleTimeout))
			deadline = true
		case deadline:
			s.setReadDeadline(time.Time{})
			deadline = false
		}

		n, err := s.conn.Read(buf)
		if n > 0 || err == nil {
			msgs, derr := s.codec.decode(s, buf[:n])
			for _, m := range msgs {
				s.handler.OnMessage(s, m)
			}
			if derr != nil {
				if !errors.Is(derr, errPeerClosed) {
					s.fail(derr)
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.fail(fmt.Errorf("read: %w", err))
			}
			return
		}
	}
}

// finish releases the transport and reports OnClose. It is called once by
// the receive goroutine.
func (s *Session) finish() {
	s.advance(StateClosing)

	s.sendMu.Lock()
	s.closed = true
	s.sendMu.Unlock()

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		s.log.Debug().Err(err).Msg("transport close error")
	}
	s.advance(StateClosed)

	// Wait for error reported by a sending goroutine.
	s.reporting.Wait()

	if s.onClose != nil {
		s.onClose(s)
	}
	s.log.Debug().Msg("session closed")
	s.handler.OnClose(s)
	close(s.done)
}

// opened moves the session to the open state. It is called by codecs.
func (s *Session) opened() {
	if s.advance(StateOpen) >= StateOpen {
		return
	}
	if s.onOpen != nil {
		s.onOpen(s)
	}
	s.log.Debug().Str("protocol", s.protocol).Msg("session open")
	s.handler.OnOpen(s)
	close(s.open)
}

// fail reports the first error of the session. Errors which happen after
// local Close are not reported.
func (s *Session) fail(err error) {
	if s.local.Load() {
		return
	}

	s.errMu.Lock()
	if s.err != nil {
		s.errMu.Unlock()
		return
	}
	s.err = err
	s.errMu.Unlock()

	s.log.Warn().Err(err).Msg("session error")
	s.handler.OnError(s, err)
}

// advance moves the session forward to the given state and returns the
// previous one. The state is left untouched if it is already at or beyond
// to.
func (s *Session) advance(to State) State {
	for {
		cur := s.state.Load()
		if State(cur) >= to {
			return State(cur)
		}
		if s.state.CompareAndSwap(cur, uint32(to)) {
			return State(cur)
		}
	}
}

// reply writes protocol bytes such as control frames and handshake
// responses.
func (s *Session) reply(p []byte) {
	if err := s.write(p); err != nil && !errors.Is(err, ErrClosed) {
		s.log.Debug().Err(err).Msg("reply write error")
	}
}

func (s *Session) write(p []byte) error {
	return s.writeWith(func(w io.Writer) error {
		_, err := w.Write(p)
		return err
	})
}

func (s *Session) writeLocked(p []byte) error {
	s.setWriteDeadline()
	_, err := s.conn.Write(p)
	return err
}

func (s *Session) writeWith(fn func(w io.Writer) error) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.setWriteDeadline()
	return fn(s.conn)
}

func (s *Session) setWriteDeadline() {
	if t := s.config.WriteTimeout; t > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			s.log.Debug().Err(err).Msg("set write deadline error")
		}
	}
}

func (s *Session) setReadDeadline(t time.Time) {
	if err := s.conn.SetReadDeadline(t); err != nil {
		s.log.Debug().Err(err).Msg("set read deadline error")
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
