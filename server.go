package netkit

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Errors returned by servers.
var (
	ErrServerClosed   = errors.New("netkit: server closed")
	ErrNilHandler     = errors.New("netkit: handler is required")
	ErrKindNotStream  = errors.New("netkit: kind is not a stream kind")
	ErrAlreadyServing = errors.New("netkit: server is already serving")
)

// Server accepts stream connections and runs a Session for each of them.
type Server struct {
	kind     Kind
	handler  Handler
	config   *Config
	log      zerolog.Logger
	registry *Registry

	mu       sync.Mutex
	listener net.Listener

	active      sync.Map     // *Session set of not yet finished sessions.
	activeCount atomic.Int32 // number of entries in active.
	connWG      sync.WaitGroup
	closed      atomic.Bool
}

// NewServer creates server for sessions of given kind. Kind must be KindTCP
// or KindWS; datagram servers are created by NewUDPServer.
func NewServer(kind Kind, h Handler, config *Config) (*Server, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	if kind != KindTCP && kind != KindWS {
		return nil, ErrKindNotStream
	}
	config = config.withDefaults()

	registry := NewRegistry()
	registry.concurrency = config.BroadcastConcurrency

	return &Server{
		kind:     kind,
		handler:  h,
		config:   config,
		log:      config.Logger.With().Str("kind", kind.String()).Logger(),
		registry: registry,
	}, nil
}

// Listen announces on the local TCP address and serves it in a separate
// goroutine.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	served, err := s.setListener(ln)
	if err != nil {
		ln.Close()
		return err
	}
	go s.serve(served)
	return nil
}

// Serve accepts connections from ln until the server is closed. It always
// returns non-nil error; after Close it is ErrServerClosed.
// If Config.TLS is set, ln is wrapped into TLS listener.
func (s *Server) Serve(ln net.Listener) error {
	ln, err := s.setListener(ln)
	if err != nil {
		return err
	}
	return s.serve(ln)
}

func (s *Server) setListener(ln net.Listener) (net.Listener, error) {
	if s.config.TLS != nil {
		ln = tls.NewListener(ln, s.config.TLS)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrServerClosed
	}
	if s.listener != nil {
		return nil, ErrAlreadyServing
	}
	s.listener = ln
	return ln, nil
}

// Addr returns listener address or nil if server is not serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry returns registry of open sessions.
func (s *Server) Registry() *Registry { return s.registry }

// Broadcast sends p to all open sessions.
func (s *Server) Broadcast(p []byte) (int, error) {
	return s.registry.Broadcast(p)
}

// BroadcastText sends str as text message to all open sessions.
func (s *Server) BroadcastText(str string) (int, error) {
	return s.registry.BroadcastText(str)
}

// Close closes the server and waits at most Config.ShutdownTimeout for
// sessions to finish.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	err := s.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn().Msg("timeout waiting for sessions to close")
		return nil
	}
	return err
}

// Shutdown stops accepting connections, closes all sessions and waits for
// them to finish or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed.Store(true)
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		if err = ln.Close(); errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}

	s.active.Range(func(key, _ any) bool {
		key.(*Session).Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serve(ln net.Listener) error {
	s.log.Debug().Str("addr", ln.Addr().String()).Msg("serving")

	const (
		minDelay = 5 * time.Millisecond
		maxDelay = time.Second
	)
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if delay == 0 {
					delay = minDelay
				} else if delay *= 2; delay > maxDelay {
					delay = maxDelay
				}
				s.log.Warn().Err(err).Dur("retry", delay).Msg("accept error")
				time.Sleep(delay)
				continue
			}
			s.log.Error().Err(err).Msg("accept error")
			return err
		}
		delay = 0

		if limit := s.config.MaxConns; limit > 0 && int(s.activeCount.Load()) >= limit {
			s.log.Debug().Str("remote", addrString(conn.RemoteAddr())).Msg("connection limit reached")
			conn.Close()
			continue
		}

		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	var c codec
	switch s.kind {
	case KindWS:
		c = newWSServerCodec(s.config.Protocols)
	default:
		c = &delimiterCodec{}
	}

	sess := newSession(conn, s.kind, c, s.handler, s.config)
	sess.onOpen = func(sess *Session) {
		s.registry.Add(sess)
	}
	sess.onClose = func(sess *Session) {
		s.registry.Remove(sess)
		s.active.Delete(sess)
		s.activeCount.Add(-1)
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.activeCount.Add(1)
	s.active.Store(sess, struct{}{})
	s.connWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.connWG.Done()
		sess.run()
	}()
}
