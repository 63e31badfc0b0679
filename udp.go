package netkit

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/pool/pbytes"
	"github.com/rs/zerolog"
)

// UDPServer receives datagrams on a single packet connection and represents
// every remote address as a Peer.
type UDPServer struct {
	handler  Handler
	config   *Config
	log      zerolog.Logger
	registry *Registry

	mu     sync.Mutex
	pc     net.PacketConn
	peers  map[string]*Peer
	closed bool // guarded by mu.
	done   chan struct{}
}

// NewUDPServer creates datagram server.
func NewUDPServer(h Handler, config *Config) (*UDPServer, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	config = config.withDefaults()

	registry := NewRegistry()
	registry.concurrency = config.BroadcastConcurrency

	return &UDPServer{
		handler:  h,
		config:   config,
		log:      config.Logger.With().Str("kind", KindUDP.String()).Logger(),
		registry: registry,
		peers:    make(map[string]*Peer),
		done:     make(chan struct{}),
	}, nil
}

// Listen announces on the local UDP address and serves it in a separate
// goroutine.
func (s *UDPServer) Listen(addr string) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	if err := s.setConn(pc); err != nil {
		pc.Close()
		return err
	}
	go s.serve(pc)
	return nil
}

// Serve receives datagrams from pc until the server is closed. After Close it
// returns ErrServerClosed.
func (s *UDPServer) Serve(pc net.PacketConn) error {
	if err := s.setConn(pc); err != nil {
		return err
	}
	return s.serve(pc)
}

func (s *UDPServer) setConn(pc net.PacketConn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.pc != nil {
		return ErrAlreadyServing
	}
	s.pc = pc
	return nil
}

// Addr returns local address or nil if server is not serving.
func (s *UDPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc == nil {
		return nil
	}
	return s.pc.LocalAddr()
}

// Registry returns registry of known peers.
func (s *UDPServer) Registry() *Registry { return s.registry }

// Broadcast sends p to all known peers.
func (s *UDPServer) Broadcast(p []byte) (int, error) {
	return s.registry.Broadcast(p)
}

// Close closes the packet connection and all peers.
func (s *UDPServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown closes the packet connection, waits for the receive loop to exit
// or for ctx to be done and then closes all peers. Peers are closed after
// the loop exits, so OnClose of a peer is never followed by its OnMessage.
func (s *UDPServer) Shutdown(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pc := s.pc
	s.mu.Unlock()

	defer s.closePeers()
	if pc == nil {
		return nil
	}

	err = pc.Close()
	select {
	case <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *UDPServer) closePeers() {
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
}

func (s *UDPServer) serve(pc net.PacketConn) error {
	defer close(s.done)

	s.log.Debug().Str("addr", pc.LocalAddr().String()).Msg("serving")

	buf := pbytes.GetLen(s.config.ReadBufferSize)
	defer pbytes.Put(buf)

	var sweep time.Time
	for {
		if t := s.config.IdleTimeout; t > 0 {
			now := time.Now()
			if now.Sub(sweep) >= t {
				s.expire(now)
				sweep = now
			}
			if err := pc.SetReadDeadline(now.Add(t)); err != nil {
				s.log.Debug().Err(err).Msg("set read deadline error")
			}
		}

		n, addr, err := pc.ReadFrom(buf)
		if n > 0 || (err == nil && addr != nil) {
			if p := s.peer(addr); p != nil {
				msg := append(make([]byte, 0, n), buf[:n]...)
				p.touch()
				s.handler.OnMessage(p, msg)
			}
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) {
				if ne.Timeout() {
					continue
				}
				if ne.Temporary() {
					s.log.Warn().Err(err).Msg("read error")
					continue
				}
			}
			s.log.Error().Err(err).Msg("read error")
			return err
		}
	}
}

// peer returns peer for given address creating it if necessary.
// It returns nil if the server is closed.
func (s *UDPServer) peer(addr net.Addr) *Peer {
	key := addr.String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if p, ok := s.peers[key]; ok {
		s.mu.Unlock()
		return p
	}
	p := &Peer{
		id:     nextID(),
		server: s,
		addr:   addr,
	}
	p.log = s.log.With().Uint64("session", p.id).Str("remote", key).Logger()
	s.peers[key] = p
	s.mu.Unlock()

	s.registry.Add(p)
	p.log.Debug().Msg("peer open")
	s.handler.OnOpen(p)
	return p
}

func (s *UDPServer) removePeer(p *Peer) {
	s.mu.Lock()
	if cur, ok := s.peers[p.addr.String()]; ok && cur == p {
		delete(s.peers, p.addr.String())
	}
	s.mu.Unlock()
	s.registry.Remove(p)
}

// expire closes peers which were silent longer than Config.IdleTimeout.
func (s *UDPServer) expire(now time.Time) {
	if s.config.IdleTimeout <= 0 {
		return
	}
	s.mu.Lock()
	var idle []*Peer
	for _, p := range s.peers {
		if now.Sub(p.lastSeen()) > s.config.IdleTimeout {
			idle = append(idle, p)
		}
	}
	s.mu.Unlock()

	for _, p := range idle {
		p.log.Debug().Msg("closing idle peer")
		p.Close()
	}
}

// Peer is a remote address which has sent datagrams to UDPServer.
type Peer struct {
	id     uint64
	server *UDPServer
	addr   net.Addr
	log    zerolog.Logger
	seen   atomic.Int64
	closed atomic.Bool
}

// ID returns peer identifier.
func (p *Peer) ID() uint64 { return p.id }

// RemoteAddr returns peer address.
func (p *Peer) RemoteAddr() net.Addr { return p.addr }

// Send sends p as a single datagram.
func (p *Peer) Send(b []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	pc := p.server.pc
	if t := p.server.config.WriteTimeout; t > 0 {
		pc.SetWriteDeadline(time.Now().Add(t))
	}
	if _, err := pc.WriteTo(b, p.addr); err != nil {
		p.log.Warn().Err(err).Msg("peer error")
		p.server.handler.OnError(p, err)
		return err
	}
	p.server.handler.OnSent(p, b)
	return nil
}

// Close forgets the peer. Datagrams later received from the same address
// create a new peer.
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.server.removePeer(p)
	p.log.Debug().Msg("peer closed")
	p.server.handler.OnClose(p)
	return nil
}

func (p *Peer) touch() {
	p.seen.Store(time.Now().UnixNano())
}

func (p *Peer) lastSeen() time.Time {
	return time.Unix(0, p.seen.Load())
}
