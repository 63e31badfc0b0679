package netkit

import (
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startUDPServer(t *testing.T, h Handler, config *Config) *UDPServer {
	t.Helper()
	srv, err := NewUDPServer(h, config)
	require.NoError(t, err)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestUDPEcho(t *testing.T) {
	srv := startUDPServer(t, echoHandler(), testConfig())

	events := NewEvents(64)
	s, err := Dial(testContext(t), "udp://"+srv.Addr().String(), events, testConfig())
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, KindUDP, s.Kind())

	// Delimiters are not interpreted in datagrams.
	for _, msg := range []string{"hello", "a\r\nb\r\n", "world"} {
		require.NoError(t, s.SendText(msg))
		ev := waitEvent(t, events, EventMessage)
		require.Equal(t, msg, string(ev.Data))
	}
	require.Equal(t, 1, srv.Registry().Len())
}

func TestUDPEmptyDatagram(t *testing.T) {
	events := NewEvents(64)
	srv := startUDPServer(t, events, testConfig())

	conn, err := net.Dial("udp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(nil)
	require.NoError(t, err)

	open := waitEvent(t, events, EventOpen)
	ev := waitEvent(t, events, EventMessage)
	require.Empty(t, ev.Data)
	require.Equal(t, open.Conn, ev.Conn)
}

func TestUDPPeers(t *testing.T) {
	events := NewEvents(64)
	srv := startUDPServer(t, events, testConfig())

	var conns []net.Conn
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("udp", srv.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		conns = append(conns, conn)

		// Repeated datagrams from one address belong to one peer.
		for j := 0; j < 2; j++ {
			_, err = conn.Write([]byte("hi"))
			require.NoError(t, err)
			waitEvent(t, events, EventMessage)
		}
	}
	require.Equal(t, 3, srv.Registry().Len())

	n, err := srv.Broadcast([]byte("news"))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(eventTimeout)))
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "news", string(buf[:n]))
	}

	var ids []uint64
	for _, c := range srv.Registry().Snapshot() {
		ids = append(ids, c.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	peer, ok := srv.Registry().Get(ids[0])
	require.True(t, ok)
	require.NoError(t, peer.Close())
	require.NoError(t, peer.Close())

	ev := waitEvent(t, events, EventClose)
	require.Equal(t, peer, ev.Conn)
	require.Equal(t, 2, srv.Registry().Len())
	require.ErrorIs(t, peer.Send([]byte("late")), ErrClosed)
}

func TestUDPIdlePeersExpire(t *testing.T) {
	config := testConfig()
	config.IdleTimeout = 50 * time.Millisecond

	events := NewEvents(64)
	srv := startUDPServer(t, events, config)

	conn, err := net.Dial("udp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	open := waitEvent(t, events, EventOpen)
	ev := waitEvent(t, events, EventClose)
	require.Equal(t, open.Conn, ev.Conn)
	require.Equal(t, 0, srv.Registry().Len())
}

func TestUDPServerClose(t *testing.T) {
	events := NewEvents(64)
	srv, err := NewUDPServer(events, testConfig())
	require.NoError(t, err)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(pc) }()

	conn, err := net.Dial("udp", pc.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)
	waitEvent(t, events, EventMessage)

	require.NoError(t, srv.Close())
	waitEvent(t, events, EventClose)

	select {
	case err := <-served:
		require.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(eventTimeout):
		t.Fatal("Serve did not return")
	}
	require.ErrorIs(t, srv.Listen("127.0.0.1:0"), ErrServerClosed)
}

func TestUDPServerCloseWaitsForHandler(t *testing.T) {
	var (
		mu      sync.Mutex
		events  []string
		started = make(chan struct{})
	)
	add := func(name string) {
		mu.Lock()
		events = append(events, name)
		mu.Unlock()
	}
	srv := startUDPServer(t, HandlerFuncs{
		Open: func(Conn) { add("open") },
		Message: func(Conn, []byte) {
			close(started)
			time.Sleep(20 * time.Millisecond)
			add("message")
		},
		Close: func(Conn) { add("close") },
	}, testConfig())

	conn, err := net.Dial("udp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(eventTimeout):
		t.Fatal("no message received")
	}
	require.NoError(t, srv.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"open", "message", "close"}, events)
}
