package netkit

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     uint64
	err    error
	sent   atomic.Int32
	onSend func(*fakeConn)

	mu   sync.Mutex
	text []string
}

func newFakeConn() *fakeConn { return &fakeConn{id: nextID()} }

func (c *fakeConn) ID() uint64           { return c.id }
func (c *fakeConn) RemoteAddr() net.Addr { return nil }
func (c *fakeConn) Close() error         { return nil }

func (c *fakeConn) Send(p []byte) error {
	if c.onSend != nil {
		c.onSend(c)
	}
	if c.err != nil {
		return c.err
	}
	c.sent.Add(1)
	return nil
}

type fakeTextConn struct {
	*fakeConn
}

func (c fakeTextConn) SendText(s string) error {
	c.mu.Lock()
	c.text = append(c.text, s)
	c.mu.Unlock()
	return nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeConn(), newFakeConn()
	r.Add(a)
	r.Add(b)
	require.Equal(t, 2, r.Len())

	c, ok := r.Get(a.ID())
	require.True(t, ok)
	require.Same(t, a, c)

	// Unknown connection with the same id must not remove registered one.
	require.False(t, r.Remove(&fakeConn{id: a.ID()}))
	require.True(t, r.Remove(a))
	require.False(t, r.Remove(a))

	_, ok = r.Get(a.ID())
	require.False(t, ok)
	require.Equal(t, []Conn{b}, r.Snapshot())
}

func TestRegistryBroadcast(t *testing.T) {
	r := NewRegistry()
	r.concurrency = 4

	conns := make([]*fakeConn, 50)
	for i := range conns {
		conns[i] = newFakeConn()
		r.Add(conns[i])
	}

	n, err := r.Broadcast([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, len(conns), n)
	for _, c := range conns {
		require.Equal(t, int32(1), c.sent.Load())
	}
}

func TestRegistryBroadcastSkipsRemoved(t *testing.T) {
	r := NewRegistry()
	r.concurrency = 1

	conns := make([]*fakeConn, 10)
	for i := range conns {
		conns[i] = newFakeConn()
		r.Add(conns[i])
	}

	// Sends are sequential, so the first receiver removes a member which
	// has not been reached yet.
	var (
		once   sync.Once
		victim *fakeConn
	)
	remove := func(self *fakeConn) {
		once.Do(func() {
			for _, c := range conns {
				if c != self {
					victim = c
					r.Remove(c)
					return
				}
			}
		})
	}
	for _, c := range conns {
		c.onSend = remove
	}

	n, err := r.Broadcast([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, len(conns)-1, n)
	require.NotNil(t, victim)
	_, ok := r.Get(victim.ID())
	require.False(t, ok)
	require.Equal(t, int32(0), victim.sent.Load())
	for _, c := range conns {
		if c != victim {
			require.Equal(t, int32(1), c.sent.Load())
		}
	}
}

func TestRegistryBroadcastError(t *testing.T) {
	r := NewRegistry()
	errBroken := errors.New("broken pipe")

	good := newFakeConn()
	bad := newFakeConn()
	bad.err = errBroken
	r.Add(good)
	r.Add(bad)

	n, err := r.Broadcast([]byte("hello"))
	require.ErrorIs(t, err, errBroken)
	require.Equal(t, 1, n)
	require.Equal(t, int32(1), good.sent.Load())
}

func TestRegistryBroadcastText(t *testing.T) {
	r := NewRegistry()
	plain := newFakeConn()
	text := fakeTextConn{newFakeConn()}
	r.Add(plain)
	r.Add(text)

	n, err := r.BroadcastText("hi")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, int32(1), plain.sent.Load())
	require.Equal(t, int32(0), text.sent.Load())
	require.Equal(t, []string{"hi"}, text.text)
}

func TestRegistryBroadcastEmpty(t *testing.T) {
	n, err := NewRegistry().Broadcast([]byte("nobody"))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
