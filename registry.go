package netkit

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Registry is a set of open connections indexed by their ID.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint64]Conn

	concurrency int
}

// NewRegistry creates empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[uint64]Conn),
		concurrency: DefaultBroadcastConcurrency,
	}
}

// Add puts c into the registry. Connection with the same ID is replaced.
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	r.conns[c.ID()] = c
	r.mu.Unlock()
}

// Remove deletes c from the registry. It reports whether c was present.
func (r *Registry) Remove(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[c.ID()]; !ok || cur != c {
		return false
	}
	delete(r.conns, c.ID())
	return true
}

// Get returns connection with given id.
func (r *Registry) Get(id uint64) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	return c, ok
}

// Len returns number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns registered connections in no particular order.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		ret = append(ret, c)
	}
	return ret
}

// Broadcast sends p to every registered connection. Connections removed
// while broadcast is in progress are skipped. It returns the number of
// successful sends and the first error met.
func (r *Registry) Broadcast(p []byte) (int, error) {
	return r.broadcast(func(c Conn) error {
		return c.Send(p)
	})
}

// BroadcastText is like Broadcast but sends text messages to connections
// which distinguish them, such as WebSocket sessions.
func (r *Registry) BroadcastText(s string) (int, error) {
	p := []byte(s)
	return r.broadcast(func(c Conn) error {
		if t, ok := c.(interface{ SendText(string) error }); ok {
			return t.SendText(s)
		}
		return c.Send(p)
	})
}

func (r *Registry) broadcast(send func(Conn) error) (int, error) {
	var (
		sent atomic.Int64
		eg   errgroup.Group
	)
	if r.concurrency > 0 {
		eg.SetLimit(r.concurrency)
	}
	for _, c := range r.Snapshot() {
		c := c
		eg.Go(func() error {
			if cur, ok := r.Get(c.ID()); !ok || cur != c {
				return nil
			}
			if err := send(c); err != nil {
				return fmt.Errorf("broadcast to %d: %w", c.ID(), err)
			}
			sent.Add(1)
			return nil
		})
	}
	err := eg.Wait()
	return int(sent.Load()), err
}
