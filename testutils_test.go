package netkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const eventTimeout = 2 * time.Second

func testConfig() *Config {
	return &Config{
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func echoHandler() Handler {
	return HandlerFuncs{
		Message: func(c Conn, p []byte) {
			c.Send(p)
		},
	}
}

func startServer(t *testing.T, kind Kind, h Handler, config *Config) *Server {
	t.Helper()
	srv, err := NewServer(kind, h, config)
	require.NoError(t, err)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	t.Cleanup(func() { srv.Close() })
	return srv
}

// waitEvent returns the next event of given type skipping other events.
func waitEvent(t *testing.T, e *Events, typ EventType) Event {
	t.Helper()
	timeout := time.After(eventTimeout)
	for {
		select {
		case ev := <-e.C():
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s event", typ)
			return Event{}
		}
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(eventTimeout):
		t.Fatalf("timeout waiting for session %d to finish", s.ID())
	}
}

// recorder keeps names of received events in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.events = append(r.events, name)
	r.mu.Unlock()
}

func (r *recorder) handler() HandlerFuncs {
	return HandlerFuncs{
		Open:    func(Conn) { r.add("open") },
		Message: func(Conn, []byte) { r.add("message") },
		Error: func(_ Conn, err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error")
		},
		Close: func(Conn) { r.add("close") },
	}
}

func (r *recorder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]error(nil), r.errs...)
}
