package netkit

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultReadBufferSize       = 4096             // default size of a single read.
	DefaultMaxMessageSize       = 1 << 20          // default accumulator limit.
	DefaultIdleTimeout          = 0 * time.Second  // default idle timeout disables idle closure.
	DefaultWriteTimeout         = 5 * time.Second  // default write timeout duration.
	DefaultHandshakeTimeout     = 10 * time.Second // default opening handshake timeout.
	DefaultShutdownTimeout      = 5 * time.Second  // default shutdown timeout duration.
	DefaultMaxConns             = 0                // default max connections means no limit.
	DefaultBroadcastConcurrency = 16               // default number of parallel broadcast sends.
)

// Config holds session and server options. Zero value of every field means
// the corresponding default.
type Config struct {
	ReadBufferSize       int           `yaml:"read_buffer_size"`      // bytes requested by a single read.
	MaxMessageSize       int           `yaml:"max_message_size"`      // limit of buffered, not yet decoded bytes.
	IdleTimeout          time.Duration `yaml:"idle_timeout"`          // duration a session can remain silent.
	WriteTimeout         time.Duration `yaml:"write_timeout"`         // maximum duration of a single write.
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`     // maximum duration of WebSocket handshake.
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`      // grace period used by Close.
	MaxConns             int           `yaml:"max_conns"`             // maximum concurrent server sessions.
	BroadcastConcurrency int           `yaml:"broadcast_concurrency"` // maximum parallel sends of Broadcast.
	Protocols            []string      `yaml:"protocols"`             // WebSocket subprotocols in preference order.

	// TLS enables TLS for servers and is used by Dial for wss:// urls.
	TLS *tls.Config `yaml:"-"`

	// NetDial is used by Dial to establish transport connection. If nil,
	// net.Dialer.DialContext is used.
	NetDial func(ctx context.Context, network, addr string) (net.Conn, error) `yaml:"-"`

	// Logger receives lifecycle and error events. If nil, logging is
	// disabled.
	Logger *zerolog.Logger `yaml:"-"`
}

func (c *Config) applyDefaults() {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}

	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}

	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.BroadcastConcurrency <= 0 {
		c.BroadcastConcurrency = DefaultBroadcastConcurrency
	}

	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
}

// withDefaults returns a copy of c with defaults applied. The c may be nil.
func (c *Config) withDefaults() *Config {
	var ret Config
	if c != nil {
		ret = *c
	}
	ret.applyDefaults()
	return &ret
}
