package netkit

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrBadScheme is returned by Dial for urls with unsupported scheme.
var ErrBadScheme = errors.New("netkit: unsupported url scheme")

// netEmptyDialer is a net.Dialer without options, used in Dial if
// Config.NetDial is not provided.
var netEmptyDialer net.Dialer

// Dial connects to the address given by rawurl and returns open session.
// Supported schemes are tcp, udp, ws and wss, for example
// "tcp://localhost:9000" or "ws://example.org/chat".
//
// Dial returns after the session is open. If the session is closed before
// opening, the termination error is returned. If ctx is done first, the
// session is closed and ctx error is returned.
func Dial(ctx context.Context, rawurl string, h Handler, config *Config) (*Session, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	config = config.withDefaults()

	dial := config.NetDial
	if dial == nil {
		dial = netEmptyDialer.DialContext
	}

	var (
		conn net.Conn
		kind Kind
		c    codec
	)
	switch u.Scheme {
	case "tcp":
		kind, c = KindTCP, &delimiterCodec{}
		conn, err = dial(ctx, "tcp", u.Host)

	case "udp":
		kind, c = KindUDP, datagramCodec{}
		conn, err = dial(ctx, "udp", u.Host)

	case "ws":
		kind, c = KindWS, newWSClientCodec(u.Host, u.RequestURI(), config.Protocols)
		_, addr := hostport(u.Host, ":80")
		conn, err = dial(ctx, "tcp", addr)

	case "wss":
		kind, c = KindWS, newWSClientCodec(u.Host, u.RequestURI(), config.Protocols)
		hostname, addr := hostport(u.Host, ":443")
		conn, err = dial(ctx, "tcp", addr)
		if err == nil {
			conn, err = tlsClient(ctx, conn, hostname, config.TLS)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrBadScheme, u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	s := newSession(conn, kind, c, h, config)
	go s.run()

	select {
	case <-s.open:
		return s, nil
	case <-s.done:
		select {
		case <-s.open:
			return s, nil
		default:
		}
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, ErrClosed
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

func hostport(host string, defaultPort string) (hostname, addr string) {
	var (
		colon   = strings.LastIndexByte(host, ':')
		bracket = strings.IndexByte(host, ']')
	)
	if colon > bracket {
		return host[:colon], host
	}
	return host, host + defaultPort
}

func tlsClient(ctx context.Context, conn net.Conn, hostname string, config *tls.Config) (net.Conn, error) {
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config = config.Clone()
		config.ServerName = strings.Trim(hostname, "[]")
	}
	tc := tls.Client(conn, config)
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tc, nil
}
