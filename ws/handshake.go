package ws

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/gobwas/httphead"
	"github.com/gobwas/pool/pbufio"
)

// Errors used by both client and server when preparing WebSocket handshake.
var (
	ErrHandshakeBadProtocol = fmt.Errorf("handshake error: bad HTTP protocol version")
	ErrHandshakeBadMethod   = fmt.Errorf("handshake error: bad HTTP request method")
	ErrHandshakeBadHost     = fmt.Errorf("handshake error: bad %q header", headerHost)
	ErrHandshakeBadUpgrade  = fmt.Errorf("handshake error: bad %q header", headerUpgrade)
	ErrHandshakeBadConnection = fmt.Errorf(
		"handshake error: bad %q header", headerConnection,
	)
	ErrHandshakeBadSecAccept = fmt.Errorf(
		"handshake error: bad %q header", headerSecAcceptCanonical,
	)
	ErrHandshakeBadSecKey = fmt.Errorf(
		"handshake error: bad %q header", headerSecKeyCanonical,
	)
	ErrHandshakeBadSecVersion = fmt.Errorf(
		"handshake error: bad %q header", headerSecVersionCanonical,
	)
	ErrHandshakeBadSubProtocol = fmt.Errorf(
		"handshake error: unexpected protocol in %q header", headerSecProtocolCanonical,
	)
	ErrMalformedRequest  = fmt.Errorf("malformed HTTP request")
	ErrMalformedResponse = fmt.Errorf("malformed HTTP response")
)

// StatusError contains an unexpected status-line code from the server.
type StatusError int

func (s StatusError) Error() string {
	return "unexpected HTTP response status: " + strconv.Itoa(int(s))
}

// Handshake represents handshake result.
type Handshake struct {
	// Protocol is the subprotocol selected during handshake.
	Protocol string
}

// UpgradeRequest contains parts of client opening handshake which are
// relevant for the server.
type UpgradeRequest struct {
	URI       string
	Host      string
	Key       string
	Protocols []string
}

// AppendUpgradeRequest appends client opening handshake to dst.
// Nonce is the Sec-WebSocket-Key value, usually made by NewNonce().
func AppendUpgradeRequest(dst []byte, host, uri, nonce string, protocols []string) []byte {
	if uri == "" {
		uri = "/"
	}
	dst = append(dst, "GET "...)
	dst = append(dst, uri...)
	dst = append(dst, " HTTP/1.1"+crlf...)
	dst = appendHeader(dst, headerHostCanonical, host)
	dst = appendHeader(dst, headerUpgradeCanonical, "websocket")
	dst = appendHeader(dst, headerConnectionCanonical, "Upgrade")
	dst = appendHeader(dst, headerSecKeyCanonical, nonce)
	dst = appendHeader(dst, headerSecVersionCanonical, "13")
	if len(protocols) > 0 {
		dst = appendHeader(dst, headerSecProtocolCanonical, strings.Join(protocols, ", "))
	}
	return append(dst, crlf...)
}

// WriteUpgradeRequest writes client opening handshake to w.
func WriteUpgradeRequest(w io.Writer, host, uri, nonce string, protocols []string) error {
	if uri == "" {
		uri = "/"
	}
	bw := pbufio.GetWriter(w, 512)
	defer pbufio.PutWriter(bw)

	bw.WriteString("GET ")
	bw.WriteString(uri)
	bw.WriteString(" HTTP/1.1" + crlf)
	writeHeader(bw, headerHostCanonical, host)
	writeHeader(bw, headerUpgradeCanonical, "websocket")
	writeHeader(bw, headerConnectionCanonical, "Upgrade")
	writeHeader(bw, headerSecKeyCanonical, nonce)
	writeHeader(bw, headerSecVersionCanonical, "13")
	if len(protocols) > 0 {
		writeHeader(bw, headerSecProtocolCanonical, strings.Join(protocols, ", "))
	}
	bw.WriteString(crlf)
	return bw.Flush()
}

// ParseUpgradeResponse parses server opening handshake. The p argument must
// contain response bytes up to and including HeaderTerminator. Nonce is the
// value previously sent in Sec-WebSocket-Key header and protocols is the list
// of requested subprotocols.
func ParseUpgradeResponse(p []byte, nonce string, protocols []string) (hs Handshake, err error) {
	// headerSeen constants helps to report whether or not some header was seen
	// during reading response bytes.
	const (
		headerSeenUpgrade = 1 << iota
		headerSeenConnection
		headerSeenSecAccept

		// headerSeenAll is the value that we expect to receive at the end of
		// headers read/parse loop.
		headerSeenAll = 0 |
			headerSeenUpgrade |
			headerSeenConnection |
			headerSeenSecAccept
	)

	// Parse a copy of p because header line parsing canonicalizes keys in
	// place.
	p = append([]byte(nil), p...)

	var headerSeen byte
	ok := splitLines(p, func(i int, line []byte) bool {
		if i == 0 {
			// Read HTTP status line like "HTTP/1.1 101 Switching Protocols".
			resp, ok := httphead.ParseResponseLine(line)
			if !ok {
				err = ErrMalformedResponse
				return false
			}
			// Even if RFC says "1.1 or higher" without mentioning the part of the
			// version, we apply it only to minor part.
			if resp.Version.Major != 1 || resp.Version.Minor < 1 {
				err = ErrHandshakeBadProtocol
				return false
			}
			if resp.Status != http.StatusSwitchingProtocols {
				err = StatusError(resp.Status)
				return false
			}
			return true
		}

		k, v, ok := httphead.ParseHeaderLine(line)
		if !ok {
			err = ErrMalformedResponse
			return false
		}

		switch textproto.CanonicalMIMEHeaderKey(string(k)) {
		case headerUpgrade:
			headerSeen |= headerSeenUpgrade
			if !btsEqualFold(v, specHeaderValueUpgrade) {
				err = ErrHandshakeBadUpgrade
				return false
			}

		case headerConnection:
			headerSeen |= headerSeenConnection
			if !btsHasToken(v, specHeaderValueConnectionLower) {
				err = ErrHandshakeBadConnection
				return false
			}

		case headerSecAccept:
			headerSeen |= headerSeenSecAccept
			if !checkAcceptFromNonce(v, nonce) {
				err = ErrHandshakeBadSecAccept
				return false
			}

		case headerSecProtocol:
			// RFC6455 1.3:
			//   "The server selects one or none of the acceptable protocols
			//   and echoes that value in its handshake to indicate that it has
			//   selected that protocol."
			for _, want := range protocols {
				if string(v) == want {
					hs.Protocol = want
					break
				}
			}
			if hs.Protocol == "" {
				// Server echoed subprotocol that is not present in client
				// requested protocols.
				err = ErrHandshakeBadSubProtocol
				return false
			}
		}
		return true
	})
	if err != nil {
		return hs, err
	}
	if !ok {
		return hs, ErrMalformedResponse
	}
	if headerSeen != headerSeenAll {
		switch {
		case headerSeen&headerSeenUpgrade == 0:
			err = ErrHandshakeBadUpgrade
		case headerSeen&headerSeenConnection == 0:
			err = ErrHandshakeBadConnection
		default:
			err = ErrHandshakeBadSecAccept
		}
	}
	return hs, err
}

// ParseUpgradeRequest parses client opening handshake. The p argument must
// contain request bytes up to and including HeaderTerminator.
func ParseUpgradeRequest(p []byte) (req UpgradeRequest, err error) {
	const (
		headerSeenHost = 1 << iota
		headerSeenUpgrade
		headerSeenConnection
		headerSeenSecVersion
		headerSeenSecKey

		headerSeenAll = 0 |
			headerSeenHost |
			headerSeenUpgrade |
			headerSeenConnection |
			headerSeenSecVersion |
			headerSeenSecKey
	)

	p = append([]byte(nil), p...)

	var headerSeen byte
	ok := splitLines(p, func(i int, line []byte) bool {
		if i == 0 {
			// Parse request line data like HTTP version, uri and method.
			rl, ok := httphead.ParseRequestLine(line)
			if !ok {
				err = ErrMalformedRequest
				return false
			}
			// See https://tools.ietf.org/html/rfc6455#section-4.1
			// The method of the request MUST be GET, and the HTTP version MUST be at least 1.1.
			if string(rl.Method) != http.MethodGet {
				err = ErrHandshakeBadMethod
				return false
			}
			if rl.Version.Major < 1 || (rl.Version.Major == 1 && rl.Version.Minor < 1) {
				err = ErrHandshakeBadProtocol
				return false
			}
			req.URI = string(rl.URI)
			return true
		}

		k, v, ok := httphead.ParseHeaderLine(line)
		if !ok {
			err = ErrMalformedRequest
			return false
		}

		switch textproto.CanonicalMIMEHeaderKey(string(k)) {
		case headerHost:
			headerSeen |= headerSeenHost
			req.Host = string(v)

		case headerUpgrade:
			headerSeen |= headerSeenUpgrade
			if !btsHasToken(v, specHeaderValueUpgrade) {
				err = ErrHandshakeBadUpgrade
				return false
			}

		case headerConnection:
			headerSeen |= headerSeenConnection
			if !btsHasToken(v, specHeaderValueConnectionLower) {
				err = ErrHandshakeBadConnection
				return false
			}

		case headerSecKey:
			headerSeen |= headerSeenSecKey
			req.Key = string(bytes.TrimSpace(v))
			if req.Key == "" {
				err = ErrHandshakeBadSecKey
				return false
			}

		case headerSecVersion:
			headerSeen |= headerSeenSecVersion
			if !bytes.Equal(v, specHeaderValueSecVersion) {
				err = ErrHandshakeBadSecVersion
				return false
			}

		case headerSecProtocol:
			httphead.ScanTokens(v, func(token []byte) bool {
				req.Protocols = append(req.Protocols, string(token))
				return true
			})
		}
		return true
	})
	if err != nil {
		return req, err
	}
	if !ok {
		return req, ErrMalformedRequest
	}
	if headerSeen != headerSeenAll {
		switch {
		case headerSeen&headerSeenSecKey == 0:
			err = ErrHandshakeBadSecKey
		case headerSeen&headerSeenUpgrade == 0:
			err = ErrHandshakeBadUpgrade
		case headerSeen&headerSeenConnection == 0:
			err = ErrHandshakeBadConnection
		case headerSeen&headerSeenSecVersion == 0:
			err = ErrHandshakeBadSecVersion
		default:
			err = ErrHandshakeBadHost
		}
	}
	return req, err
}

// AppendUpgradeResponse appends successful server opening handshake to dst.
// Empty protocol means that no subprotocol was selected.
func AppendUpgradeResponse(dst []byte, accept, protocol string) []byte {
	dst = append(dst, textUpgrade...)
	if protocol != "" {
		dst = appendHeader(dst, headerSecProtocolCanonical, protocol)
	}
	dst = appendHeader(dst, headerSecAcceptCanonical, accept)
	return append(dst, crlf...)
}

// AppendErrorResponse appends HTTP response describing handshake failure to
// dst.
func AppendErrorResponse(dst []byte, err error) []byte {
	code := http.StatusBadRequest
	if errors.Is(err, ErrHandshakeBadSecVersion) {
		code = http.StatusUpgradeRequired
	}
	body := err.Error()

	dst = appendStatusLine(dst, code)
	dst = append(dst, textErrorContent...)
	if code == http.StatusUpgradeRequired {
		dst = appendHeader(dst, headerSecVersionCanonical, "13")
	}
	dst = appendHeader(dst, "Content-Length", strconv.Itoa(len(body)))
	dst = append(dst, crlf...)
	return append(dst, body...)
}

// SelectProtocol returns the first of offered subprotocols which is present
// in supported list. It returns empty string if there is no such protocol.
func SelectProtocol(offered, supported []string) string {
	for _, o := range offered {
		for _, s := range supported {
			if o == s {
				return o
			}
		}
	}
	return ""
}

// btsHasToken reports whether comma separated list of tokens h contains
// token tok case insensitively. Note that tok must be in lower case.
func btsHasToken(h, tok []byte) (has bool) {
	httphead.ScanTokens(h, func(v []byte) bool {
		has = btsEqualFold(v, tok)
		return !has
	})
	return has
}
