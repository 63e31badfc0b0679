package ws

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
)

// Names of the handshake headers in canonical form.
const (
	headerHost        = "Host"
	headerUpgrade     = "Upgrade"
	headerConnection  = "Connection"
	headerSecVersion  = "Sec-Websocket-Version"
	headerSecProtocol = "Sec-Websocket-Protocol"
	headerSecKey      = "Sec-Websocket-Key"
	headerSecAccept   = "Sec-Websocket-Accept"
)

// Names of the headers as they are written on the wire.
const (
	headerHostCanonical        = "Host"
	headerUpgradeCanonical     = "Upgrade"
	headerConnectionCanonical  = "Connection"
	headerSecVersionCanonical  = "Sec-WebSocket-Version"
	headerSecProtocolCanonical = "Sec-WebSocket-Protocol"
	headerSecKeyCanonical      = "Sec-WebSocket-Key"
	headerSecAcceptCanonical   = "Sec-WebSocket-Accept"
)

const (
	textErrorContent = "Content-Type: text/plain; charset=utf-8\r\nX-Content-Type-Options: nosniff\r\n"
	textUpgrade      = "HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n"
	crlf             = "\r\n"
	colonAndSpace    = ": "
)

var (
	specHeaderValueUpgrade         = []byte("websocket")
	specHeaderValueConnectionLower = []byte("upgrade")
	specHeaderValueSecVersion      = []byte("13")
)

// HeaderTerminator is the sequence that ends HTTP header section.
var HeaderTerminator = []byte("\r\n\r\n")

// splitLines calls it for each CRLF terminated line of p until the first
// empty line. It returns false if the empty line was not found or if it
// has stopped the iteration.
func splitLines(p []byte, it func(i int, line []byte) bool) bool {
	for i := 0; ; i++ {
		j := bytes.Index(p, []byte(crlf))
		if j == -1 {
			return false
		}
		line := p[:j]
		p = p[j+len(crlf):]
		if len(line) == 0 {
			return true
		}
		if !it(i, line) {
			return false
		}
	}
}

func appendHeader(dst []byte, key, value string) []byte {
	dst = append(dst, key...)
	dst = append(dst, colonAndSpace...)
	dst = append(dst, value...)
	return append(dst, crlf...)
}

// writeHeader writes header line into bw. Write errors are sticky and
// reported by bw.Flush().
func writeHeader(bw *bufio.Writer, key, value string) {
	bw.WriteString(key)
	bw.WriteString(colonAndSpace)
	bw.WriteString(value)
	bw.WriteString(crlf)
}

func appendStatusLine(dst []byte, code int) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(code), 10)
	dst = append(dst, ' ')
	dst = append(dst, http.StatusText(code)...)
	return append(dst, crlf...)
}

// btsEqualFold checks s to be case insensitive equal to p.
// Note that p must be only ascii letters. That is, it must be lower case.
func btsEqualFold(s, p []byte) bool {
	if len(s) != len(p) {
		return false
	}
	for i := range s {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != p[i] {
			return false
		}
	}
	return true
}
