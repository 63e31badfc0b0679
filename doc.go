/*
Package netkit implements message oriented TCP, UDP and WebSocket clients and
servers on top of net.Conn.

Every connection is represented by a Session. A session runs a single receive
goroutine which accumulates incoming bytes, cuts them into messages and
reports them to a Handler in arrival order. The way bytes turn into messages
depends on the session kind:

  KindTCP  messages are terminated by CRLF (see framing.Delimiter).
  KindWS   messages are RFC 6455 frames after the opening handshake.
  KindUDP  every datagram is a message.

A server accepts connections and keeps open sessions in a Registry:

  srv, err := netkit.NewServer(netkit.KindWS, netkit.HandlerFuncs{
	  Message: func(c netkit.Conn, p []byte) {
		  c.Send(p)
	  },
  }, nil)
  if err != nil {
	  // handle error
  }
  if err := srv.Listen(":8080"); err != nil {
	  // handle error
  }
  defer srv.Close()

A client session is made by Dial, which returns once the session is open:

  s, err := netkit.Dial(ctx, "ws://localhost:8080/", netkit.NopHandler{}, nil)
  if err != nil {
	  // handle error
  }
  defer s.Close()

  s.SendText("hello")
*/
package netkit
