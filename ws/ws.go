/*
Package ws implements the base framing and opening handshake of the WebSocket
protocol as specified in RFC 6455.

The package provides low-level building blocks and does not own connections.
Frames are encoded into byte slices and decoded from a framing.Accumulator, so
a caller can feed arbitrarily chunked stream data and take complete frames out
of it:

  acc := framing.NewAccumulator(1 << 20)
  for {
	  n, err := conn.Read(buf)
	  if err != nil {
		  // handle err
	  }
	  acc.Append(buf[:n])
	  for {
		  f, ok, err := ws.TryDecodeFrame(acc)
		  if err != nil {
			  // handle err
		  }
		  if !ok {
			  break
		  }
		  // f.Payload is already unmasked.
	  }
	  if err := acc.Check(); err != nil {
		  // peer sends a frame larger than the limit
	  }
  }

Outgoing frames are built with EncodeFrame, which masks a copy of the payload
when asked to:

  bts := ws.EncodeFrame(ws.OpText, []byte("hello, world!"), true)
  if _, err := conn.Write(bts); err != nil {
	  // handle err
  }

Stream friendly helpers are available too:

  header, err := ws.ReadHeader(conn)
  if err != nil {
	  // handle err
  }

  io.CopyN(io.Discard, conn, header.Length)

The opening handshake is split into pure functions working on raw header
bytes. A client writes AppendUpgradeRequest output and passes the response up
to HeaderTerminator to ParseUpgradeResponse. A server passes the request to
ParseUpgradeRequest and answers with AppendUpgradeResponse or
AppendErrorResponse.
*/
package ws
