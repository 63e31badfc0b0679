package netkit

import (
	"net"
	"sync/atomic"
)

// Conn is a message oriented connection. It is implemented by *Session and
// *Peer.
type Conn interface {
	// ID returns identifier which is unique within the process.
	ID() uint64
	RemoteAddr() net.Addr
	// Send sends p as a single message.
	Send(p []byte) error
	Close() error
}

var lastID atomic.Uint64

func nextID() uint64 {
	return lastID.Add(1)
}

// Handler receives connection events.
//
// Events of a single connection are delivered sequentially, except OnSent
// which is called by the sending goroutine. OnClose is called exactly once
// per connection and is the last event. OnError, if any, precedes it.
type Handler interface {
	OnOpen(c Conn)
	OnMessage(c Conn, p []byte)
	OnSent(c Conn, p []byte)
	OnError(c Conn, err error)
	OnClose(c Conn)
}

// NopHandler ignores all events. It may be embedded to implement only
// a part of the Handler interface.
type NopHandler struct{}

func (NopHandler) OnOpen(Conn)            {}
func (NopHandler) OnMessage(Conn, []byte) {}
func (NopHandler) OnSent(Conn, []byte)    {}
func (NopHandler) OnError(Conn, error)    {}
func (NopHandler) OnClose(Conn)           {}

// HandlerFuncs is an adapter to allow the use of ordinary functions as
// Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Open    func(c Conn)
	Message func(c Conn, p []byte)
	Sent    func(c Conn, p []byte)
	Error   func(c Conn, err error)
	Close   func(c Conn)
}

// OnOpen calls f.Open if it is set.
func (f HandlerFuncs) OnOpen(c Conn) {
	if f.Open != nil {
		f.Open(c)
	}
}

// OnMessage calls f.Message if it is set.
func (f HandlerFuncs) OnMessage(c Conn, p []byte) {
	if f.Message != nil {
		f.Message(c, p)
	}
}

// OnSent calls f.Sent if it is set.
func (f HandlerFuncs) OnSent(c Conn, p []byte) {
	if f.Sent != nil {
		f.Sent(c, p)
	}
}

// OnError calls f.Error if it is set.
func (f HandlerFuncs) OnError(c Conn, err error) {
	if f.Error != nil {
		f.Error(c, err)
	}
}

// OnClose calls f.Close if it is set.
func (f HandlerFuncs) OnClose(c Conn) {
	if f.Close != nil {
		f.Close(c)
	}
}

// EventType identifies the kind of Event.
type EventType uint8

const (
	EventOpen EventType = iota
	EventMessage
	EventSent
	EventError
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventSent:
		return "sent"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	}
	return "unknown"
}

// Event is a single connection event delivered by Events.
type Event struct {
	Type EventType
	Conn Conn
	Data []byte // message payload for EventMessage and EventSent.
	Err  error  // cause for EventError.
}

// Events is a Handler which turns events into values sent to a channel.
// It never drops events: a full channel blocks the reporting goroutine.
type Events struct {
	c chan Event
}

// NewEvents creates Events with given channel buffer size.
func NewEvents(size int) *Events {
	return &Events{c: make(chan Event, size)}
}

// C returns channel of events.
func (e *Events) C() <-chan Event { return e.c }

func (e *Events) OnOpen(c Conn) {
	e.c <- Event{Type: EventOpen, Conn: c}
}

func (e *Events) OnMessage(c Conn, p []byte) {
	e.c <- Event{Type: EventMessage, Conn: c, Data: p}
}

func (e *Events) OnSent(c Conn, p []byte) {
	e.c <- Event{Type: EventSent, Conn: c, Data: p}
}

func (e *Events) OnError(c Conn, err error) {
	e.c <- Event{Type: EventError, Conn: c, Err: err}
}

func (e *Events) OnClose(c Conn) {
	e.c <- Event{Type: EventClose, Conn: c}
}
