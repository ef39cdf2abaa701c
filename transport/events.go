// Package transport multiplexes UDP, TCP, TLS and WebSocket connections
// behind one send function and one event stream, per the transport layer
// design in the system specification.
package transport

import (
	"log/slog"

	"github.com/coresip/coresip/sip"
)

// EventKind discriminates the variants of Event.
type EventKind int

const (
	EventNew EventKind = iota
	EventIncoming
	EventClosed
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "new"
	case EventIncoming:
		return "incoming"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the transport layer's unified notification: a new connection
// accepted, a message received, a connection closed, or an error on a
// connection.
type Event struct {
	Kind    EventKind
	Conn    Connection
	Message sip.Message
	Source  sip.SipAddr
	Err     error
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", e.Kind.String())}
	if e.Conn != nil {
		attrs = append(attrs, slog.Any("local_addr", e.Conn.LocalAddr()))
	}
	if e.Message != nil {
		attrs = append(attrs, slog.Any("message", e.Message))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	return slog.GroupValue(attrs...)
}
