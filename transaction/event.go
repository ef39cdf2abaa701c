package transaction

import (
	"log/slog"

	"github.com/coresip/coresip/sip"
)

// EventKind classifies a value handed to a TU callback.
type EventKind int

const (
	// EventProvisional carries an inbound 1xx (client transactions only).
	EventProvisional EventKind = iota
	// EventFinal carries an inbound or locally-produced final response.
	EventFinal
	// EventAck carries an inbound ACK to a non-2xx final response (server
	// INVITE transactions only; ACK to a 2xx is not part of the
	// transaction per RFC 3261 §17.1.1.3 and is delivered to the dialog
	// layer directly by the endpoint).
	EventAck
	// EventCancel carries an inbound CANCEL matched to this transaction's
	// INVITE (server transactions only).
	EventCancel
	// EventTimeout reports that the transaction gave up waiting (Timer
	// B/F/H firing). An explicit Terminate call reports only
	// EventTerminated.
	EventTimeout
	// EventTransportError reports that the transport layer could not
	// deliver a message this transaction sent.
	EventTransportError
	// EventTerminated reports the transaction reached its Terminated
	// state and has been (or is about to be) removed from the registry.
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventProvisional:
		return "provisional"
	case EventFinal:
		return "final"
	case EventAck:
		return "ack"
	case EventCancel:
		return "cancel"
	case EventTimeout:
		return "timeout"
	case EventTransportError:
		return "transport_error"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is handed to a transaction's TU callback on every state-affecting
// occurrence; only the field relevant to Kind is populated.
type Event struct {
	Kind     EventKind
	Response *sip.Response
	Request  *sip.Request
	Err      error
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", e.Kind.String())}
	if e.Response != nil {
		attrs = append(attrs, slog.Int("status", int(e.Response.StatusCode)))
	}
	if e.Request != nil {
		attrs = append(attrs, slog.String("method", string(e.Request.Method)))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}
