package transport

import (
	"context"

	"github.com/coresip/coresip/sip"
)

// Connection is the capability set every concrete transport variant
// implements: send a parsed message or raw bytes to a destination, report
// its local address, and close.
type Connection interface {
	Send(ctx context.Context, msg sip.Message, dest sip.SipAddr) error
	SendRaw(ctx context.Context, data []byte, dest sip.SipAddr) error
	LocalAddr() sip.SipAddr
	Close() error
}

// Listener accepts inbound connections (stream transports) or simply
// starts reading (the UDP "listener" is also its own Connection). Serve
// blocks, emitting Events on sink, until ctx is cancelled.
type Listener interface {
	LocalAddr() sip.SipAddr
	Serve(ctx context.Context, sink chan<- Event) error
	Close() error
}
