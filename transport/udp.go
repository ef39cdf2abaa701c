package transport

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"net"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/sip/parser"
)

// maxUDPDatagram is the practical upper bound this stack will send in one
// UDP write before logging the RFC 3261 §18.1.1 MTU warning. It is not
// enforced; the message is sent regardless (see design notes on the open
// question of switching to TCP automatically).
const maxUDPDatagram = 1300

// UDPConnection is a single UDP socket. It demultiplexes inbound
// datagrams by source address rather than opening one socket per peer, as
// RFC 3261 §18.1 assumes for connectionless transports.
type UDPConnection struct {
	pc     net.PacketConn
	local  sip.SipAddr
	logger *slog.Logger
}

func NewUDPConnection(pc net.PacketConn, logger *slog.Logger) *UDPConnection {
	if logger == nil {
		logger = log.Default
	}
	addr := pc.LocalAddr().(*net.UDPAddr) //nolint:forcetypeassert
	return &UDPConnection{
		pc:     pc,
		local:  sip.SipAddr{Transport: sip.UDP, IP: addr.IP, Port: uint16(addr.Port)},
		logger: logger,
	}
}

func (c *UDPConnection) LocalAddr() sip.SipAddr { return c.local }

func (c *UDPConnection) Send(ctx context.Context, msg sip.Message, dest sip.SipAddr) error {
	return errtrace.Wrap(c.SendRaw(ctx, parser.SerializeDatagram(msg), dest))
}

func (c *UDPConnection) SendRaw(_ context.Context, data []byte, dest sip.SipAddr) error {
	if len(data) > maxUDPDatagram {
		c.logger.Warn("udp datagram exceeds recommended size, sending anyway",
			"size", len(data), "limit", maxUDPDatagram, "dest", dest)
	}
	addr := &net.UDPAddr{IP: dest.IP, Port: int(dest.Port)}
	_, err := c.pc.WriteTo(data, addr)
	return errtrace.Wrap(err)
}

func (c *UDPConnection) Close() error { return errtrace.Wrap(c.pc.Close()) }

// Serve reads datagrams until ctx is cancelled, emitting Incoming for each
// successfully parsed message. Malformed ones are logged and dropped (the
// socket itself stays open; a parse failure on UDP never tears down the
// connection since there is no framing to corrupt). A read error other
// than cancellation is emitted as Error and ends the loop.
func (c *UDPConnection) Serve(ctx context.Context, sink chan<- Event) error {
	go func() {
		<-ctx.Done()
		_ = c.pc.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, addr, err := c.pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				emit(ctx, sink, Event{Kind: EventClosed, Conn: c})
				return nil
			default:
				emit(ctx, sink, Event{Kind: EventError, Conn: c, Err: err})
				return errtrace.Wrap(err)
			}
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		source := sip.SipAddr{Transport: sip.UDP, IP: udpAddr.IP, Port: uint16(udpAddr.Port)}

		msg, err := parser.ParseDatagram(append([]byte(nil), buf[:n]...))
		if err != nil {
			c.logger.Warn("dropping malformed udp datagram", "source", source, "error", err)
			continue
		}
		emit(ctx, sink, Event{Kind: EventIncoming, Conn: c, Message: msg, Source: source})
	}
}

func emit(ctx context.Context, sink chan<- Event, ev Event) {
	select {
	case sink <- ev:
	case <-ctx.Done():
	}
}
