package transport

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/sip/parser"
)

// TCPConnection wraps a single peer connection framed by the stream
// parser. TLS connections reuse this type since *tls.Conn satisfies
// net.Conn; only the SipAddr.Transport tag differs (see tls.go).
type TCPConnection struct {
	conn      net.Conn
	local     sip.SipAddr
	remote    sip.SipAddr
	logger    *slog.Logger
	lastUsed  atomic.Int64 // unix nanos
	transport sip.Transport
}

func NewStreamConnection(conn net.Conn, transport sip.Transport, logger *slog.Logger) *TCPConnection {
	if logger == nil {
		logger = log.Default
	}
	c := &TCPConnection{conn: conn, transport: transport, logger: logger}
	c.local = addrOf(transport, conn.LocalAddr())
	c.remote = addrOf(transport, conn.RemoteAddr())
	c.touch()
	return c
}

func addrOf(t sip.Transport, a net.Addr) sip.SipAddr {
	tcpAddr, ok := a.(*net.TCPAddr)
	if !ok {
		return sip.SipAddr{Transport: t}
	}
	return sip.SipAddr{Transport: t, IP: tcpAddr.IP, Port: uint16(tcpAddr.Port)}
}

func (c *TCPConnection) touch() { c.lastUsed.Store(time.Now().UnixNano()) }

// Idle reports how long it has been since the connection last sent or
// received a message; the transport layer's eviction policy (§4.2) uses
// this to close connections past idleConnTimeout.
func (c *TCPConnection) Idle() time.Duration {
	return time.Since(time.Unix(0, c.lastUsed.Load()))
}

func (c *TCPConnection) LocalAddr() sip.SipAddr  { return c.local }
func (c *TCPConnection) RemoteAddr() sip.SipAddr { return c.remote }

func (c *TCPConnection) Send(ctx context.Context, msg sip.Message, _ sip.SipAddr) error {
	return errtrace.Wrap(c.SendRaw(ctx, []byte(msg.String()), c.remote))
}

func (c *TCPConnection) SendRaw(_ context.Context, data []byte, _ sip.SipAddr) error {
	c.touch()
	_, err := c.conn.Write(data)
	return errtrace.Wrap(err)
}

func (c *TCPConnection) Close() error { return errtrace.Wrap(c.conn.Close()) }

// Serve frames messages off the connection until it is closed or ctx is
// cancelled, emitting one Incoming event per message and Closed on EOF or
// framing error.
func (c *TCPConnection) Serve(ctx context.Context, sink chan<- Event) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	sr := parser.NewStreamReader(c.conn)
	for {
		msg, err := sr.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				emit(ctx, sink, Event{Kind: EventClosed, Conn: c})
			default:
				c.logger.Debug("stream connection closed", "remote", c.remote, "error", err)
				emit(ctx, sink, Event{Kind: EventClosed, Conn: c, Err: err})
			}
			return nil
		}
		c.touch()
		emit(ctx, sink, Event{Kind: EventIncoming, Conn: c, Message: msg, Source: c.remote})
	}
}

// tcpListener accepts inbound TCP connections and hands each off to its
// own Serve loop, emitting New before the first Incoming for that peer.
type tcpListener struct {
	ln     net.Listener
	local  sip.SipAddr
	logger *slog.Logger
}

func NewTCPListener(ln net.Listener, logger *slog.Logger) Listener {
	if logger == nil {
		logger = log.Default
	}
	return &tcpListener{ln: ln, local: addrOf(sip.TCP, ln.Addr()), logger: logger}
}

func (l *tcpListener) LocalAddr() sip.SipAddr { return l.local }
func (l *tcpListener) Close() error           { return errtrace.Wrap(l.ln.Close()) }

func (l *tcpListener) Serve(ctx context.Context, sink chan<- Event) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errtrace.Wrap(err)
			}
		}
		sc := NewStreamConnection(conn, sip.TCP, l.logger)
		emit(ctx, sink, Event{Kind: EventNew, Conn: sc})
		go func() { _ = sc.Serve(ctx, sink) }()
	}
}
