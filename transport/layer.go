package transport

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"net"
	"time"

	"braces.dev/errtrace"
	"golang.org/x/sync/errgroup"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/internal/syncutil"
	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
)

// ErrNoRoute is returned by Send when no connection or listener can reach
// destination and none can be opened.
const ErrNoRoute errorutil.Error = "transport: no route to destination"

// Layer owns every socket the endpoint holds: a registry of connections
// (keyed by local SipAddr when added with AddConnection, by destination
// when dialed on demand by Send) and of listeners keyed by their local
// SipAddr, one logical Send, and one unified Event stream from Serve.
type Layer struct {
	logger          *slog.Logger
	conns           *syncutil.RWMap[sip.SipAddr, Connection]
	listeners       *syncutil.RWMap[sip.SipAddr, Listener]
	tlsConfig       *TLSConfig
	acceptAnyOrigin bool
	idleTimeout     time.Duration
}

type Option func(*Layer)

func WithTLSConfig(cfg *TLSConfig) Option { return func(l *Layer) { l.tlsConfig = cfg } }
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) { l.logger = logger }
}
func WithAcceptAnyOrigin(v bool) Option { return func(l *Layer) { l.acceptAnyOrigin = v } }
func WithIdleTimeout(d time.Duration) Option {
	return func(l *Layer) { l.idleTimeout = d }
}

func NewLayer(opts ...Option) *Layer {
	l := &Layer{
		logger:      log.Default,
		conns:       &syncutil.RWMap[sip.SipAddr, Connection]{},
		listeners:   &syncutil.RWMap[sip.SipAddr, Listener]{},
		idleTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddConnection registers an outbound-capable connection, keyed by its
// local address.
func (l *Layer) AddConnection(conn Connection) {
	l.conns.Set(conn.LocalAddr(), conn)
}

// AddListener registers an accepting listener, keyed by its local address.
func (l *Layer) AddListener(ls Listener) {
	l.listeners.Set(ls.LocalAddr(), ls)
}

// Send picks a connection for destination — the hint if alive, else the
// bound UDP socket for a UDP destination, else an existing or freshly
// dialed stream connection — serializes msg and writes it.
func (l *Layer) Send(ctx context.Context, msg sip.Message, dest sip.SipAddr, hint Connection) (Connection, error) {
	if hint != nil {
		if err := hint.Send(ctx, msg, dest); err == nil {
			return hint, nil
		}
	}

	if !dest.Transport.Reliable() {
		conn, err := l.connectionForUDP(dest)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		return conn, errtrace.Wrap(conn.Send(ctx, msg, dest))
	}

	conn, err := l.connectionForStream(ctx, dest)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return conn, errtrace.Wrap(conn.Send(ctx, msg, dest))
}

func (l *Layer) connectionForUDP(dest sip.SipAddr) (Connection, error) {
	for addr, conn := range l.conns.All() {
		if addr.Transport == sip.UDP && (addr.IP.To4() != nil) == (dest.IP.To4() != nil) {
			return conn, nil
		}
	}
	return nil, errtrace.Wrap(ErrNoRoute)
}

func (l *Layer) connectionForStream(ctx context.Context, dest sip.SipAddr) (Connection, error) {
	if conn, ok := l.conns.Get(dest); ok {
		return conn, nil
	}

	var (
		conn Connection
		err  error
	)
	switch dest.Transport {
	case sip.TCP:
		conn, err = dialTCP(ctx, dest, l.logger)
	case sip.TLS:
		conn, err = DialTLS(ctx, dest, l.tlsConfig, l.logger)
	case sip.WS:
		conn, err = DialWS(ctx, dest, false, l.tlsConfig, l.logger)
	case sip.WSS:
		conn, err = DialWS(ctx, dest, true, l.tlsConfig, l.logger)
	default:
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("unsupported stream transport %q", dest.Transport))
	}
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	l.conns.Set(dest, conn)
	return conn, nil
}

// Serve starts every registered listener's accept loop, feeding a single
// merged Event stream until ctx is cancelled, at which point every loop
// exits and the returned channel is closed once all of them have.
func (l *Layer) Serve(ctx context.Context) <-chan Event {
	events := make(chan Event, 64)
	g, gctx := errgroup.WithContext(ctx)

	for _, ls := range l.listeners.All() {
		ls := ls
		g.Go(func() error {
			if err := ls.Serve(ctx, events); err != nil {
				l.logger.Error("listener stopped", "local_addr", ls.LocalAddr(), "error", err)
			}
			return nil
		})
	}

	if l.idleTimeout > 0 {
		g.Go(func() error {
			l.evictIdleLoop(gctx)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(events)
	}()

	return events
}

func (l *Layer) evictIdleLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for addr, conn := range l.conns.All() {
				if !addr.Transport.Reliable() {
					continue
				}
				if sc, ok := conn.(*TCPConnection); ok && sc.Idle() > l.idleTimeout {
					l.logger.Debug("closing idle connection", "remote_addr", addr, "idle", sc.Idle())
					_ = sc.Close()
					l.conns.Del(addr)
				}
			}
		}
	}
}

func dialTCP(ctx context.Context, dest sip.SipAddr, logger *slog.Logger) (*TCPConnection, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", dest.HostPort())
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return NewStreamConnection(conn, sip.TCP, logger), nil
}
