package transport

//go:generate errtrace -w .

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/url"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
	internalws "github.com/coresip/coresip/transport/internal/ws"
)

// wsListener accepts inbound WebSocket connections, performing the "sip"
// subprotocol upgrade before framing messages the same way tcpListener
// does for plain TCP.
type wsListener struct {
	inner        net.Listener
	local        sip.SipAddr
	logger       *slog.Logger
	acceptAnyOrg bool
}

// NewWSListener wraps a raw TCP listener with the WebSocket upgrade.
// secure selects whether the resulting SipAddr is tagged Ws or Wss (the
// TLS handshake itself, if any, must already be applied to inner — see
// NewTLSListener composed with this constructor for WSS).
func NewWSListener(inner net.Listener, secure bool, acceptAnyOrigin bool, logger *slog.Logger) Listener {
	if logger == nil {
		logger = log.Default
	}
	transport := sip.WS
	if secure {
		transport = sip.WSS
	}
	return &wsListener{
		inner:        internalws.NewListener(inner, &internalws.Config{}, acceptAnyOrigin),
		local:        addrOf(transport, inner.Addr()),
		logger:       logger,
		acceptAnyOrg: acceptAnyOrigin,
	}
}

func (l *wsListener) LocalAddr() sip.SipAddr { return l.local }
func (l *wsListener) Close() error           { return errtrace.Wrap(l.inner.Close()) }

func (l *wsListener) Serve(ctx context.Context, sink chan<- Event) error {
	go func() {
		<-ctx.Done()
		_ = l.inner.Close()
	}()

	for {
		conn, err := l.inner.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errtrace.Wrap(err)
			}
		}
		transport := sip.WS
		if _, ok := conn.(*tls.Conn); ok {
			transport = sip.WSS
		}
		sc := NewStreamConnection(conn, transport, l.logger)
		emit(ctx, sink, Event{Kind: EventNew, Conn: sc})
		go func() { _ = sc.Serve(ctx, sink) }()
	}
}

// DialWS opens a client WebSocket connection to dest and performs the
// "sip" subprotocol upgrade, matching the transport layer's on-demand
// connection-open path for outbound sends.
func DialWS(ctx context.Context, dest sip.SipAddr, secure bool, tlsCfg *TLSConfig, logger *slog.Logger) (*TCPConnection, error) {
	if logger == nil {
		logger = log.Default
	}

	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	target := &url.URL{Scheme: scheme, Host: dest.HostPort()}

	dialer := internalws.NewDialer(&internalws.Config{})
	var (
		rawConn net.Conn
		err     error
	)
	if secure {
		var stdCfg *tls.Config
		if tlsCfg != nil {
			stdCfg, err = tlsCfg.toStdlib(false)
			if err != nil {
				return nil, errtrace.Wrap(err)
			}
		} else {
			stdCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rawConn, err = tls.Dial("tcp", dest.HostPort(), stdCfg)
	} else {
		var d net.Dialer
		rawConn, err = d.DialContext(ctx, "tcp", dest.HostPort())
	}
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	upgraded, err := dialer.Upgrade(rawConn, target)
	if err != nil {
		_ = rawConn.Close()
		return nil, errtrace.Wrap(err)
	}

	transport := sip.WS
	if secure {
		transport = sip.WSS
	}
	return NewStreamConnection(upgraded, transport, logger), nil
}
