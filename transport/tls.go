package transport

//go:generate errtrace -w .

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"os"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
)

// TLSConfig is the certificate/trust configuration for a TLS or WSS
// listener or outbound dial, per §6's enumerated configuration surface.
type TLSConfig struct {
	CertFile   string
	KeyFile    string
	CAFile     string
	ServerName string
	ClientAuth tls.ClientAuthType
	ALPN       []string
}

func (c *TLSConfig) toStdlib(isServer bool) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: c.ServerName,
		NextProtos: c.ALPN,
		MinVersion: tls.VersionTLS12,
	}
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("ca file contains no usable certificates"))
		}
		if isServer {
			cfg.ClientCAs = pool
			cfg.ClientAuth = c.ClientAuth
		} else {
			cfg.RootCAs = pool
		}
	}
	return cfg, nil
}

// tlsListener wraps a tcpListener's Accept loop with a TLS handshake
// before handing the connection to the same stream-framing Serve loop.
type tlsListener struct {
	ln     net.Listener
	local  sip.SipAddr
	logger *slog.Logger
}

func NewTLSListener(inner net.Listener, cfg *TLSConfig, logger *slog.Logger) (Listener, error) {
	if logger == nil {
		logger = log.Default
	}
	stdCfg, err := cfg.toStdlib(true)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	ln := tls.NewListener(inner, stdCfg)
	return &tlsListener{ln: ln, local: addrOf(sip.TLS, inner.Addr()), logger: logger}, nil
}

func (l *tlsListener) LocalAddr() sip.SipAddr { return l.local }
func (l *tlsListener) Close() error           { return errtrace.Wrap(l.ln.Close()) }

func (l *tlsListener) Serve(ctx context.Context, sink chan<- Event) error {
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
		sc := NewStreamConnection(conn, sip.TLS, l.logger)
		emit(ctx, sink, Event{Kind: EventNew, Conn: sc})
		go func() { _ = sc.Serve(ctx, sink) }()
	}
}

// DialTLS opens a client TLS connection to dest, performing the handshake
// before returning, matching the transport layer's "open a new connection"
// path for outbound sends when none exists yet (§4.2).
func DialTLS(ctx context.Context, dest sip.SipAddr, cfg *TLSConfig, logger *slog.Logger) (*TCPConnection, error) {
	if logger == nil {
		logger = log.Default
	}
	stdCfg, err := cfg.toStdlib(false)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if stdCfg.ServerName == "" {
		stdCfg.ServerName = dest.IP.String()
	}
	dialer := &tls.Dialer{Config: stdCfg}
	conn, err := dialer.DialContext(ctx, "tcp", dest.HostPort())
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return NewStreamConnection(conn, sip.TLS, logger), nil
}
