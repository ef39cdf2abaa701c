// Package ws adapts github.com/gobwas/ws's frame-level API to the
// net.Conn interface the rest of the transport layer expects, so a
// WebSocket peer can be handed to the same stream-framing StreamReader
// used for TCP/TLS.
package ws

import (
	"net"
	"net/url"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// SubProtocol is the RFC 7118 §5 subprotocol name SIP-over-WebSocket peers
// negotiate during the HTTP Upgrade handshake.
const SubProtocol = "sip"

type Config struct {
	UpgradeTimeout time.Duration
}

// Dialer performs the client-side "sip" subprotocol upgrade.
type Dialer struct {
	ws.Dialer
	cfg *Config
}

func NewDialer(cfg *Config) *Dialer {
	d := &Dialer{cfg: cfg}
	d.Protocols = []string{SubProtocol}
	return d
}

func (d *Dialer) Upgrade(c net.Conn, u *url.URL) (net.Conn, error) {
	if d.cfg != nil && d.cfg.UpgradeTimeout > 0 {
		if err := c.SetDeadline(time.Now().Add(d.cfg.UpgradeTimeout)); err != nil {
			return c, err
		}
		defer c.SetDeadline(time.Time{})
	}
	_, hs, err := d.Dialer.Upgrade(c, u)
	if err != nil {
		return c, err
	}
	return &Conn{Conn: c, state: ws.StateClientSide, hs: hs}, nil
}

// Listener performs the server-side "sip" subprotocol upgrade on accept.
type Listener struct {
	net.Listener
	ws.Upgrader
	cfg          *Config
	acceptAnyOrg bool
}

func NewListener(ln net.Listener, cfg *Config, acceptAnyOrigin bool) *Listener {
	l := &Listener{Listener: ln, cfg: cfg, acceptAnyOrg: acceptAnyOrigin}
	l.Protocol = func(b []byte) bool { return string(b) == SubProtocol }
	return l
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	upgraded, err := l.Upgrade(c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return upgraded, nil
}

func (l *Listener) Upgrade(c net.Conn) (net.Conn, error) {
	if l.cfg != nil && l.cfg.UpgradeTimeout > 0 {
		if err := c.SetDeadline(time.Now().Add(l.cfg.UpgradeTimeout)); err != nil {
			return c, err
		}
		defer c.SetDeadline(time.Time{})
	}
	hs, err := l.Upgrader.Upgrade(c)
	if err != nil {
		return c, err
	}
	return &Conn{Conn: c, state: ws.StateServerSide, hs: hs}, nil
}

// Conn adapts one WebSocket connection's message-oriented Read/Write to
// io.Reader/io.Writer, framing each SIP message as exactly one text frame
// per RFC 7118 §5.
type Conn struct {
	net.Conn
	state ws.State
	hs    ws.Handshake
}

func (c *Conn) Read(b []byte) (int, error) {
	var (
		msg []byte
		err error
	)
	if c.state.ClientSide() {
		msg, _, err = wsutil.ReadServerData(c.Conn)
	} else {
		msg, _, err = wsutil.ReadClientData(c.Conn)
	}
	if err != nil {
		return 0, err
	}
	return copy(b, msg), nil
}

func (c *Conn) Write(b []byte) (int, error) {
	var err error
	if c.state.ClientSide() {
		err = wsutil.WriteClientMessage(c.Conn, ws.OpText, b)
	} else {
		err = wsutil.WriteServerMessage(c.Conn, ws.OpText, b)
	}
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
