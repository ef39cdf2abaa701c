// Package sip implements the SIP (RFC 3261) message model: URIs, headers,
// requests and responses, and the small set of helpers the transport,
// transaction and dialog layers need to inspect and mutate them.
package sip

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Transport identifies the wire transport a message travels over or a
// SipAddr targets.
type Transport string

const (
	UDP Transport = "UDP"
	TCP Transport = "TCP"
	TLS Transport = "TLS"
	WS  Transport = "WS"
	WSS Transport = "WSS"
)

// Reliable reports whether the transport is stream-oriented and therefore
// exempt from the retransmission timers of RFC 3261 §17.
func (t Transport) Reliable() bool {
	switch t {
	case TCP, TLS, WS, WSS:
		return true
	default:
		return false
	}
}

// Network returns the value suitable for net.Dial's network argument.
func (t Transport) Network() string {
	switch t {
	case UDP:
		return "udp"
	case TCP, WS:
		return "tcp"
	case TLS, WSS:
		return "tcp"
	default:
		return "udp"
	}
}

// DefaultPort returns the RFC 3261 §19.1.2 default port for the transport.
func (t Transport) DefaultPort() uint16 {
	if t == TLS || t == WSS {
		return 5061
	}
	return 5060
}

func ParseTransport(s string) (Transport, bool) {
	switch strings.ToUpper(s) {
	case "UDP":
		return UDP, true
	case "TCP":
		return TCP, true
	case "TLS":
		return TLS, true
	case "WS":
		return WS, true
	case "WSS":
		return WSS, true
	default:
		return "", false
	}
}

// SipAddr is the destination triple (transport, ip, port) used as a
// connection registry key and as a transaction's next hop.
type SipAddr struct {
	Transport Transport
	IP        net.IP
	Port      uint16
}

// String renders the address as "transport ip:port", e.g. "UDP 127.0.0.1:5060".
func (a SipAddr) String() string {
	return fmt.Sprintf("%s %s", a.Transport, net.JoinHostPort(a.IP.String(), strconv.Itoa(int(a.Port))))
}

// HostPort renders the "ip:port" portion, suitable for net.Dial.
func (a SipAddr) HostPort() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(int(a.Port)))
}

// Equal reports whether two addresses match by all three fields.
func (a SipAddr) Equal(b SipAddr) bool {
	return a.Transport == b.Transport && a.Port == b.Port && a.IP.Equal(b.IP)
}
