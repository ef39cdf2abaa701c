package dns_test

import (
	"context"
	"net"
	"testing"

	"github.com/coresip/coresip/dns"
	"github.com/coresip/coresip/sip"
)

// These cover Resolve's fast paths that never touch the network: an IP
// literal host and an explicit port both short-circuit the NAPTR/SRV
// chain per RFC 3263 §4.2. The NAPTR/SRV/A fallback chain itself needs a
// live or faked nameserver and is exercised by the wider stack's manual
// testing against real DNS rather than a unit test here.
func TestResolveIPLiteral(t *testing.T) {
	t.Parallel()

	u, err := sip.ParseURI("sip:alice@192.0.2.10:5060")
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}

	targets, err := dns.Resolve(context.Background(), nil, u)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("len(targets) = %d, want 1", len(targets))
	}
	got := targets[0]
	if got.Transport != sip.UDP {
		t.Fatalf("transport = %s, want UDP", got.Transport)
	}
	if !got.IP.Equal(net.ParseIP("192.0.2.10")) {
		t.Fatalf("ip = %s, want 192.0.2.10", got.IP)
	}
	if got.Port != 5060 {
		t.Fatalf("port = %d, want 5060", got.Port)
	}
}

func TestResolveIPLiteralRespectsExplicitTransport(t *testing.T) {
	t.Parallel()

	u, err := sip.ParseURI("sip:alice@192.0.2.10;transport=tcp")
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}

	targets, err := dns.Resolve(context.Background(), nil, u)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(targets) != 1 || targets[0].Transport != sip.TCP {
		t.Fatalf("targets = %+v, want single TCP target", targets)
	}
	if targets[0].Port != sip.TCP.DefaultPort() {
		t.Fatalf("port = %d, want default TCP port %d", targets[0].Port, sip.TCP.DefaultPort())
	}
}

func TestResolveSipsDefaultsToTLS(t *testing.T) {
	t.Parallel()

	u, err := sip.ParseURI("sips:alice@198.51.100.5")
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}

	targets, err := dns.Resolve(context.Background(), nil, u)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(targets) != 1 || targets[0].Transport != sip.TLS {
		t.Fatalf("targets = %+v, want single TLS target", targets)
	}
}
