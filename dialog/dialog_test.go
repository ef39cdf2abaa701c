package dialog

import (
	"context"
	"net"
	"testing"

	"github.com/coresip/coresip/sip"
)

func addrAddr(uri string) *sip.NameAddr {
	u, err := sip.ParseURI(uri)
	if err != nil {
		panic(err)
	}
	return &sip.NameAddr{URI: u}
}

func TestDialogAcceptIncomingSeqOrdering(t *testing.T) {
	t.Parallel()

	local := addrAddr("sip:alice@example.com")
	remote := addrAddr("sip:bob@example.com")
	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	d := newDialog(ID{CallID: "c1"}, true, local, remote, 1, dest, nil)

	if err := d.acceptIncomingSeq(1); err != nil {
		t.Fatalf("first in-order request rejected: %v", err)
	}
	if err := d.acceptIncomingSeq(2); err != nil {
		t.Fatalf("second in-order request rejected: %v", err)
	}
	if err := d.acceptIncomingSeq(2); err == nil {
		t.Fatal("replayed CSeq accepted, want ErrStaleRequest")
	}
	if err := d.acceptIncomingSeq(1); err == nil {
		t.Fatal("out-of-order CSeq accepted, want ErrStaleRequest")
	}
}

func TestDialogNextLocalSeqIncrements(t *testing.T) {
	t.Parallel()

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	d := newDialog(ID{CallID: "c1"}, true, addrAddr("sip:a@x"), addrAddr("sip:b@x"), 1, dest, nil)

	if got := d.nextLocalSeq(); got != 2 {
		t.Fatalf("nextLocalSeq() = %d, want 2", got)
	}
	if got := d.nextLocalSeq(); got != 3 {
		t.Fatalf("nextLocalSeq() = %d, want 3", got)
	}
}

func TestDialogTerminateClosesDoneOnce(t *testing.T) {
	t.Parallel()

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	d := newDialog(ID{CallID: "c1"}, true, addrAddr("sip:a@x"), addrAddr("sip:b@x"), 1, dest, nil)

	d.terminate(context.Background())
	d.terminate(context.Background()) // must not panic on double-close

	select {
	case <-d.Done():
	default:
		t.Fatal("Done() channel not closed after terminate")
	}
	if got := d.State(); got != StateTerminated {
		t.Fatalf("State() = %s, want Terminated", got)
	}
}

func TestBuildRequestLooseRouting(t *testing.T) {
	t.Parallel()

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	d := newDialog(ID{CallID: "c1", LocalTag: "local-tag", RemoteTag: "remote-tag"}, true,
		addrAddr("sip:alice@a.example.com"), addrAddr("sip:bob@b.example.com"), 1, dest, nil)
	d.setRemoteTarget(mustURI("sip:bob@b.example.com"))
	d.setRouteSet([]*sip.NameAddr{addrAddr("sip:proxy1.example.com;lr")})

	req := d.buildRequest(sip.BYE)

	if req.RequestURI.Host != "b.example.com" {
		t.Fatalf("loose-routed Request-URI host = %q, want b.example.com", req.RequestURI.Host)
	}
	routes := req.Headers().GetAll("Route")
	if len(routes) != 1 {
		t.Fatalf("route count = %d, want 1", len(routes))
	}
}

func TestBuildRequestStrictRouting(t *testing.T) {
	t.Parallel()

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	d := newDialog(ID{CallID: "c1", LocalTag: "local-tag", RemoteTag: "remote-tag"}, true,
		addrAddr("sip:alice@a.example.com"), addrAddr("sip:bob@b.example.com"), 1, dest, nil)
	d.setRemoteTarget(mustURI("sip:bob@b.example.com"))
	d.setRouteSet([]*sip.NameAddr{addrAddr("sip:strictproxy.example.com")})

	req := d.buildRequest(sip.BYE)

	if req.RequestURI.Host != "strictproxy.example.com" {
		t.Fatalf("strict-routed Request-URI host = %q, want strictproxy.example.com", req.RequestURI.Host)
	}
	routes := req.Headers().GetAll("Route")
	if len(routes) != 1 {
		t.Fatalf("route count = %d, want 1 (original target appended)", len(routes))
	}
}

func mustURI(raw string) *sip.URI {
	u, err := sip.ParseURI(raw)
	if err != nil {
		panic(err)
	}
	return u
}
