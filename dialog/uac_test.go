package dialog

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
	"github.com/coresip/coresip/transport"
)

// challengeThenOKSender answers the first INVITE (no Authorization header)
// it sees with a 407, and any subsequent request carrying one with a 200,
// standing in for a proxy that challenges the dialog-creating INVITE.
type challengeThenOKSender struct {
	mu   sync.Mutex
	sent []*sip.Request
	tx   *transaction.Layer
}

func (s *challengeThenOKSender) Send(ctx context.Context, msg sip.Message, _ sip.SipAddr, _ transport.Connection) (transport.Connection, error) {
	req, ok := msg.(*sip.Request)
	if !ok {
		return nil, nil
	}
	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()
	if req.Method != sip.INVITE {
		return nil, nil
	}

	go func() {
		var res *sip.Response
		if _, hasAuth := req.Headers().Get("Proxy-Authorization"); !hasAuth {
			res = sip.NewResponseFromRequest(req, sip.StatusProxyAuthRequired, "", "")
			res.Headers().Add("Proxy-Authenticate", `Digest realm="example.com", nonce="abc123"`)
		} else {
			res = sip.NewResponseFromRequest(req, sip.StatusOK, "", NewTag())
		}
		_ = s.tx.HandleResponse(context.Background(), res)
	}()
	return nil, nil
}

func (s *challengeThenOKSender) requests() []*sip.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*sip.Request, len(s.sent))
	copy(out, s.sent)
	return out
}

// TestInviteRetriesWithAuthOnChallenge exercises the dialog-creating INVITE
// auth-retry path: a 407 to the initial INVITE must be answered with a
// second INVITE carrying a fresh branch and a Proxy-Authorization header,
// and a 200 to that retry must confirm the dialog.
func TestInviteRetriesWithAuthOnChallenge(t *testing.T) {
	t.Parallel()

	sender := &challengeThenOKSender{}
	txLayer := transaction.NewLayer(sender)
	sender.tx = txLayer

	l := NewLayer(txLayer, sender)

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dlg, res, err := l.Invite(ctx, dest, InviteOptions{
		From:       addrAddr("sip:alice@example.com"),
		To:         addrAddr("sip:bob@example.com"),
		Credential: &Credential{Username: "alice", Password: "secret", Realm: "example.com"},
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if res.StatusCode != sip.StatusOK {
		t.Fatalf("final status = %d, want 200", res.StatusCode)
	}
	if dlg == nil {
		t.Fatal("Invite returned nil dialog on 200 final response")
	}
	if got := dlg.State(); got != StateConfirmed {
		t.Fatalf("dialog state = %s, want Confirmed", got)
	}

	reqs := sender.requests()
	var invites []*sip.Request
	for _, r := range reqs {
		if r.Method == sip.INVITE {
			invites = append(invites, r)
		}
	}
	if len(invites) != 2 {
		t.Fatalf("invites sent = %d, want 2 (challenged + retry)", len(invites))
	}
	firstVia, _ := invites[0].TopVia()
	secondVia, _ := invites[1].TopVia()
	if firstVia.Branch() == secondVia.Branch() {
		t.Fatal("retry INVITE reused the original branch, want a fresh one")
	}
	if _, ok := invites[1].Headers().Get("Proxy-Authorization"); !ok {
		t.Fatal("retry INVITE carries no Proxy-Authorization header")
	}
}

// reinviteOKSender answers every INVITE it sees with an immediate 200,
// recording every message handed to it so a test can confirm an ACK
// followed the 2xx.
type reinviteOKSender struct {
	mu   sync.Mutex
	sent []sip.Message
	tx   *transaction.Layer
}

func (s *reinviteOKSender) Send(ctx context.Context, msg sip.Message, _ sip.SipAddr, _ transport.Connection) (transport.Connection, error) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	req, ok := msg.(*sip.Request)
	if !ok || req.Method != sip.INVITE {
		return nil, nil
	}
	go func() {
		res := sip.NewResponseFromRequest(req, sip.StatusOK, "", "remote-tag")
		_ = s.tx.HandleResponse(context.Background(), res)
	}()
	return nil, nil
}

func (s *reinviteOKSender) messages() []sip.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sip.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// TestReinviteSendsAckOn2xx exercises the in-dialog re-INVITE path: a 2xx
// response must be ACKed directly by the dialog (RFC 3261 §13.2.2.4), not
// left unacknowledged.
func TestReinviteSendsAckOn2xx(t *testing.T) {
	t.Parallel()

	sender := &reinviteOKSender{}
	txLayer := transaction.NewLayer(sender)
	sender.tx = txLayer

	l := NewLayer(txLayer, sender)

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	dlg := newDialog(ID{CallID: "c1", LocalTag: "local-tag", RemoteTag: "remote-tag"}, true,
		addrAddr("sip:alice@example.com"), addrAddr("sip:bob@example.com"), 1, dest, nil)
	dlg.state.Store(StateConfirmed)
	l.register(dlg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := l.Reinvite(ctx, dlg, []byte("v=0"))
	if err != nil {
		t.Fatalf("Reinvite: %v", err)
	}
	if res.StatusCode != sip.StatusOK {
		t.Fatalf("final status = %d, want 200", res.StatusCode)
	}

	var sawAck bool
	for _, msg := range sender.messages() {
		if req, ok := msg.(*sip.Request); ok && req.Method == sip.ACK {
			sawAck = true
		}
	}
	if !sawAck {
		t.Fatal("no ACK sent for the 2xx re-INVITE")
	}
}
