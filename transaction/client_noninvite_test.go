package transaction_test

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

// fakeSender records every message handed to it, standing in for a real
// transport.Layer per the teacher's Sender seam. Tests deliver responses by
// calling the transaction's RecvResponse directly.
type fakeSender struct {
	mu   sync.Mutex
	sent []sip.Message
}

func (s *fakeSender) Send(_ context.Context, msg sip.Message, _ sip.SipAddr, _ transport.Connection) (transport.Connection, error) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil, nil
}

func (s *fakeSender) last() sip.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func newOptionsRequest() *sip.Request {
	uri, _ := sip.ParseURI("sip:bob@example.com")
	req := sip.NewRequest(sip.OPTIONS, uri)
	req.Headers().Add("Call-ID", "call-1")
	req.SetCSeq(sip.CSeq{Seq: 1, Method: sip.OPTIONS})
	via := &sip.Via{Transport: sip.UDP, Host: "192.0.2.1"}
	via.SetBranch(sip.NewBranch())
	req.SetTopVia(via)
	return req
}

func TestClientNonInviteOptionsFinalResponse(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	req := newOptionsRequest()
	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.2"), Port: 5060}

	events := make(chan transaction.Event, 4)
	tx, err := transaction.NewClientNonInvite(context.Background(), req, dest, sender, transaction.Timing{}, nil,
		func(_ context.Context, ev transaction.Event) { events <- ev })
	if err != nil {
		t.Fatalf("NewClientNonInvite: %v", err)
	}

	if got := sender.last(); got != sip.Message(req) {
		t.Fatalf("initial send = %v, want the OPTIONS request itself", got)
	}
	if got := tx.State(); got != transaction.StateTrying {
		t.Fatalf("initial state = %s, want Trying", got)
	}

	res := sip.NewResponseFromRequest(req, sip.StatusOK, "", "")
	tx.RecvResponse(context.Background(), res)

	select {
	case ev := <-events:
		if ev.Kind != transaction.EventFinal {
			t.Fatalf("event kind = %s, want final", ev.Kind)
		}
		if ev.Response.StatusCode != sip.StatusOK {
			t.Fatalf("response status = %d, want 200", ev.Response.StatusCode)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered for final response")
	}

	if got := tx.State(); got != transaction.StateCompleted {
		t.Fatalf("state after 200 = %s, want Completed", got)
	}
}

func TestClientNonInviteProvisionalThenFinal(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	req := newOptionsRequest()
	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.2"), Port: 5060}

	events := make(chan transaction.Event, 4)
	tx, err := transaction.NewClientNonInvite(context.Background(), req, dest, sender, transaction.Timing{}, nil,
		func(_ context.Context, ev transaction.Event) { events <- ev })
	if err != nil {
		t.Fatalf("NewClientNonInvite: %v", err)
	}

	tx.RecvResponse(context.Background(), sip.NewResponseFromRequest(req, sip.StatusTrying, "", ""))
	select {
	case ev := <-events:
		if ev.Kind != transaction.EventProvisional {
			t.Fatalf("event kind = %s, want provisional", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no event for provisional response")
	}
	if got := tx.State(); got != transaction.StateProceeding {
		t.Fatalf("state after 100 = %s, want Proceeding", got)
	}

	tx.RecvResponse(context.Background(), sip.NewResponseFromRequest(req, sip.StatusOK, "", ""))
	select {
	case ev := <-events:
		if ev.Kind != transaction.EventFinal {
			t.Fatalf("event kind = %s, want final", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no event for final response")
	}
}
