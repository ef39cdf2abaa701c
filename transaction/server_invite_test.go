package transaction_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
)

func newInviteRequest() *sip.Request {
	uri, _ := sip.ParseURI("sip:bob@example.com")
	req := sip.NewRequest(sip.INVITE, uri)
	req.Headers().Add("Call-ID", "call-invite-1")
	req.SetCSeq(sip.CSeq{Seq: 1, Method: sip.INVITE})
	via := &sip.Via{Transport: sip.TCP, Host: "192.0.2.1"}
	via.SetBranch(sip.NewBranch())
	req.SetTopVia(via)
	return req
}

// TestServerInviteTimerHStaysArmedOnReliableTransport exercises RFC 3261
// §17.2.1's Timer H on a reliable destination: unlike Timer G (retransmit)
// and Timer I (ACK absorption), Timer H detects a missing ACK and must
// stay armed even when the transport is reliable, so a late ACK still
// reaches Confirmed instead of the transaction terminating the instant the
// final response is sent.
func TestServerInviteTimerHStaysArmedOnReliableTransport(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	req := newInviteRequest()
	source := sip.SipAddr{Transport: sip.TCP, IP: net.ParseIP("192.0.2.2"), Port: 5060}
	timing := transaction.NewTiming(5*time.Millisecond, 0, 0)

	events := make(chan transaction.Event, 4)
	tx := transaction.NewServerInvite(req, source, sender, timing, nil,
		func(_ context.Context, ev transaction.Event) { events <- ev })

	res := sip.NewResponseFromRequest(req, sip.StatusBusyHere, "", "")
	if err := tx.Respond(context.Background(), res); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if got := tx.State(); got != transaction.StateCompleted {
		t.Fatalf("state after non-2xx = %s, want Completed", got)
	}

	// Timer H is 64*T1 = 320ms here; sleeping well short of that must not
	// have terminated the transaction if Timer H is correctly still armed.
	time.Sleep(20 * time.Millisecond)
	if got := tx.State(); got != transaction.StateCompleted {
		t.Fatalf("state shortly after non-2xx = %s, want still Completed (Timer H fired too early)", got)
	}

	ack := sip.NewRequest(sip.ACK, req.RequestURI.Clone())
	tx.RecvAck(context.Background(), ack)

	deadline := time.After(time.Second)
	for {
		select {
		case <-events:
		case <-deadline:
			t.Fatal("transaction never reached Terminated after ACK on a reliable transport")
		}
		if tx.State() == transaction.StateTerminated {
			return
		}
	}
}
