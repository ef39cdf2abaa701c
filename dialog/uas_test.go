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

// TestHandleInDialogRequestQueuesInfo exercises the in-dialog request
// hand-off: an inbound INFO must be queued on Requests rather than left
// unanswered on its server transaction, and Respond must deliver the
// application's chosen final response through that transaction.
func TestHandleInDialogRequestQueuesInfo(t *testing.T) {
	t.Parallel()

	sender := &fakeDialogSender{}
	txLayer := transaction.NewLayer(sender)
	l := NewLayer(txLayer, sender)

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	dlg := newDialog(ID{CallID: "c1", LocalTag: "local-tag", RemoteTag: "remote-tag"}, false,
		addrAddr("sip:alice@example.com"), addrAddr("sip:bob@example.com"), 1, dest, nil)
	dlg.state.Store(StateConfirmed)
	l.register(dlg)

	req := sip.NewRequest(sip.INFO, addrAddr("sip:alice@example.com").URI.Clone())
	req.Headers().Add("Call-ID", "c1")
	req.Headers().Add("From", addrAddr("sip:bob@example.com").String())
	req.Headers().Add("To", addrAddr("sip:alice@example.com").String())
	req.SetCSeq(sip.CSeq{Seq: 2, Method: sip.INFO})
	via := &sip.Via{Transport: sip.UDP, Host: "192.0.2.2"}
	via.SetBranch(sip.NewBranch())
	req.SetTopVia(via)

	source := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.2"), Port: 5060}
	tx := txLayer.NewServerTransaction(req, source, func(context.Context, transaction.Event) {})

	l.HandleInDialogRequest(context.Background(), dlg, tx, req)

	select {
	case in := <-l.Requests():
		if in.Request().Method != sip.INFO {
			t.Fatalf("queued request method = %s, want INFO", in.Request().Method)
		}
		if in.Dialog() != dlg {
			t.Fatal("queued request's Dialog() does not match the dialog it was routed to")
		}
		if err := in.Respond(context.Background(), sip.StatusOK, nil); err != nil {
			t.Fatalf("Respond: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("INFO request never queued on Requests")
	}

	var sawResponse bool
	for _, msg := range sender.messages() {
		if res, ok := msg.(*sip.Response); ok && res.StatusCode == sip.StatusOK {
			sawResponse = true
		}
	}
	if !sawResponse {
		t.Fatal("no 200 OK sent in response to the queued INFO")
	}
}

// TestHandleInDialogRequestByeTerminatesWithoutQueueing confirms BYE is
// answered immediately and never reaches the application-facing queue.
func TestHandleInDialogRequestByeTerminatesWithoutQueueing(t *testing.T) {
	t.Parallel()

	sender := &fakeDialogSender{}
	txLayer := transaction.NewLayer(sender)
	l := NewLayer(txLayer, sender)

	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.1"), Port: 5060}
	dlg := newDialog(ID{CallID: "c2", LocalTag: "local-tag", RemoteTag: "remote-tag"}, false,
		addrAddr("sip:alice@example.com"), addrAddr("sip:bob@example.com"), 1, dest, nil)
	dlg.state.Store(StateConfirmed)
	l.register(dlg)

	req := sip.NewRequest(sip.BYE, addrAddr("sip:alice@example.com").URI.Clone())
	req.Headers().Add("Call-ID", "c2")
	req.SetCSeq(sip.CSeq{Seq: 2, Method: sip.BYE})
	via := &sip.Via{Transport: sip.UDP, Host: "192.0.2.2"}
	via.SetBranch(sip.NewBranch())
	req.SetTopVia(via)

	source := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.2"), Port: 5060}
	tx := txLayer.NewServerTransaction(req, source, func(context.Context, transaction.Event) {})

	l.HandleInDialogRequest(context.Background(), dlg, tx, req)

	select {
	case <-l.Requests():
		t.Fatal("BYE must not be queued on Requests")
	case <-time.After(50 * time.Millisecond):
	}

	if got := dlg.State(); got != StateTerminated {
		t.Fatalf("dialog state after BYE = %s, want Terminated", got)
	}
}

// fakeDialogSender records every message handed to it, standing in for the
// transport layer for both the transaction layer's Sender seam and the
// dialog layer's direct-send seam.
type fakeDialogSender struct {
	mu   sync.Mutex
	sent []sip.Message
}

func (s *fakeDialogSender) Send(_ context.Context, msg sip.Message, _ sip.SipAddr, _ transport.Connection) (transport.Connection, error) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil, nil
}

func (s *fakeDialogSender) messages() []sip.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sip.Message, len(s.sent))
	copy(out, s.sent)
	return out
}
