package dialog

//go:generate errtrace -w .

import (
	"context"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
)

// HandleIncomingInvite is called by the endpoint for every server
// transaction it creates for an out-of-dialog INVITE. It is queued on the
// Incoming channel for the application to Accept or Reject.
func (l *Layer) HandleIncomingInvite(tx transaction.ServerTransaction, req *sip.Request, source sip.SipAddr) {
	in := &IncomingInvite{l: l, tx: tx, req: req, source: source}
	select {
	case l.incoming <- in:
	default:
		l.logger.Warn("incoming invite queue full, rejecting", "call_id", firstCallID(req))
		_ = in.Reject(context.Background(), sip.StatusServiceUnavailable)
	}
}

func firstCallID(req *sip.Request) string {
	id, _ := req.CallID()
	return id
}

// Accept answers the offer with status (a 1xx or 2xx) and body. A 2xx
// creates and registers a Confirmed dialog; a 1xx creates and registers
// an Early one without ending the transaction.
func (in *IncomingInvite) Accept(ctx context.Context, status sip.StatusCode, body []byte) (*Dialog, error) {
	localTag := NewTag()
	res := sip.NewResponseFromRequest(in.req, status, "", localTag)
	res.SetBody(body)

	callID, _ := in.req.CallID()
	from, _ := in.req.From()
	to, _ := res.To()

	if in.l.contact != nil {
		res.Headers().Add("Contact", in.l.contact.String())
	}

	if err := in.tx.Respond(ctx, res); err != nil {
		return nil, errtrace.Wrap(err)
	}

	if !status.Provisional() && !status.Success() {
		return nil, nil
	}

	id := ID{CallID: callID, LocalTag: to.Tag(), RemoteTag: from.Tag()}
	cseq, _ := in.req.CSeq()
	dlg := newDialog(id, false, to, from, cseq.Seq, in.source, in.l.logger)
	if cs, ok := in.req.Contact(); ok {
		dlg.setRemoteTarget(cs.URI)
	}
	dlg.setRouteSet(in.req.RecordRouteSet())
	if status.Success() {
		dlg.state.Store(StateConfirmed)
	}
	in.l.register(dlg)
	return dlg, nil
}

// Reject answers the offer with a non-2xx final response, without
// creating a dialog.
func (in *IncomingInvite) Reject(ctx context.Context, status sip.StatusCode) error {
	res := sip.NewResponseFromRequest(in.req, status, "", "")
	return errtrace.Wrap(in.tx.Respond(ctx, res))
}

func reverseRecordRoute(rrs []*sip.NameAddr) []*sip.NameAddr {
	out := make([]*sip.NameAddr, len(rrs))
	for i, r := range rrs {
		out[len(rrs)-1-i] = r
	}
	return out
}

// IncomingRequest is handed to the application for every in-dialog INFO,
// UPDATE, or re-INVITE request, so it can answer via Respond instead of the
// request sitting on its server transaction until Timer H/J/whatever times
// it out unanswered.
type IncomingRequest struct {
	l   *Layer
	dlg *Dialog
	tx  transaction.ServerTransaction
	req *sip.Request
}

// Dialog returns the dialog this request belongs to.
func (in *IncomingRequest) Dialog() *Dialog { return in.dlg }

// Request returns the in-dialog request itself.
func (in *IncomingRequest) Request() *sip.Request { return in.req }

// Respond answers the request with status and body.
func (in *IncomingRequest) Respond(ctx context.Context, status sip.StatusCode, body []byte) error {
	res := sip.NewResponseFromRequest(in.req, status, "", "")
	res.SetBody(body)
	if in.l.contact != nil {
		res.Headers().Add("Contact", in.l.contact.String())
	}
	return errtrace.Wrap(in.tx.Respond(ctx, res))
}

// HandleInDialogRequest answers an in-dialog request already routed to
// dlg by the endpoint: BYE and a bare ACK need no application involvement,
// CANCEL is answered immediately, and everything else (INFO, UPDATE,
// re-INVITE) is queued on Requests for the application to answer.
func (l *Layer) HandleInDialogRequest(ctx context.Context, dlg *Dialog, tx transaction.ServerTransaction, req *sip.Request) {
	switch req.Method {
	case sip.ACK:
		return
	case sip.BYE:
		res := sip.NewResponseFromRequest(req, sip.StatusOK, "", "")
		_ = tx.Respond(ctx, res)
		dlg.terminate(ctx)
	case sip.CANCEL:
		res := sip.NewResponseFromRequest(req, sip.StatusOK, "", "")
		_ = tx.Respond(ctx, res)
	default:
		if cs, ok := req.Contact(); ok {
			dlg.setRemoteTarget(cs.URI)
		}
		in := &IncomingRequest{l: l, dlg: dlg, tx: tx, req: req}
		select {
		case l.incomingReq <- in:
		default:
			l.logger.Warn("incoming in-dialog request queue full, rejecting",
				"call_id", firstCallID(req), "method", string(req.Method))
			_ = in.Respond(ctx, sip.StatusServiceUnavailable, nil)
		}
	}
}
