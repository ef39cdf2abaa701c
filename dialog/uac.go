package dialog

//go:generate errtrace -w .

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
)

// ErrNoFinalResponse is returned when a request's transaction terminates
// (timeout, transport failure) before any final response arrived.
const ErrNoFinalResponse errorutil.Error = "dialog: transaction ended without a final response"

// InviteOptions configures an outgoing dialog-creating INVITE.
type InviteOptions struct {
	From *sip.NameAddr
	To   *sip.NameAddr
	Body []byte

	// Credential, if set, lets the dialog answer a 401/407 challenge to
	// this INVITE itself (§4.4's auth-retry behavior also covers the
	// dialog-creating request, not just in-dialog ones) without the
	// caller having to wait for a *Dialog to call SetCredential on, since
	// none exists until a final response settles.
	Credential *Credential
}

// UAC tracks one outgoing dialog-creating INVITE while it is in flight:
// its request (needed to build the eventual ACK) and the channel its
// settling final response (or failure) is delivered on.
type UAC struct {
	req  *sip.Request
	done chan uacResult
}

type uacResult struct {
	dlg *Dialog
	res *sip.Response
	err error
}

// Invite starts a dialog-creating INVITE to dest and blocks until a final
// response arrives, the context is cancelled, or the transaction fails.
// A non-nil Dialog is returned alongside a 2xx final response; other final
// responses return a nil Dialog.
func (l *Layer) Invite(ctx context.Context, dest sip.SipAddr, opts InviteOptions) (*Dialog, *sip.Response, error) {
	callID := NewCallID()
	localTag := NewTag()

	req := sip.NewRequest(sip.INVITE, opts.To.URI.Clone())
	req.SetMaxForwards(70)

	via := &sip.Via{Transport: dest.Transport, Host: l.contactHost}
	via.SetBranch(sip.NewBranch())
	req.SetTopVia(via)

	from := opts.From.Clone()
	from.SetTag(localTag)
	req.Headers().Add("From", from.String())
	req.Headers().Add("To", opts.To.Clone().String())
	req.Headers().Add("Call-ID", callID)
	req.SetCSeq(sip.CSeq{Seq: 1, Method: sip.INVITE})
	if l.contact != nil {
		req.Headers().Add("Contact", l.contact.String())
	}
	req.SetBody(opts.Body)

	uac := &UAC{
		req:  req,
		done: make(chan uacResult, 1),
	}

	id := ID{CallID: callID, LocalTag: localTag}
	dlg := newDialog(id, true, from, opts.To, 1, dest, l.logger)
	if opts.Credential != nil {
		dlg.SetCredential(*opts.Credential)
	}

	_, err := l.tx.NewClientTransaction(ctx, req, dest, func(ctx context.Context, ev transaction.Event) {
		l.handleUACEvent(ctx, uac, dlg, ev)
	})
	if err != nil {
		return nil, nil, errtrace.Wrap(err)
	}

	select {
	case <-ctx.Done():
		return nil, nil, errtrace.Wrap(ctx.Err())
	case r := <-uac.done:
		return r.dlg, r.res, r.err
	}
}

func (l *Layer) handleUACEvent(ctx context.Context, uac *UAC, dlg *Dialog, ev transaction.Event) {
	switch ev.Kind {
	case transaction.EventProvisional:
		res := ev.Response
		if to, ok := res.To(); ok && to.Tag() != "" && dlg.ID().RemoteTag == "" {
			dlg.mu.Lock()
			dlg.id.RemoteTag = to.Tag()
			dlg.mu.Unlock()
			l.register(dlg)
		}
		if cs, ok := res.Contact(); ok {
			dlg.setRemoteTarget(cs.URI)
		}

	case transaction.EventFinal:
		res := ev.Response
		ackReq := uac.req
		if res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired {
			if retryReq, retryRes, retryErr := l.retryWithAuth(ctx, dlg, uac.req, res); retryReq != nil || retryErr != nil {
				if retryErr != nil {
					dlg.terminate(ctx)
					uac.finish(uacResult{err: retryErr})
					return
				}
				ackReq, res = retryReq, retryRes
			}
		}
		if res.StatusCode.Success() {
			to, _ := res.To()
			dlg.confirm(to.Tag())
			if cs, ok := res.Contact(); ok {
				dlg.setRemoteTarget(cs.URI)
			}
			dlg.setRouteSet(reverseRecordRoute(res.RecordRouteSet()))
			l.register(dlg)
			l.sendUACAck(ctx, dlg, ackReq, res)
			uac.finish(uacResult{dlg: dlg, res: res})
			return
		}
		dlg.terminate(ctx)
		uac.finish(uacResult{res: res})

	case transaction.EventTransportError, transaction.EventTimeout:
		dlg.terminate(ctx)
		uac.finish(uacResult{err: errtrace.Wrap(ErrNoFinalResponse)})
	}
}

func (u *UAC) finish(r uacResult) {
	select {
	case u.done <- r:
	default:
	}
}

// sendUACAck sends the ACK that confirms a 2xx to INVITE. Per RFC 3261
// §13.2.2.4 this ACK is not part of the INVITE client transaction, so the
// dialog layer sends it directly through the transport layer's Sender.
func (l *Layer) sendUACAck(ctx context.Context, dlg *Dialog, invite *sip.Request, res *sip.Response) {
	ack := sip.NewAck(invite, res)
	for _, r := range dlg.routeSetSnapshot() {
		ack.Headers().Add("Route", r.String())
	}
	if _, err := l.tp.Send(ctx, ack, dlg.destination(), nil); err != nil {
		l.logger.LogAttrs(ctx, slog.LevelWarn, "failed to send ack",
			slog.Any("dialog_id", dlg.ID()), slog.String("error", err.Error()))
	}
}

// Bye sends an in-dialog BYE, terminating the dialog once a final response
// (or transaction failure) is observed.
func (l *Layer) Bye(ctx context.Context, dlg *Dialog) (*sip.Response, error) {
	return l.sendInDialog(ctx, dlg, sip.BYE, nil, true)
}

// Info sends an in-dialog INFO carrying body.
func (l *Layer) Info(ctx context.Context, dlg *Dialog, body []byte) (*sip.Response, error) {
	return l.sendInDialog(ctx, dlg, sip.INFO, body, false)
}

// Update sends an in-dialog UPDATE carrying body (RFC 3311).
func (l *Layer) Update(ctx context.Context, dlg *Dialog, body []byte) (*sip.Response, error) {
	return l.sendInDialog(ctx, dlg, sip.UPDATE, body, false)
}

// Reinvite sends a re-INVITE within an established dialog, offering a new
// session description.
func (l *Layer) Reinvite(ctx context.Context, dlg *Dialog, sdp []byte) (*sip.Response, error) {
	return l.sendInDialog(ctx, dlg, sip.INVITE, sdp, false)
}

func (l *Layer) sendInDialog(ctx context.Context, dlg *Dialog, method sip.Method, body []byte, terminating bool) (*sip.Response, error) {
	if dlg.State() == StateTerminated {
		return nil, errtrace.Wrap(ErrTerminated)
	}

	seq := dlg.nextLocalSeq()
	req := dlg.buildRequest(method)
	setCSeq(req, seq, method)
	if l.contact != nil {
		req.Headers().Add("Contact", l.contact.String())
	}
	req.SetBody(body)

	type finalResult struct {
		ackReq *sip.Request
		res    *sip.Response
	}
	resCh := make(chan finalResult, 1)
	errCh := make(chan error, 1)

	_, err := l.tx.NewClientTransaction(ctx, req, dlg.destination(), func(ctx context.Context, ev transaction.Event) {
		switch ev.Kind {
		case transaction.EventFinal:
			res := ev.Response
			ackReq := req
			if res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired {
				if retryReq, retryRes, retryErr := l.retryWithAuth(ctx, dlg, req, res); retryReq != nil || retryErr != nil {
					if retryErr != nil {
						errCh <- retryErr
						return
					}
					ackReq, res = retryReq, retryRes
				}
			}
			resCh <- finalResult{ackReq: ackReq, res: res}
		case transaction.EventTransportError, transaction.EventTimeout:
			errCh <- errtrace.Wrap(ErrNoFinalResponse)
		}
	})
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	select {
	case <-ctx.Done():
		return nil, errtrace.Wrap(ctx.Err())
	case err := <-errCh:
		if terminating {
			dlg.terminate(ctx)
		}
		return nil, err
	case fr := <-resCh:
		res := fr.res
		if terminating || (method == sip.BYE) {
			dlg.terminate(ctx)
		} else if method == sip.INVITE && res.StatusCode.Success() {
			dlg.setRouteSet(reverseRecordRoute(res.RecordRouteSet()))
			if cs, ok := res.Contact(); ok {
				dlg.setRemoteTarget(cs.URI)
			}
			l.sendUACAck(ctx, dlg, fr.ackReq, res)
		}
		return res, nil
	}
}

// Cancel sends a CANCEL for an INVITE still in its early phase.
func (l *Layer) Cancel(ctx context.Context, dlg *Dialog, invite *sip.Request) error {
	cancel := sip.NewCancel(invite)
	_, err := l.tp.Send(ctx, cancel, dlg.destination(), nil)
	return errtrace.Wrap(err)
}
