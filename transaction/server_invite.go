package transaction

//go:generate errtrace -w .

import (
	"context"
	"log/slog"

	"github.com/qmuntal/stateless"

	"github.com/coresip/coresip/internal/timeutil"
	"github.com/coresip/coresip/sip"
)

const (
	evtRecvReq    = "recv_request"
	evtRecvAck    = "recv_ack"
	evtSend1xx    = "send_1xx"
	evtSend2xx    = "send_2xx"
	evtSend300699 = "send_300_699"
	evtTimerG     = "timer_g"
	evtTimerH     = "timer_h"
	evtTimerI     = "timer_i"
)

// ServerInvite is the INVITE server transaction of RFC 3261 §17.2.1:
// Proceeding -> Completed -> Confirmed -> Terminated, with a direct
// Proceeding -> Terminated edge once a 2xx is sent (RFC 3261 leaves the
// rest of the 2xx dialog to the TU/dialog layer, not the transaction).
type ServerInvite struct {
	base

	req     *sip.Request
	lastRes *sip.Response

	tmrG *timeutil.Timer
	tmrH *timeutil.Timer
	tmrI *timeutil.Timer
}

// NewServerInvite creates an INVITE server transaction in Proceeding,
// matching the requirement that the transaction exist (and, in this stack,
// absorb retransmissions) from the moment the INVITE is seen.
func NewServerInvite(req *sip.Request, source sip.SipAddr, tp Sender, timing Timing, logger *slog.Logger, onEvt Handler) *ServerInvite {
	tx := &ServerInvite{
		base: newBase(KindServerInvite, ServerKeyFromRequest(req, source), source, tp, timing, logger, onEvt),
		req:  req,
	}
	tx.initFSM()
	return tx
}

func (tx *ServerInvite) initFSM() {
	tx.fsm = stateless.NewStateMachine(StateProceeding)

	tx.fsm.Configure(StateProceeding).
		InternalTransition(evtRecvReq, tx.actNoop).
		InternalTransition(evtSend1xx, tx.actSendRes).
		Permit(evtSend2xx, StateTerminated).
		Permit(evtSend300699, StateCompleted).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateCompleted).
		OnEntry(tx.actCompleted).
		InternalTransition(evtRecvReq, tx.actResendRes).
		InternalTransition(evtTimerG, tx.actResendRes).
		Permit(evtRecvAck, StateConfirmed).
		Permit(evtTimerH, StateTerminated).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateConfirmed).
		OnEntry(tx.actConfirmed).
		InternalTransition(evtRecvReq, tx.actNoop).
		InternalTransition(evtRecvAck, tx.actNoop).
		Permit(evtTimerI, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateTerminated).
		OnEntryFrom(evtTimerH, func(ctx context.Context, _ ...any) error {
			tx.emit(ctx, Event{Kind: EventTimeout})
			return nil
		}).
		OnEntry(tx.actTerminated)
}

// RecvRequest delivers an inbound retransmission of the INVITE (while
// Proceeding or Completed) matched to this transaction.
func (tx *ServerInvite) RecvRequest(ctx context.Context, req *sip.Request) {
	_ = tx.fsm.FireCtx(ctx, evtRecvReq, req)
}

// RecvAck delivers the ACK for a non-2xx final response; ACK for a 2xx is
// not part of this transaction and must be routed to the dialog layer by
// the endpoint directly (RFC 3261 §17.1.1.3 / §13.2.2.4).
func (tx *ServerInvite) RecvAck(ctx context.Context, req *sip.Request) {
	_ = tx.fsm.FireCtx(ctx, evtRecvAck, req)
}

// Respond sends res through the transaction, driving the corresponding
// FSM transition for its status class.
func (tx *ServerInvite) Respond(ctx context.Context, res *sip.Response) error {
	switch {
	case res.StatusCode.Provisional():
		return tx.fsm.FireCtx(ctx, evtSend1xx, res)
	case res.StatusCode.Success():
		if err := tx.send(ctx, res); err != nil {
			return err
		}
		return tx.fsm.FireCtx(ctx, evtSend2xx)
	default:
		return tx.fsm.FireCtx(ctx, evtSend300699, res)
	}
}

// Terminate forces immediate termination.
func (tx *ServerInvite) Terminate(ctx context.Context) {
	_ = tx.fsm.FireCtx(ctx, evtTerminate)
}

func (tx *ServerInvite) actNoop(context.Context, ...any) error { return nil }

func (tx *ServerInvite) actSendRes(ctx context.Context, args ...any) error {
	res := args[0].(*sip.Response) //nolint:forcetypeassert
	if err := tx.send(ctx, res); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return err
	}
	return nil
}

// actResendRes re-sends the last final response on a retransmitted INVITE
// or on Timer G, per RFC 3261 §17.2.1's requirement that the server
// transaction, not the TU, handle retransmission of the final response.
func (tx *ServerInvite) actResendRes(ctx context.Context, _ ...any) error {
	if tx.lastRes == nil {
		return nil
	}
	if err := tx.send(ctx, tx.lastRes); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return err
	}
	return nil
}

func (tx *ServerInvite) actCompleted(ctx context.Context, args ...any) error {
	res := args[0].(*sip.Response) //nolint:forcetypeassert
	tx.lastRes = res
	if err := tx.send(ctx, res); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return nil
	}

	if !tx.dest.Transport.Reliable() {
		tx.tmrG = timeutil.AfterFunc(tx.timing.TimeG(), func() { tx.fireTimerG(ctx) })
	}
	// Timer H stays armed regardless of transport reliability: it detects
	// a missing ACK, not a missing retransmission, so a reliable transport
	// still needs it to catch an ACK that never shows up.
	tx.tmrH = timeutil.AfterFunc(tx.timing.TimeH(), func() { tx.fire(ctx, evtTimerH) })
	return nil
}

func (tx *ServerInvite) fire(ctx context.Context, trigger string, args ...any) {
	if err := tx.fsm.FireCtx(ctx, trigger, args...); err != nil {
		tx.logger.LogAttrs(ctx, slog.LevelDebug, "fire ignored",
			slog.String("trigger", trigger), slog.String("error", err.Error()))
	}
}

func (tx *ServerInvite) fireTimerG(ctx context.Context) {
	if tx.lastRes != nil {
		if err := tx.send(ctx, tx.lastRes); err != nil {
			tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
			tx.fire(ctx, evtTranspErr)
			return
		}
	}
	if tx.State() != StateCompleted {
		return
	}
	next := tx.tmrG.Elapsed() * 2
	if max := tx.timing.T2(); next > max {
		next = max
	}
	tx.tmrG = timeutil.AfterFunc(next, func() { tx.fireTimerG(ctx) })
}

func (tx *ServerInvite) actConfirmed(ctx context.Context, _ ...any) error {
	tx.tmrG.Stop()
	tx.tmrH.Stop()

	if tx.dest.Transport.Reliable() {
		tx.fire(ctx, evtTimerI)
		return nil
	}
	tx.tmrI = timeutil.AfterFunc(tx.timing.TimeI(), func() { tx.fire(ctx, evtTimerI) })
	return nil
}

func (tx *ServerInvite) actTerminated(ctx context.Context, args ...any) error {
	tx.tmrG.Stop()
	tx.tmrH.Stop()
	tx.tmrI.Stop()

	if len(args) > 0 {
		if err, ok := args[0].(error); ok {
			tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		}
	}
	tx.markTerminated(ctx)
	return nil
}
