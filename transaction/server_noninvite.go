package transaction

//go:generate errtrace -w .

import (
	"context"
	"log/slog"

	"github.com/qmuntal/stateless"

	"github.com/coresip/coresip/internal/timeutil"
	"github.com/coresip/coresip/sip"
)

const evtTimerJ = "timer_j"

// ServerNonInvite is the non-INVITE server transaction of RFC 3261
// §17.2.2: Trying -> Proceeding -> Completed -> Terminated.
type ServerNonInvite struct {
	base

	req     *sip.Request
	lastRes *sip.Response

	tmrJ *timeutil.Timer
}

// NewServerNonInvite creates a non-INVITE server transaction in Trying.
func NewServerNonInvite(req *sip.Request, source sip.SipAddr, tp Sender, timing Timing, logger *slog.Logger, onEvt Handler) *ServerNonInvite {
	tx := &ServerNonInvite{
		base: newBase(KindServerNonInvite, ServerKeyFromRequest(req, source), source, tp, timing, logger, onEvt),
		req:  req,
	}
	tx.initFSM()
	return tx
}

func (tx *ServerNonInvite) initFSM() {
	tx.fsm = stateless.NewStateMachine(StateTrying)

	tx.fsm.Configure(StateTrying).
		InternalTransition(evtRecvReq, tx.actNoop).
		Permit(evtSend1xx, StateProceeding).
		Permit(evtSend2xx, StateCompleted).
		Permit(evtSend300699, StateCompleted).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateProceeding).
		OnEntry(tx.actSendRes).
		InternalTransition(evtRecvReq, tx.actResendRes).
		InternalTransition(evtSend1xx, tx.actSendRes).
		Permit(evtSend2xx, StateCompleted).
		Permit(evtSend300699, StateCompleted).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateCompleted).
		OnEntry(tx.actCompleted).
		InternalTransition(evtRecvReq, tx.actResendRes).
		Permit(evtTimerJ, StateTerminated).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateTerminated).
		OnEntry(tx.actTerminated)
}

// RecvRequest delivers an inbound retransmission of the request matched to
// this transaction.
func (tx *ServerNonInvite) RecvRequest(ctx context.Context, req *sip.Request) {
	_ = tx.fsm.FireCtx(ctx, evtRecvReq, req)
}

// Respond sends res through the transaction.
func (tx *ServerNonInvite) Respond(ctx context.Context, res *sip.Response) error {
	if res.StatusCode.Provisional() {
		return tx.fsm.FireCtx(ctx, evtSend1xx, res)
	}
	return tx.fsm.FireCtx(ctx, evtSend300699, res)
}

// Terminate forces immediate termination.
func (tx *ServerNonInvite) Terminate(ctx context.Context) {
	_ = tx.fsm.FireCtx(ctx, evtTerminate)
}

func (tx *ServerNonInvite) actNoop(context.Context, ...any) error { return nil }

func (tx *ServerNonInvite) actSendRes(ctx context.Context, args ...any) error {
	res := args[0].(*sip.Response) //nolint:forcetypeassert
	tx.lastRes = res
	if err := tx.send(ctx, res); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return err
	}
	return nil
}

func (tx *ServerNonInvite) actResendRes(ctx context.Context, _ ...any) error {
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

func (tx *ServerNonInvite) actCompleted(ctx context.Context, args ...any) error {
	res := args[0].(*sip.Response) //nolint:forcetypeassert
	tx.lastRes = res
	if err := tx.send(ctx, res); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return nil
	}

	if tx.dest.Transport.Reliable() {
		tx.fire(ctx, evtTimerJ)
		return nil
	}
	tx.tmrJ = timeutil.AfterFunc(tx.timing.TimeJ(), func() { tx.fire(ctx, evtTimerJ) })
	return nil
}

func (tx *ServerNonInvite) fire(ctx context.Context, trigger string, args ...any) {
	if err := tx.fsm.FireCtx(ctx, trigger, args...); err != nil {
		tx.logger.LogAttrs(ctx, slog.LevelDebug, "fire ignored",
			slog.String("trigger", trigger), slog.String("error", err.Error()))
	}
}

func (tx *ServerNonInvite) actTerminated(ctx context.Context, args ...any) error {
	tx.tmrJ.Stop()

	if len(args) > 0 {
		if err, ok := args[0].(error); ok {
			tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		}
	}
	tx.markTerminated(ctx)
	return nil
}
