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
	evtTimerE = "timer_e"
	evtTimerF = "timer_f"
	evtTimerK = "timer_k"
)

// ClientNonInvite is the non-INVITE client transaction of RFC 3261
// §17.1.2: Trying -> Proceeding -> Completed -> Terminated.
type ClientNonInvite struct {
	base

	req *sip.Request

	tmrE *timeutil.Timer
	tmrF *timeutil.Timer
	tmrK *timeutil.Timer
}

// NewClientNonInvite creates and starts a non-INVITE client transaction.
func NewClientNonInvite(ctx context.Context, req *sip.Request, dest sip.SipAddr, tp Sender, timing Timing, logger *slog.Logger, onEvt Handler) (*ClientNonInvite, error) {
	tx := &ClientNonInvite{
		base: newBase(KindClientNonInvite, ClientKeyFromRequest(req), dest, tp, timing, logger, onEvt),
		req:  req,
	}
	tx.initFSM()

	if err := tx.send(ctx, req); err != nil {
		return nil, err
	}

	if !dest.Transport.Reliable() {
		tx.tmrE = timeutil.AfterFunc(tx.timing.TimeE(), func() { tx.fireTimerE(ctx) })
	}
	tx.tmrF = timeutil.AfterFunc(tx.timing.TimeF(), func() { tx.fire(ctx, evtTimerF) })

	return tx, nil
}

func (tx *ClientNonInvite) initFSM() {
	tx.fsm = stateless.NewStateMachine(StateTrying)

	tx.fsm.Configure(StateTrying).
		InternalTransition(evtTimerE, tx.actResendReq).
		Permit(evtRecv1xx, StateProceeding).
		Permit(evtRecv2xx, StateCompleted).
		Permit(evtRecv300699, StateCompleted).
		Permit(evtTimerF, StateTerminated).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateProceeding).
		OnEntryFrom(evtRecv1xx, tx.actPassProvisional).
		InternalTransition(evtTimerE, tx.actResendReq).
		InternalTransition(evtRecv1xx, tx.actPassProvisional).
		Permit(evtRecv2xx, StateCompleted).
		Permit(evtRecv300699, StateCompleted).
		Permit(evtTimerF, StateTerminated).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateCompleted).
		OnEntry(tx.actCompleted).
		Permit(evtTimerK, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateTerminated).
		OnEntryFrom(evtTimerF, func(ctx context.Context, _ ...any) error {
			tx.emit(ctx, Event{Kind: EventTimeout})
			return nil
		}).
		OnEntry(tx.actTerminated)
}

// RecvResponse delivers an inbound response matched to this transaction.
func (tx *ClientNonInvite) RecvResponse(ctx context.Context, res *sip.Response) {
	if res.StatusCode.Provisional() {
		_ = tx.fsm.FireCtx(ctx, evtRecv1xx, res)
		return
	}
	_ = tx.fsm.FireCtx(ctx, evtRecv2xx, res)
}

// Terminate forces immediate termination.
func (tx *ClientNonInvite) Terminate(ctx context.Context) {
	_ = tx.fsm.FireCtx(ctx, evtTerminate)
}

func (tx *ClientNonInvite) fire(ctx context.Context, trigger string, args ...any) {
	if err := tx.fsm.FireCtx(ctx, trigger, args...); err != nil {
		tx.logger.LogAttrs(ctx, slog.LevelDebug, "fire ignored",
			slog.String("trigger", trigger), slog.String("error", err.Error()))
	}
}

func (tx *ClientNonInvite) fireTimerE(ctx context.Context) {
	tx.fire(ctx, evtTimerE)
	if tx.State() != StateTrying && tx.State() != StateProceeding {
		return
	}
	next := tx.tmrE.Elapsed() * 2
	if max := tx.timing.T2(); next > max {
		next = max
	}
	tx.tmrE = timeutil.AfterFunc(next, func() { tx.fireTimerE(ctx) })
}

func (tx *ClientNonInvite) actResendReq(ctx context.Context, _ ...any) error {
	if err := tx.send(ctx, tx.req); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return err
	}
	return nil
}

func (tx *ClientNonInvite) actPassProvisional(ctx context.Context, args ...any) error {
	res := args[0].(*sip.Response) //nolint:forcetypeassert
	tx.emit(ctx, Event{Kind: EventProvisional, Response: res})
	return nil
}

func (tx *ClientNonInvite) actCompleted(ctx context.Context, args ...any) error {
	tx.tmrE.Stop()
	tx.tmrF.Stop()

	res := args[0].(*sip.Response) //nolint:forcetypeassert
	tx.emit(ctx, Event{Kind: EventFinal, Response: res})

	if tx.dest.Transport.Reliable() {
		tx.fire(ctx, evtTimerK)
		return nil
	}
	tx.tmrK = timeutil.AfterFunc(tx.timing.TimeK(), func() { tx.fire(ctx, evtTimerK) })
	return nil
}

func (tx *ClientNonInvite) actTerminated(ctx context.Context, args ...any) error {
	tx.tmrE.Stop()
	tx.tmrF.Stop()
	tx.tmrK.Stop()

	if len(args) > 0 {
		if err, ok := args[0].(error); ok {
			tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		}
	}
	tx.markTerminated(ctx)
	return nil
}
