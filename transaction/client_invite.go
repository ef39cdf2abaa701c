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
	evtTimerA     = "timer_a"
	evtTimerB     = "timer_b"
	evtTimerD     = "timer_d"
	evtRecv1xx    = "recv_1xx"
	evtRecv2xx    = "recv_2xx"
	evtRecv300699 = "recv_300_699"
	evtTranspErr  = "transport_error"
	evtTerminate  = "terminate"
)

// ClientInvite is the INVITE client transaction of RFC 3261 §17.1.1:
// Calling -> Proceeding -> Completed -> Terminated. Unlike the teacher
// stack this state machine follows the classic rule that a 2xx terminates
// the transaction immediately and is handed to the transaction user
// directly, rather than parking in an "Accepted" state behind a Timer M
// (RFC 6026) — the caller's own dialog layer is responsible for absorbing
// any 2xx retransmissions a forking proxy produces.
type ClientInvite struct {
	base

	req *sip.Request

	tmrA *timeutil.Timer
	tmrB *timeutil.Timer
	tmrD *timeutil.Timer
}

// NewClientInvite creates and starts an INVITE client transaction: it
// sends req immediately and arms Timer A (unreliable transports only) and
// Timer B.
func NewClientInvite(ctx context.Context, req *sip.Request, dest sip.SipAddr, tp Sender, timing Timing, logger *slog.Logger, onEvt Handler) (*ClientInvite, error) {
	tx := &ClientInvite{
		base: newBase(KindClientInvite, ClientKeyFromRequest(req), dest, tp, timing, logger, onEvt),
		req:  req,
	}
	tx.initFSM()

	if err := tx.send(ctx, req); err != nil {
		return nil, err
	}

	if !dest.Transport.Reliable() {
		tx.tmrA = timeutil.AfterFunc(tx.timing.TimeA(), func() { tx.fireTimerA(ctx) })
	}
	tx.tmrB = timeutil.AfterFunc(tx.timing.TimeB(), func() { tx.fire(ctx, evtTimerB) })

	return tx, nil
}

func (tx *ClientInvite) initFSM() {
	tx.fsm = stateless.NewStateMachine(StateCalling)

	tx.fsm.Configure(StateCalling).
		InternalTransition(evtTimerA, tx.actResendReq).
		Permit(evtRecv1xx, StateProceeding).
		Permit(evtRecv2xx, StateTerminated).
		Permit(evtRecv300699, StateCompleted).
		Permit(evtTimerB, StateTerminated).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateProceeding).
		OnEntryFrom(evtRecv1xx, tx.actPassProvisional).
		InternalTransition(evtRecv1xx, tx.actPassProvisional).
		Permit(evtRecv2xx, StateTerminated).
		Permit(evtRecv300699, StateCompleted).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateCompleted).
		OnEntry(tx.actCompleted).
		InternalTransition(evtRecv300699, tx.actSendAck).
		Permit(evtTimerD, StateTerminated).
		Permit(evtTranspErr, StateTerminated).
		Permit(evtTerminate, StateTerminated)

	tx.fsm.Configure(StateTerminated).
		OnEntryFrom(evtTimerB, func(ctx context.Context, _ ...any) error {
			tx.emit(ctx, Event{Kind: EventTimeout})
			return nil
		}).
		OnEntry(tx.actTerminated)
}

// RecvResponse delivers an inbound response matched to this transaction by
// the layer. 2xx responses terminate the transaction and are passed to the
// TU directly; the caller's dialog layer owns retransmitting/absorbing any
// further 2xx that a forking proxy produces, since this transaction no
// longer exists to do it.
func (tx *ClientInvite) RecvResponse(ctx context.Context, res *sip.Response) {
	switch {
	case res.StatusCode.Provisional():
		_ = tx.fsm.FireCtx(ctx, evtRecv1xx, res)
	case res.StatusCode.Success():
		tx.emit(ctx, Event{Kind: EventFinal, Response: res})
		_ = tx.fsm.FireCtx(ctx, evtRecv2xx, res)
	default:
		_ = tx.fsm.FireCtx(ctx, evtRecv300699, res)
	}
}

// Terminate forces immediate termination, e.g. when the endpoint shuts
// down with transactions still outstanding.
func (tx *ClientInvite) Terminate(ctx context.Context) {
	_ = tx.fsm.FireCtx(ctx, evtTerminate)
}

func (tx *ClientInvite) fire(ctx context.Context, trigger string, args ...any) {
	if err := tx.fsm.FireCtx(ctx, trigger, args...); err != nil {
		tx.logger.LogAttrs(ctx, slog.LevelDebug, "fire ignored",
			slog.String("trigger", trigger), slog.String("error", err.Error()))
	}
}

func (tx *ClientInvite) fireTimerA(ctx context.Context) {
	tx.fire(ctx, evtTimerA)
	if tx.State() != StateCalling {
		return
	}
	next := tx.tmrA.Elapsed() * 2
	tx.tmrA = timeutil.AfterFunc(next, func() { tx.fireTimerA(ctx) })
}

func (tx *ClientInvite) actResendReq(ctx context.Context, _ ...any) error {
	if err := tx.send(ctx, tx.req); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return err
	}
	return nil
}

func (tx *ClientInvite) actPassProvisional(ctx context.Context, args ...any) error {
	res := args[0].(*sip.Response) //nolint:forcetypeassert
	tx.emit(ctx, Event{Kind: EventProvisional, Response: res})
	return nil
}

func (tx *ClientInvite) actCompleted(ctx context.Context, args ...any) error {
	tx.tmrA.Stop()
	tx.tmrB.Stop()

	res := args[0].(*sip.Response) //nolint:forcetypeassert
	ack := sip.NewAck(tx.req, res)
	if err := tx.send(ctx, ack); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return nil
	}
	tx.emit(ctx, Event{Kind: EventFinal, Response: res})

	if tx.dest.Transport.Reliable() {
		tx.fire(ctx, evtTimerD)
		return nil
	}
	tx.tmrD = timeutil.AfterFunc(tx.timing.TimeD(), func() { tx.fire(ctx, evtTimerD) })
	return nil
}

func (tx *ClientInvite) actSendAck(ctx context.Context, args ...any) error {
	res := args[0].(*sip.Response) //nolint:forcetypeassert
	ack := sip.NewAck(tx.req, res)
	if err := tx.send(ctx, ack); err != nil {
		tx.emit(ctx, Event{Kind: EventTransportError, Err: err})
		tx.fire(ctx, evtTranspErr)
		return err
	}
	return nil
}

func (tx *ClientInvite) actTerminated(ctx context.Context, args ...any) error {
	tx.tmrA.Stop()
	tx.tmrB.Stop()
	tx.tmrD.Stop()

	if len(args) > 0 {
		switch v := args[0].(type) {
		case error:
			tx.emit(ctx, Event{Kind: EventTransportError, Err: v})
		}
	}
	tx.markTerminated(ctx)
	return nil
}
