package transaction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transport"
)

// State is one of the RFC 3261 transaction states. Each of the four state
// machines only uses the subset relevant to it.
type State string

const (
	StateCalling    State = "Calling"
	StateTrying     State = "Trying"
	StateProceeding State = "Proceeding"
	StateCompleted  State = "Completed"
	StateConfirmed  State = "Confirmed"
	StateTerminated State = "Terminated"
)

// Kind distinguishes the four state machines, mostly for logging and
// registry bookkeeping.
type Kind string

const (
	KindClientInvite    Kind = "client-invite"
	KindClientNonInvite Kind = "client-non-invite"
	KindServerInvite    Kind = "server-invite"
	KindServerNonInvite Kind = "server-non-invite"
)

// Sender is the transport-layer surface a transaction needs: write a
// message to a destination, reusing hint if it is still the right
// connection. Depending on this narrow interface rather than *transport.Layer
// directly keeps transaction tests free to fake it.
type Sender interface {
	Send(ctx context.Context, msg sip.Message, dest sip.SipAddr, hint transport.Connection) (transport.Connection, error)
}

// Handler is invoked for every Event a transaction produces. It runs
// synchronously on the goroutine that drives the transaction (the caller of
// RecvResponse, RecvRequest, Respond or Terminate, or a timer callback), so
// it must not block.
type Handler func(ctx context.Context, ev Event)

// shared fields and behavior every one of the four transaction kinds embeds.
type base struct {
	mu     sync.Mutex
	key    Key
	kind   Kind
	dest   sip.SipAddr
	conn   transport.Connection
	tp     Sender
	timing Timing
	logger *slog.Logger
	onEvt  Handler

	fsm  *stateless.StateMachine
	done chan struct{}
	once sync.Once
}

func newBase(kind Kind, key Key, dest sip.SipAddr, tp Sender, timing Timing, logger *slog.Logger, onEvt Handler) base {
	if logger == nil {
		logger = log.Default
	}
	if onEvt == nil {
		onEvt = func(context.Context, Event) {}
	}
	return base{
		key:    key,
		kind:   kind,
		dest:   dest,
		tp:     tp,
		timing: timing,
		logger: logger,
		onEvt:  onEvt,
		done:   make(chan struct{}),
	}
}

// Key returns the matching key this transaction is registered under.
func (b *base) Key() Key { return b.key }

// Kind reports which of the four state machines this transaction runs.
func (b *base) Kind() Kind { return b.kind }

// State reports the current FSM state.
func (b *base) State() State {
	return b.fsm.MustState().(State) //nolint:forcetypeassert
}

// Done is closed once the transaction reaches Terminated.
func (b *base) Done() <-chan struct{} { return b.done }

func (b *base) emit(ctx context.Context, ev Event) {
	b.onEvt(ctx, ev)
}

func (b *base) markTerminated(ctx context.Context) {
	b.once.Do(func() {
		close(b.done)
		b.emit(ctx, Event{Kind: EventTerminated})
	})
}

func (b *base) send(ctx context.Context, msg sip.Message) error {
	conn, err := b.tp.Send(ctx, msg, b.dest, b.conn)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "transaction send failed",
			slog.Any("key", b.key), slog.String("error", err.Error()))
		return err
	}
	b.conn = conn
	return nil
}

func (b *base) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(b.kind)),
		slog.Any("state", b.State()),
	)
}
