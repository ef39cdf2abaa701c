package transaction

//go:generate errtrace -w .

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/internal/syncutil"
	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
)

// ErrNotFound is returned when a key has no matching registered
// transaction.
const ErrNotFound errorutil.Error = "transaction: no transaction for key"

// ClientTransaction is the surface the layer needs to demultiplex
// responses onto a client transaction, satisfied by both *ClientInvite and
// *ClientNonInvite.
type ClientTransaction interface {
	Key() Key
	Kind() Kind
	State() State
	Done() <-chan struct{}
	RecvResponse(ctx context.Context, res *sip.Response)
	Terminate(ctx context.Context)
}

// ServerTransaction is the surface the layer needs to demultiplex requests
// onto a server transaction, satisfied by both *ServerInvite and
// *ServerNonInvite.
type ServerTransaction interface {
	Key() Key
	Kind() Kind
	State() State
	Done() <-chan struct{}
	RecvRequest(ctx context.Context, req *sip.Request)
	Respond(ctx context.Context, res *sip.Response) error
	Terminate(ctx context.Context)
}

type ackReceiver interface {
	RecvAck(ctx context.Context, req *sip.Request)
}

// Layer owns every live transaction, keyed by its matching Key, and is the
// single entry point the transport layer's inbound events and the
// endpoint's outbound requests/responses flow through.
type Layer struct {
	logger  *slog.Logger
	timing  Timing
	tp      Sender
	clients *syncutil.RWMap[Key, ClientTransaction]
	servers *syncutil.RWMap[Key, ServerTransaction]
}

// Option configures a Layer.
type Option func(*Layer)

func WithLogger(logger *slog.Logger) Option { return func(l *Layer) { l.logger = logger } }
func WithTiming(t Timing) Option            { return func(l *Layer) { l.timing = t } }

// NewLayer creates a transaction layer sending through tp.
func NewLayer(tp Sender, opts ...Option) *Layer {
	l := &Layer{
		logger:  log.Default,
		tp:      tp,
		clients: &syncutil.RWMap[Key, ClientTransaction]{},
		servers: &syncutil.RWMap[Key, ServerTransaction]{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewClientTransaction creates and starts the appropriate client
// transaction for req's method, registers it, and evicts it from the
// registry once it terminates.
func (l *Layer) NewClientTransaction(ctx context.Context, req *sip.Request, dest sip.SipAddr, onEvt Handler) (ClientTransaction, error) {
	var (
		tx  ClientTransaction
		key Key
	)
	if req.Method.IsInvite() {
		invTx, err := NewClientInvite(ctx, req, dest, l.tp, l.timing, l.logger, onEvt)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		tx, key = invTx, invTx.Key()
	} else {
		nonInvTx, err := NewClientNonInvite(ctx, req, dest, l.tp, l.timing, l.logger, onEvt)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		tx, key = nonInvTx, nonInvTx.Key()
	}

	l.clients.Set(key, tx)
	go func() {
		<-tx.Done()
		l.clients.Del(key)
	}()
	return tx, nil
}

// NewServerTransaction creates the appropriate server transaction for
// req's method, registers it, and evicts it once it terminates. The
// caller is expected to have already checked FindServerTransaction for a
// retransmission.
func (l *Layer) NewServerTransaction(req *sip.Request, source sip.SipAddr, onEvt Handler) ServerTransaction {
	var tx ServerTransaction
	if req.Method.IsInvite() {
		tx = NewServerInvite(req, source, l.tp, l.timing, l.logger, onEvt)
	} else {
		tx = NewServerNonInvite(req, source, l.tp, l.timing, l.logger, onEvt)
	}

	key := tx.Key()
	l.servers.Set(key, tx)
	go func() {
		<-tx.Done()
		l.servers.Del(key)
	}()
	return tx
}

// FindClientTransaction looks up the client transaction a response
// matches, per RFC 3261 §17.1.3.
func (l *Layer) FindClientTransaction(res *sip.Response) (ClientTransaction, bool) {
	return l.clients.Get(ClientKeyFromResponse(res))
}

// FindServerTransaction looks up the server transaction a request matches,
// per RFC 3261 §17.2.3. Used both to detect retransmissions of an
// in-flight request and to route an ACK to its INVITE transaction.
func (l *Layer) FindServerTransaction(req *sip.Request, source sip.SipAddr) (ServerTransaction, bool) {
	return l.servers.Get(ServerKeyFromRequest(req, source))
}

// HandleResponse routes res to its matching client transaction, reporting
// ErrNotFound if none exists (a stray or very-late retransmission, which
// the caller should simply drop).
func (l *Layer) HandleResponse(ctx context.Context, res *sip.Response) error {
	tx, ok := l.FindClientTransaction(res)
	if !ok {
		return errtrace.Wrap(ErrNotFound)
	}
	tx.RecvResponse(ctx, res)
	return nil
}

// HandleRequest routes req to its matching server transaction if one
// exists (a retransmission, or an ACK for a non-2xx), reporting matched=false
// when the caller must create a new transaction instead.
func (l *Layer) HandleRequest(ctx context.Context, req *sip.Request, source sip.SipAddr) (matched bool) {
	tx, ok := l.FindServerTransaction(req, source)
	if !ok {
		return false
	}

	if req.Method == sip.ACK {
		if ar, ok := tx.(ackReceiver); ok {
			ar.RecvAck(ctx, req)
			return true
		}
	}
	tx.RecvRequest(ctx, req)
	return true
}
