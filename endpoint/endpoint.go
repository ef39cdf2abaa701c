// Package endpoint composes the transport, transaction and dialog layers
// into the single object an application drives: register listeners, send
// requests, and receive incoming transactions and dialog offers.
package endpoint

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"time"

	"braces.dev/errtrace"
	"golang.org/x/sync/errgroup"

	"github.com/coresip/coresip/dialog"
	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
	"github.com/coresip/coresip/transport"
)

// ErrShutdown is returned by Shutdown when running tasks have not exited
// within the drain window.
const ErrShutdown errorutil.Error = "endpoint: shut down"

// IncomingTransaction is delivered to the application for every new
// server transaction the endpoint observes that is not already absorbed
// by the dialog layer (an ACK to a 2xx, or a request the dialog layer
// matched to an existing dialog).
type IncomingTransaction struct {
	Tx  transaction.ServerTransaction
	Req *sip.Request
}

// Endpoint is the RFC 3261 stack's application-facing façade: it owns the
// transport, transaction and dialog layers and the single cancellation
// token they all run under.
type Endpoint struct {
	cfg Config

	transport *transport.Layer
	tx        *transaction.Layer
	dialogs   *dialog.Layer

	logger *slog.Logger

	incoming chan IncomingTransaction

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds an Endpoint from opts layered over the documented defaults.
func New(opts ...Option) *Endpoint {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	tl := transport.NewLayer(
		transport.WithLogger(cfg.Logger),
		transport.WithTLSConfig(cfg.TLSConfig),
		transport.WithAcceptAnyOrigin(cfg.AcceptAnyOrigin),
		transport.WithIdleTimeout(cfg.IdleConnTimeout),
	)

	txl := transaction.NewLayer(tl,
		transaction.WithLogger(cfg.Logger),
		transaction.WithTiming(transaction.NewTiming(cfg.T1, cfg.T2, cfg.T4)),
	)

	dlgOpts := []dialog.Option{
		dialog.WithLogger(cfg.Logger),
		dialog.WithGracePeriod(cfg.DialogGrace),
		dialog.WithAuthRetry(cfg.AuthRetry),
	}
	if cfg.Contact != nil {
		dlgOpts = append(dlgOpts, dialog.WithContact(cfg.Contact))
	}
	dl := dialog.NewLayer(txl, tl, dlgOpts...)

	return &Endpoint{
		cfg:       cfg,
		transport: tl,
		tx:        txl,
		dialogs:   dl,
		logger:    cfg.Logger,
		incoming:  make(chan IncomingTransaction, 64),
	}
}

// AddListener registers a listener that Start will serve.
func (e *Endpoint) AddListener(ls transport.Listener) { e.transport.AddListener(ls) }

// AddConnection registers an outbound-capable connection (typically a
// bound UDP socket used for both listening and sending).
func (e *Endpoint) AddConnection(conn transport.Connection) { e.transport.AddConnection(conn) }

// Dialogs returns the dialog layer, for sending/receiving dialog-scoped
// requests (Invite, Bye, Info, Update, Reinvite) and the Incoming channel
// of offered calls.
func (e *Endpoint) Dialogs() *dialog.Layer { return e.dialogs }

// Transactions returns the transaction layer, for applications that need
// out-of-dialog request/response exchanges (REGISTER, OPTIONS) without
// going through the dialog layer.
func (e *Endpoint) Transactions() *transaction.Layer { return e.tx }

// IncomingTransactions yields one IncomingTransaction per newly observed
// server transaction the dialog layer did not already claim, per §6's
// endpoint event contract. The application must Respond or let it time
// out.
func (e *Endpoint) IncomingTransactions() <-chan IncomingTransaction { return e.incoming }

// ClientTransaction starts an out-of-dialog client transaction for req,
// per §4.5's client_transaction(req) operation.
func (e *Endpoint) ClientTransaction(ctx context.Context, req *sip.Request, dest sip.SipAddr, onEvt transaction.Handler) (transaction.ClientTransaction, error) {
	return e.tx.NewClientTransaction(ctx, req, dest, onEvt)
}

// Start runs the transport layer's listeners and the endpoint's own
// dispatch loop until ctx is cancelled or Shutdown is called.
func (e *Endpoint) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	e.group = g

	events := e.transport.Serve(gctx)
	g.Go(func() error {
		e.dispatchLoop(gctx, events)
		return nil
	})
}

// dispatchLoop routes every transport Event to the transaction layer, and
// every unmatched new server transaction onward to the dialog layer or
// the application, per §5's ordering guarantees (in-order per connection,
// no ordering across connections).
func (e *Endpoint) dispatchLoop(ctx context.Context, events <-chan transport.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != transport.EventIncoming {
				continue
			}
			e.handleIncoming(ctx, ev)
		}
	}
}

func (e *Endpoint) handleIncoming(ctx context.Context, ev transport.Event) {
	switch msg := ev.Message.(type) {
	case *sip.Response:
		if err := e.tx.HandleResponse(ctx, msg); err != nil {
			e.logger.LogAttrs(ctx, slog.LevelDebug, "unmatched response dropped",
				slog.Any("error", err), slog.Any("source", ev.Source))
		}
	case *sip.Request:
		e.handleRequest(ctx, msg, ev.Source)
	}
}

func (e *Endpoint) handleRequest(ctx context.Context, req *sip.Request, source sip.SipAddr) {
	if e.tx.HandleRequest(ctx, req, source) {
		return
	}

	if dlg, matched, err := e.dialogs.HandleRequest(req, source); matched {
		if req.Method == sip.ACK {
			// The ACK to a 2xx has no transaction of its own (RFC 3261
			// §17.1.1.3); it terminates directly at the dialog.
			e.dialogs.HandleInDialogRequest(ctx, dlg, nil, req)
			return
		}
		tx := e.tx.NewServerTransaction(req, source, nil)
		if err != nil {
			res := sip.NewResponseFromRequest(req, sip.StatusServerInternalError, "", "")
			_ = tx.Respond(ctx, res)
			return
		}
		e.dialogs.HandleInDialogRequest(ctx, dlg, tx, req)
		return
	}

	tx := e.tx.NewServerTransaction(req, source, nil)
	if req.Method == sip.INVITE {
		e.dialogs.HandleIncomingInvite(tx, req, source)
		return
	}

	select {
	case e.incoming <- IncomingTransaction{Tx: tx, Req: req}:
	case <-ctx.Done():
	}
}

// Shutdown cancels every running task and waits up to drain for them to
// exit, per §5's cancellation model.
func (e *Endpoint) Shutdown(drain time.Duration) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()

	select {
	case err := <-done:
		return errtrace.Wrap(err)
	case <-time.After(drain):
		return errtrace.Wrap(ErrShutdown)
	}
}
