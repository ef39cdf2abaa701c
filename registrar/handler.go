package registrar

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/coresip/coresip/endpoint"
	"github.com/coresip/coresip/sip"
)

// DefaultExpires is the binding lifetime assumed when a REGISTER carries
// neither an Expires header nor a Contact ;expires parameter.
const DefaultExpires = time.Hour

// Handler answers REGISTER requests against a Store, RFC 3261 §10.3.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler builds a Handler backed by store.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Serve drains e's incoming transactions, answering REGISTER and
// rejecting anything else with 501 Not Implemented, until ctx is
// cancelled.
func (h *Handler) Serve(ctx context.Context, e *endpoint.Endpoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-e.IncomingTransactions():
			if !ok {
				return
			}
			h.handle(ctx, in)
		}
	}
}

func (h *Handler) handle(ctx context.Context, in endpoint.IncomingTransaction) {
	if in.Req.Method != sip.REGISTER {
		res := sip.NewResponseFromRequest(in.Req, 501, "Not Implemented", "")
		_ = in.Tx.Respond(ctx, res)
		return
	}

	to, ok := in.Req.To()
	if !ok {
		res := sip.NewResponseFromRequest(in.Req, sip.StatusBadRequest, "", "")
		_ = in.Tx.Respond(ctx, res)
		return
	}
	aor := to.URI.String()

	contact, hasContact := in.Req.Contact()
	if hasContact && !contact.Star {
		expiresAt := time.Now().Add(h.bindingLifetime(in.Req, contact))
		if err := h.store.Bind(ctx, aor, contact.URI.String(), expiresAt); err != nil {
			h.logger.LogAttrs(ctx, slog.LevelError, "registrar: bind failed", slog.Any("error", err))
			res := sip.NewResponseFromRequest(in.Req, sip.StatusServerInternalError, "", "")
			_ = in.Tx.Respond(ctx, res)
			return
		}
	}

	res := sip.NewResponseFromRequest(in.Req, sip.StatusOK, "", "")
	if bindings, err := h.store.Lookup(ctx, aor); err == nil {
		for _, b := range bindings {
			res.Headers().Add("Contact", b.Contact+";expires="+strconv.Itoa(int(time.Until(b.Expires).Seconds())))
		}
	}
	_ = in.Tx.Respond(ctx, res)
}

func (h *Handler) bindingLifetime(req *sip.Request, contact *sip.NameAddr) time.Duration {
	if v, ok := contact.Param("expires"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if v, ok := req.Headers().Get("Expires"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultExpires
}
