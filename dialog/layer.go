package dialog

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"time"

	"github.com/coresip/coresip/internal/syncutil"
	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
	"github.com/coresip/coresip/transport"
)

// DefaultGracePeriod is how long a Terminated dialog stays in the
// registry to absorb late in-dialog retransmissions before eviction.
const DefaultGracePeriod = 32 * time.Second

// IncomingInvite is handed to the application for every server
// transaction carrying an initial (out-of-dialog) INVITE, so it can
// Accept or Reject it.
type IncomingInvite struct {
	l      *Layer
	tx     transaction.ServerTransaction
	req    *sip.Request
	source sip.SipAddr
}

// Request returns the INVITE request that created this offer.
func (in *IncomingInvite) Request() *sip.Request { return in.req }

// Layer is the RFC 3261 §12 dialog layer: it creates and looks up
// dialogs, demultiplexes in-dialog requests onto them, and owns the
// digest-authentication retry behavior of outgoing requests.
type Layer struct {
	logger *slog.Logger
	tx     *transaction.Layer
	tp     sender

	contact     *sip.NameAddr
	contactHost string

	dialogs     *syncutil.RWMap[ID, *Dialog]
	gracePeriod time.Duration

	authRetry   bool
	incoming    chan *IncomingInvite
	incomingReq chan *IncomingRequest
}

// sender is the narrow transport surface the dialog layer sends ACKs and
// CANCELs through, directly and outside any transaction.
type sender interface {
	Send(ctx context.Context, msg sip.Message, dest sip.SipAddr, hint transport.Connection) (transport.Connection, error)
}

// Option configures a Layer.
type Option func(*Layer)

func WithLogger(logger *slog.Logger) Option { return func(l *Layer) { l.logger = logger } }
func WithContact(contact *sip.NameAddr) Option {
	return func(l *Layer) {
		l.contact = contact
		l.contactHost = contact.URI.Host
	}
}
func WithGracePeriod(d time.Duration) Option { return func(l *Layer) { l.gracePeriod = d } }
func WithAuthRetry(enabled bool) Option      { return func(l *Layer) { l.authRetry = enabled } }

// NewLayer creates a dialog layer driving requests through tx (for
// transaction-bound sends) and tp (for the direct, non-transactional
// sends RFC 3261 requires for 2xx ACKs and CANCELs).
func NewLayer(tx *transaction.Layer, tp sender, opts ...Option) *Layer {
	l := &Layer{
		logger:      log.Default,
		tx:          tx,
		tp:          tp,
		dialogs:     &syncutil.RWMap[ID, *Dialog]{},
		gracePeriod: DefaultGracePeriod,
		authRetry:   true,
		incoming:    make(chan *IncomingInvite, 16),
		incomingReq: make(chan *IncomingRequest, 16),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Incoming yields an IncomingInvite for every new out-of-dialog INVITE the
// endpoint hands this layer, for the application to Accept or Reject.
func (l *Layer) Incoming() <-chan *IncomingInvite { return l.incoming }

// Requests yields an IncomingRequest for every in-dialog INFO, UPDATE, or
// re-INVITE the endpoint hands this layer, for the application to answer.
func (l *Layer) Requests() <-chan *IncomingRequest { return l.incomingReq }

// register adds dlg to the registry, keyed by its current ID, and arms
// its grace-period eviction once it terminates.
func (l *Layer) register(dlg *Dialog) {
	id := dlg.ID()
	if _, exists := l.dialogs.Get(id); exists {
		return
	}
	l.dialogs.Set(id, dlg)
	go func() {
		<-dlg.Done()
		time.Sleep(l.gracePeriod)
		l.dialogs.Del(id)
	}()
}

// Lookup finds the dialog an in-dialog request or response's triple
// identifies. match is taken from the perspective of the side holding
// the registry: when looking up by an inbound message the caller must
// swap local/remote tag according to which side it is.
func (l *Layer) Lookup(id ID) (*Dialog, bool) {
	return l.dialogs.Get(id)
}

// Len reports how many dialogs (including those in their grace period)
// the registry currently holds.
func (l *Layer) Len() int { return l.dialogs.Len() }

// HandleRequest routes an in-dialog request to its owning dialog and
// enforces the §12.2.2 CSeq ordering rule, returning the dialog so the
// caller's server transaction can be told how to answer. matched is false if
// no dialog matches req, meaning the caller should treat it as starting a
// new dialog (if INVITE) or answer 481 otherwise.
func (l *Layer) HandleRequest(req *sip.Request, source sip.SipAddr) (dlg *Dialog, matched bool, err error) {
	id, ok := localSideID(req)
	if !ok {
		return nil, false, nil
	}
	dlg, ok = l.dialogs.Get(id)
	if !ok {
		return nil, false, nil
	}

	if req.Method == sip.ACK {
		return dlg, true, nil
	}
	cseq, _ := req.CSeq()
	if err := dlg.acceptIncomingSeq(cseq.Seq); err != nil {
		return dlg, true, err
	}
	if cs, ok := req.Contact(); ok {
		dlg.setRemoteTarget(cs.URI)
	}
	return dlg, true, nil
}

// localSideID extracts the dialog ID from an inbound in-dialog request,
// from the recipient's own perspective: its own tag is the request's
// To-tag, the peer's is the From-tag.
func localSideID(req *sip.Request) (ID, bool) {
	callID, ok := req.CallID()
	if !ok {
		return ID{}, false
	}
	from, ok := req.From()
	if !ok || from.Tag() == "" {
		return ID{}, false
	}
	to, ok := req.To()
	if !ok || to.Tag() == "" {
		return ID{}, false
	}
	return ID{CallID: callID, LocalTag: to.Tag(), RemoteTag: from.Tag()}, true
}
