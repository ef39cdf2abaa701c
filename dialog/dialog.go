package dialog

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
)

// State is a dialog's lifecycle stage, RFC 3261 §12.
type State string

const (
	StateEarly      State = "early"
	StateConfirmed  State = "confirmed"
	StateTerminated State = "terminated"
)

// ErrStaleRequest is returned when an in-dialog request's CSeq does not
// exceed the dialog's remote sequence number (RFC 3261 §12.2.2).
const ErrStaleRequest errorutil.Error = "dialog: cseq not greater than remote sequence"

// ErrTerminated is returned by operations attempted on a dialog that has
// already reached Terminated.
const ErrTerminated errorutil.Error = "dialog: already terminated"

// Credential is the digest authentication material a dialog retries a
// challenged request with, per RFC 7616.
type Credential struct {
	Username string
	Password string
	Realm    string
}

// Dialog is a single RFC 3261 §12 dialog: the peer-to-peer relationship
// established by a dialog-creating transaction and used to route
// subsequent in-dialog requests.
type Dialog struct {
	mu sync.Mutex

	id     ID
	state  atomic.Value // State
	isUAC  bool
	logger *slog.Logger

	localURI     *sip.NameAddr
	remoteURI    *sip.NameAddr
	localSeq     uint32
	remoteSeq    uint32
	remoteTarget *sip.URI
	routeSet     []*sip.NameAddr
	dest         sip.SipAddr

	credential *Credential

	done chan struct{}
	once sync.Once
}

func newDialog(id ID, isUAC bool, localURI, remoteURI *sip.NameAddr, localSeq uint32, dest sip.SipAddr, logger *slog.Logger) *Dialog {
	if logger == nil {
		logger = log.Default
	}
	d := &Dialog{
		id:           id,
		isUAC:        isUAC,
		logger:       logger,
		localURI:     localURI,
		remoteURI:    remoteURI,
		localSeq:     localSeq,
		remoteTarget: remoteURI.URI,
		dest:         dest,
		done:         make(chan struct{}),
	}
	d.state.Store(StateEarly)
	return d
}

// destination returns the transport-layer address this dialog's in-dialog
// requests are sent to.
func (d *Dialog) destination() sip.SipAddr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dest
}

// routeSetSnapshot returns a copy of the dialog's current route-set.
func (d *Dialog) routeSetSnapshot() []*sip.NameAddr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*sip.NameAddr(nil), d.routeSet...)
}

// ID returns the dialog's identifying triple.
func (d *Dialog) ID() ID { return d.id }

// State reports the dialog's current lifecycle stage.
func (d *Dialog) State() State { return d.state.Load().(State) //nolint:forcetypeassert
}

// Done is closed once the dialog reaches Terminated.
func (d *Dialog) Done() <-chan struct{} { return d.done }

// SetCredential attaches digest credentials the dialog uses to retry a
// challenged request, per §4.4's auth-retry behavior.
func (d *Dialog) SetCredential(c Credential) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credential = &c
}

func (d *Dialog) credentials() *Credential {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.credential
}

// confirm transitions Early -> Confirmed on receipt of a 2xx, recording
// the peer's tag if this dialog did not already have one (early dialogs
// created on a 1xx already captured it).
func (d *Dialog) confirm(remoteTag string) {
	d.mu.Lock()
	if d.id.RemoteTag == "" {
		d.id.RemoteTag = remoteTag
	}
	d.mu.Unlock()
	d.state.Store(StateConfirmed)
}

func (d *Dialog) terminate(ctx context.Context) {
	d.once.Do(func() {
		d.state.Store(StateTerminated)
		close(d.done)
		d.logger.LogAttrs(ctx, slog.LevelDebug, "dialog terminated", slog.Any("id", d.id))
	})
}

// nextLocalSeq increments and returns the CSeq number for the next
// non-ACK outgoing in-dialog request.
func (d *Dialog) nextLocalSeq() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.localSeq++
	return d.localSeq
}

// acceptIncomingSeq enforces RFC 3261 §12.2.2's in-order delivery rule.
func (d *Dialog) acceptIncomingSeq(seq uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remoteSeq != 0 && seq <= d.remoteSeq {
		return ErrStaleRequest
	}
	d.remoteSeq = seq
	return nil
}

// setRemoteTarget records the Contact the peer most recently offered, used
// as the Request-URI of subsequent outgoing requests absent a route-set
// override.
func (d *Dialog) setRemoteTarget(u *sip.URI) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remoteTarget = u
}

// setRouteSet records the dialog's fixed route-set, reversed for the UAC
// side already by the caller per RFC 3261 §12.1.1/§12.1.2.
func (d *Dialog) setRouteSet(rs []*sip.NameAddr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routeSet = rs
}

// buildRequest constructs an in-dialog request for method, targeting
// remote_target unless the route-set's first entry lacks ;lr (strict
// routing, per §12.2.1.1), in which case the first Route becomes the
// Request-URI and the old Request-URI is appended to the route-set.
func (d *Dialog) buildRequest(method sip.Method) *sip.Request {
	d.mu.Lock()
	target := d.remoteTarget
	routeSet := append([]*sip.NameAddr(nil), d.routeSet...)
	localURI := d.localURI
	remoteURI := d.remoteURI
	id := d.id
	dest := d.dest
	d.mu.Unlock()

	requestURI := target
	if len(routeSet) > 0 {
		if _, lr := routeSet[0].URI.Param("lr"); !lr {
			strictURI := routeSet[0].URI
			routeSet = append(routeSet[1:], &sip.NameAddr{URI: target})
			requestURI = strictURI
		}
	}

	req := sip.NewRequest(method, requestURI.Clone())
	req.SetMaxForwards(70)

	via := &sip.Via{Transport: dest.Transport, Host: requestURI.Host}
	via.SetBranch(sip.NewBranch())
	req.SetTopVia(via)

	from := localURI.Clone()
	from.SetTag(id.LocalTag)
	req.Headers().Add("From", from.String())

	to := remoteURI.Clone()
	to.SetTag(id.RemoteTag)
	req.Headers().Add("To", to.String())

	req.Headers().Add("Call-ID", id.CallID)

	for _, r := range routeSet {
		req.Headers().Add("Route", r.String())
	}

	return req
}

// setCSeq stamps the CSeq header for an outgoing in-dialog request.
func setCSeq(req *sip.Request, seq uint32, method sip.Method) {
	req.SetCSeq(sip.CSeq{Seq: seq, Method: method})
}

// LogValue renders the dialog for structured logging.
func (d *Dialog) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("id", d.id),
		slog.String("state", string(d.State())),
		slog.Bool("uac", d.isUAC),
	)
}
