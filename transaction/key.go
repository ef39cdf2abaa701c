// Package transaction implements the RFC 3261 §17 transaction layer: the
// four state machines (INVITE/non-INVITE, client/server), transaction
// matching, and the registry that demultiplexes inbound messages onto them.
package transaction

//go:generate errtrace -w .

import (
	"strconv"
	"strings"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/sip"
)

// IsRFC3261Branch reports whether branch carries the magic cookie that
// marks it as produced by an RFC-3261-compliant UAC, letting the layer use
// branch+method as the whole matching key instead of falling back to the
// RFC 2543 heuristic of §17.2.3.
func IsRFC3261Branch(branch string) bool {
	return strings.HasPrefix(branch, sip.BranchMagicCookie) && len(branch) > len(sip.BranchMagicCookie)
}

// Key identifies a transaction for matching inbound messages, per RFC 3261
// §17.1.3 (client) and §17.2.3 (server). Two forms exist:
//
//   - RFC 3261: Branch + SentBy (only for server keys, since a UAC never
//     needs sent-by to match its own responses) + Method.
//   - RFC 2543 fallback (server-side only, request matching with no magic
//     cookie branch): Call-ID, CSeq number, From tag, and the top Via.
type Key struct {
	Branch string
	SentBy string
	Method sip.Method

	// RFC 2543 fallback fields, populated only when Branch is empty.
	CallID  string
	CSeqNum uint32
	FromTag string
	Via     string
}

// IsValid reports whether k carries enough information to match.
func (k Key) IsValid() bool {
	if k.Branch != "" {
		return k.Method != ""
	}
	return k.CallID != "" && k.FromTag != "" && k.Via != ""
}

// ClientKeyFromRequest computes the key a client transaction is registered
// under: the branch it puts on the request's top Via, plus its method
// (RFC 3261 §17.1.3 uses branch and method only — no sent-by, since a UAC
// need not disambiguate against itself).
func ClientKeyFromRequest(req *sip.Request) Key {
	var branch string
	if v, ok := req.TopVia(); ok {
		branch = v.Branch()
	}
	return Key{Branch: branch, Method: req.Method}
}

// ClientKeyFromResponse computes the key an inbound response must match
// against a pending client transaction: same branch as the request's top
// Via, and the CSeq method (so a CANCEL's own transaction, not the
// INVITE's, receives CANCEL's response, and an INVITE transaction still
// receives responses to the ACK-carrying same branch since ACK for a 2xx
// is not itself a transaction — see builder.NewAck).
func ClientKeyFromResponse(res *sip.Response) Key {
	var branch string
	if v, ok := res.TopVia(); ok {
		branch = v.Branch()
	}
	method := sip.INVITE
	if c, ok := res.CSeq(); ok {
		method = c.Method
	}
	return Key{Branch: branch, Method: method}
}

// ServerKeyFromRequest computes the key a server transaction is registered
// and matched under. ACK for a non-2xx final response folds onto its
// INVITE transaction's key (RFC 3261 §17.2.3: "the method of the request
// that created the transaction" — for ACK that is INVITE).
func ServerKeyFromRequest(req *sip.Request, local sip.SipAddr) Key {
	via, hasVia := req.TopVia()
	if hasVia && IsRFC3261Branch(via.Branch()) {
		method := req.Method
		if method == sip.ACK {
			method = sip.INVITE
		}
		return Key{Branch: via.Branch(), SentBy: strings.ToLower(sentBy(via)), Method: method}
	}
	return rfc2543Key(req)
}

func sentBy(v *sip.Via) string {
	if v.Port != 0 {
		return v.Host + ":" + strconv.Itoa(int(v.Port))
	}
	return v.Host
}

func rfc2543Key(req *sip.Request) Key {
	callID, _ := req.CallID()
	from, _ := req.From()
	via, _ := req.TopVia()

	var fromTag string
	if from != nil {
		fromTag = from.Tag()
	}
	var viaStr string
	if via != nil {
		viaStr = strings.ToLower(via.String())
	}
	var cseqNum uint32
	if c, ok := req.CSeq(); ok {
		cseqNum = c.Seq
	}

	return Key{
		CallID:  strings.ToLower(callID),
		CSeqNum: cseqNum,
		FromTag: strings.ToLower(fromTag),
		Via:     viaStr,
	}
}

// ErrKeyMismatch reports that a message does not carry enough header state
// to compute a key at all.
const ErrKeyMismatch errorutil.Error = "transaction: message has no usable transaction key"
