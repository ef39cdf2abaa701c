// Package dialog implements the RFC 3261 §12 dialog layer: dialog
// creation and state, in-dialog request sequencing and routing, digest
// authentication retry, and the registry that demultiplexes in-dialog
// requests onto their owning dialog.
package dialog

//go:generate errtrace -w .

import (
	"github.com/google/uuid"
)

// ID identifies a dialog by the triple RFC 3261 §12 defines, taken
// consistently from one side's perspective: the Call-ID shared by both
// sides, this side's own tag, and the tag the peer assigned.
type ID struct {
	CallID    string
	LocalTag  string
	RemoteTag string
}

// NewCallID generates a globally-unique Call-ID value. The teacher's stack
// uses a random hex string; this one uses a UUID, grounded on the same
// "opaque globally-unique token" requirement of RFC 3261 §8.1.1.4.
func NewCallID() string {
	return uuid.NewString()
}

// NewTag generates a from-/to-tag value, RFC 3261 §19.3: an opaque token
// unique enough that combined with Call-ID it never collides across calls.
func NewTag() string {
	return uuid.NewString()
}
