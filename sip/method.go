package sip

// Method is a SIP request method. Only the dialog-forming and
// dialog-adjacent methods this stack treats as first-class are named;
// unrecognized methods still round-trip as opaque strings.
type Method string

const (
	INVITE   Method = "INVITE"
	ACK      Method = "ACK"
	BYE      Method = "BYE"
	CANCEL   Method = "CANCEL"
	REGISTER Method = "REGISTER"
	OPTIONS  Method = "OPTIONS"
	INFO     Method = "INFO"
	UPDATE   Method = "UPDATE"
	PRACK    Method = "PRACK"
)

// IsInvite reports whether m follows the INVITE transaction state machines
// of RFC 3261 §17.1.1/§17.2.1 rather than the non-INVITE ones.
func (m Method) IsInvite() bool { return m == INVITE }
