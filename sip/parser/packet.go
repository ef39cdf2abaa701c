package parser

import (
	"braces.dev/errtrace"

	"github.com/coresip/coresip/sip"
)

// ParseDatagram parses one UDP datagram as exactly one SIP message, per
// RFC 3261 §18.1.1/§18.2.1: there is no Content-Length framing to honor,
// the body is simply whatever bytes remain after the header block.
func ParseDatagram(data []byte) (sip.Message, error) {
	msg, err := Parse(data)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return msg, nil
}

// SerializeDatagram renders msg for a single UDP send. Oversized messages
// are not split or rejected here; RFC 3261 §18.1.1 asks senders to prefer
// a congestion-controlled transport above the path MTU, which this stack
// surfaces as a logged warning at the transport layer (see transport/udp.go)
// rather than failing the send.
func SerializeDatagram(msg sip.Message) []byte {
	return []byte(msg.String())
}
