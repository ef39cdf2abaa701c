package sip

// NewResponseFromRequest builds a response to req, copying the header
// fields RFC 3261 §8.2.6.2 requires to be echoed verbatim: Via (all
// entries, in order), From, To (with toTag added if it is non-empty and To
// carries none yet), Call-ID and CSeq.
func NewResponseFromRequest(req *Request, status StatusCode, reason string, toTag string) *Response {
	resp := NewResponse(status)
	if reason != "" {
		resp.Reason = reason
	}

	for _, raw := range req.headers.GetAll("Via") {
		resp.headers.Add("Via", raw)
	}
	if v, ok := req.headers.Get("From"); ok {
		resp.headers.Add("From", v)
	}
	if to, ok := req.To(); ok {
		if toTag != "" && to.Tag() == "" {
			to.SetTag(toTag)
		}
		resp.headers.Add("To", to.String())
	}
	if v, ok := req.headers.Get("Call-ID"); ok {
		resp.headers.Add("Call-ID", v)
	}
	if c, ok := req.CSeq(); ok {
		resp.SetCSeq(c)
	}
	return resp
}

// NewAck builds the ACK that a client INVITE transaction sends for a
// non-2xx final response (RFC 3261 §17.1.1.3): same branch as the INVITE,
// same Request-URI, reusing the INVITE's CSeq number with method ACK.
func NewAck(invite *Request, resp *Response) *Request {
	ack := NewRequest(ACK, invite.RequestURI.Clone())
	ack.SipVersion = invite.SipVersion

	if v, ok := invite.TopVia(); ok {
		ack.headers.Add("Via", v.String())
	}
	if v, ok := invite.headers.Get("From"); ok {
		ack.headers.Add("From", v)
	}
	if to, ok := resp.To(); ok {
		ack.headers.Add("To", to.String())
	} else if v, ok := invite.headers.Get("To"); ok {
		ack.headers.Add("To", v)
	}
	if v, ok := invite.headers.Get("Call-ID"); ok {
		ack.headers.Add("Call-ID", v)
	}
	if c, ok := invite.CSeq(); ok {
		ack.SetCSeq(CSeq{Seq: c.Seq, Method: ACK})
	}
	if mf, ok := invite.MaxForwards(); ok {
		ack.SetMaxForwards(mf)
	}
	return ack
}

// NewCancel builds the CANCEL for a pending INVITE, per RFC 3261 §9.1:
// same Request-URI, same top Via (same branch), same From/To/Call-ID, and
// CSeq number equal to the INVITE's with method CANCEL.
func NewCancel(invite *Request) *Request {
	cancel := NewRequest(CANCEL, invite.RequestURI.Clone())
	cancel.SipVersion = invite.SipVersion

	if v, ok := invite.TopVia(); ok {
		cancel.headers.Add("Via", v.String())
	}
	if v, ok := invite.headers.Get("From"); ok {
		cancel.headers.Add("From", v)
	}
	if v, ok := invite.headers.Get("To"); ok {
		cancel.headers.Add("To", v)
	}
	if v, ok := invite.headers.Get("Call-ID"); ok {
		cancel.headers.Add("Call-ID", v)
	}
	if c, ok := invite.CSeq(); ok {
		cancel.SetCSeq(CSeq{Seq: c.Seq, Method: CANCEL})
	}
	if mf, ok := invite.MaxForwards(); ok {
		cancel.SetMaxForwards(mf)
	}
	if rs := invite.RouteSet(); len(rs) > 0 {
		for _, r := range rs {
			cancel.headers.Add("Route", r.String())
		}
	}
	return cancel
}
