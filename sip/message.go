package sip

import (
	"strconv"

	"log/slog"
)

// Message is the common surface of Request and Response: header and body
// access shared by the transport, transaction and dialog layers.
type Message interface {
	IsRequest() bool
	Headers() *Headers
	Body() []byte
	SetBody(b []byte)
	CallID() (string, bool)
	CSeq() (CSeq, bool)
	TopVia() (*Via, bool)
	Vias() []*Via
	From() (*NameAddr, bool)
	To() (*NameAddr, bool)
	Contact() (*NameAddr, bool)
	RouteSet() []*NameAddr
	RecordRouteSet() []*NameAddr
	MaxForwards() (int, bool)
	ContentLength() int
	String() string
	Clone() Message
	slog.LogValuer
}

// base holds the fields and typed accessors shared by Request and
// Response; it is embedded, not used standalone.
type base struct {
	SipVersion string
	headers    *Headers
	body       []byte
}

func newBase() base {
	return base{SipVersion: "SIP/2.0", headers: NewHeaders()}
}

func (b *base) Headers() *Headers   { return b.headers }
func (b *base) Body() []byte        { return b.body }
func (b *base) SetBody(body []byte) { b.body = body }

func (b *base) CallID() (string, bool) { return b.headers.Get("Call-ID") }

func (b *base) CSeq() (CSeq, bool) {
	v, ok := b.headers.Get("CSeq")
	if !ok {
		return CSeq{}, false
	}
	cseq, err := ParseCSeq(v)
	if err != nil {
		return CSeq{}, false
	}
	return cseq, true
}

func (b *base) SetCSeq(c CSeq) { b.headers.Set("CSeq", c.String()) }

func (b *base) Vias() []*Via {
	raws := b.headers.GetAll("Via")
	vias := make([]*Via, 0, len(raws))
	for _, raw := range raws {
		if v, err := ParseVia(raw); err == nil {
			vias = append(vias, v)
		}
	}
	return vias
}

func (b *base) TopVia() (*Via, bool) {
	raw, ok := b.headers.Get("Via")
	if !ok {
		return nil, false
	}
	v, err := ParseVia(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (b *base) SetTopVia(v *Via) {
	all := b.headers.GetAll("Via")
	b.headers.Del("Via")
	b.headers.Add("Via", v.String())
	for _, raw := range all[min(1, len(all)):] {
		b.headers.Add("Via", raw)
	}
}

func (b *base) From() (*NameAddr, bool) { return b.parseAddr("From") }
func (b *base) To() (*NameAddr, bool)   { return b.parseAddr("To") }

func (b *base) Contact() (*NameAddr, bool) {
	raw, ok := b.headers.Get("Contact")
	if !ok {
		return nil, false
	}
	n, err := ParseNameAddr(raw)
	if err != nil {
		return nil, false
	}
	return n, true
}

func (b *base) parseAddr(name string) (*NameAddr, bool) {
	raw, ok := b.headers.Get(name)
	if !ok {
		return nil, false
	}
	n, err := ParseNameAddr(raw)
	if err != nil {
		return nil, false
	}
	return n, true
}

func (b *base) RouteSet() []*NameAddr       { return b.parseAddrList("Route") }
func (b *base) RecordRouteSet() []*NameAddr { return b.parseAddrList("Record-Route") }

func (b *base) parseAddrList(name string) []*NameAddr {
	raws := b.headers.GetAll(name)
	out := make([]*NameAddr, 0, len(raws))
	for _, raw := range raws {
		if n, err := ParseNameAddr(raw); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func (b *base) MaxForwards() (int, bool) {
	v, ok := b.headers.Get("Max-Forwards")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (b *base) SetMaxForwards(n int) { b.headers.Set("Max-Forwards", strconv.Itoa(n)) }

func (b *base) ContentLength() int {
	v, ok := b.headers.Get("Content-Length")
	if !ok {
		return len(b.body)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return len(b.body)
	}
	return n
}

func (b *base) syncContentLength() { b.headers.Set("Content-Length", strconv.Itoa(len(b.body))) }

func (b *base) cloneBase() base {
	nb := base{SipVersion: b.SipVersion, headers: b.headers.Clone()}
	if b.body != nil {
		nb.body = append([]byte(nil), b.body...)
	}
	return nb
}
