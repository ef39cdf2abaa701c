package sip

import (
	"log/slog"

	"github.com/coresip/coresip/internal/stringutils"
)

// Request is a parsed SIP request.
type Request struct {
	base
	Method     Method
	RequestURI *URI
}

func NewRequest(method Method, requestURI *URI) *Request {
	return &Request{base: newBase(), Method: method, RequestURI: requestURI}
}

func (r *Request) IsRequest() bool { return true }

func (r *Request) StartLine() string {
	return string(r.Method) + " " + r.RequestURI.String() + " " + r.SipVersion
}

func (r *Request) String() string {
	r.syncContentLength()
	sb := stringutils.NewStrBldr()
	defer stringutils.FreeStrBldr(sb)
	sb.WriteString(r.StartLine())
	sb.WriteString("\r\n")
	sb.WriteString(r.headers.String())
	sb.WriteString("\r\n")
	sb.Write(r.body)
	return sb.String()
}

func (r *Request) Clone() Message {
	return &Request{base: r.cloneBase(), Method: r.Method, RequestURI: r.RequestURI.Clone()}
}

func (r *Request) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("method", string(r.Method)),
		slog.String("request_uri", r.RequestURI.String()),
	)
}
