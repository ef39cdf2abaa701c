package sip

import (
	"log/slog"
	"strconv"

	"github.com/coresip/coresip/internal/stringutils"
)

// Response is a parsed SIP response.
type Response struct {
	base
	StatusCode StatusCode
	Reason     string
}

func NewResponse(status StatusCode) *Response {
	return &Response{base: newBase(), StatusCode: status, Reason: status.ReasonPhrase()}
}

func (r *Response) IsRequest() bool { return false }

func (r *Response) StartLine() string {
	reason := r.Reason
	if reason == "" {
		reason = r.StatusCode.ReasonPhrase()
	}
	return r.SipVersion + " " + strconv.Itoa(int(r.StatusCode)) + " " + reason
}

func (r *Response) String() string {
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

func (r *Response) Clone() Message {
	return &Response{base: r.cloneBase(), StatusCode: r.StatusCode, Reason: r.Reason}
}

func (r *Response) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("status", int(r.StatusCode)),
		slog.String("reason", r.Reason),
	)
}
