package sip

import (
	"strconv"
	"strings"

	"github.com/coresip/coresip/internal/randutils"
	"github.com/coresip/coresip/internal/stringutils"
)

// BranchMagicCookie is the RFC 3261 §8.1.1.7 prefix that marks a branch
// parameter as produced by an RFC-3261-compliant implementation, letting
// the transaction layer use it directly as (most of) the matching key.
const BranchMagicCookie = "z9hG4bK"

// Via is the top-level structure of a Via header field value (RFC 3261
// §20.42). Each physical "Via:" line may carry one or more comma-separated
// entries; this stack always emits one entry per line, matching common
// practice, but ParseVia only ever parses the first entry of a field value
// since Request/Response.TopVia is the only thing callers need.
type Via struct {
	Transport Transport
	Host      string
	Port      uint16
	Params    map[string]string
	ParamKeys []string
}

func (v *Via) Param(name string) (string, bool) {
	if v.Params == nil {
		return "", false
	}
	p, ok := v.Params[strings.ToLower(name)]
	return p, ok
}

func (v *Via) SetParam(name, value string) {
	key := strings.ToLower(name)
	if v.Params == nil {
		v.Params = make(map[string]string, 4)
	}
	if _, exists := v.Params[key]; !exists {
		v.ParamKeys = append(v.ParamKeys, key)
	}
	v.Params[key] = value
}

func (v *Via) Branch() string {
	b, _ := v.Param("branch")
	return b
}

func (v *Via) SetBranch(branch string) { v.SetParam("branch", branch) }

// NewBranch generates a fresh RFC-3261-compliant branch value.
func NewBranch() string {
	return BranchMagicCookie + randutils.RandString(16)
}

func (v *Via) Received() (string, bool) { return v.Param("received") }
func (v *Via) RPort() (uint16, bool) {
	s, ok := v.Param("rport")
	if !ok || s == "" {
		return 0, false
	}
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(p), true
}

func (v *Via) Clone() *Via {
	if v == nil {
		return nil
	}
	c := &Via{Transport: v.Transport, Host: v.Host, Port: v.Port}
	c.Params = cloneMap(v.Params)
	c.ParamKeys = append([]string(nil), v.ParamKeys...)
	return c
}

func (v *Via) String() string {
	sb := stringutils.NewStrBldr()
	defer stringutils.FreeStrBldr(sb)

	sb.WriteString("SIP/2.0/")
	sb.WriteString(string(v.Transport))
	sb.WriteByte(' ')
	sb.WriteString(v.Host)
	if v.Port != 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(int(v.Port)))
	}
	for _, k := range v.ParamKeys {
		sb.WriteByte(';')
		sb.WriteString(k)
		if val := v.Params[k]; val != "" {
			sb.WriteByte('=')
			sb.WriteString(val)
		}
	}
	return sb.String()
}

// ParseVia parses a single Via entry, e.g. "SIP/2.0/UDP host:port;branch=...".
func ParseVia(raw string) (*Via, error) {
	raw = strings.TrimSpace(raw)
	if ci := strings.IndexByte(raw, ','); ci != -1 {
		raw = strings.TrimSpace(raw[:ci])
	}
	proto, rest, ok := strings.Cut(raw, " ")
	if !ok {
		return nil, NewParseError("malformed via: %q", raw)
	}
	parts := strings.SplitN(proto, "/", 3)
	if len(parts) != 3 {
		return nil, NewParseError("malformed via sent-protocol: %q", proto)
	}
	transport, ok := ParseTransport(parts[2])
	if !ok {
		return nil, NewParseError("unknown via transport: %q", parts[2])
	}

	rest = strings.TrimSpace(rest)
	var paramsPart string
	if pi := strings.IndexByte(rest, ';'); pi != -1 {
		paramsPart = rest[pi+1:]
		rest = rest[:pi]
	}

	host, port, err := splitHostPort(rest)
	if err != nil {
		return nil, errtraceParse(err)
	}

	v := &Via{Transport: transport, Host: host, Port: port}
	for _, kv := range splitParams(paramsPart) {
		if kv == "" {
			continue
		}
		k, val, _ := strings.Cut(kv, "=")
		v.SetParam(strings.TrimSpace(k), strings.TrimSpace(val))
	}
	return v, nil
}
