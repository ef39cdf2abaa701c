package sip

import (
	"strconv"
	"strings"

	"github.com/coresip/coresip/internal/stringutils"
)

// URI is a sip:/sips: URI, RFC 3261 §19.1. Non-SIP schemes (e.g. tel:) are
// preserved verbatim in Opaque and the remaining fields are left zero.
type URI struct {
	Scheme   string // "sip" or "sips"; empty for an opaque URI
	Opaque   string // raw content when Scheme is not sip/sips
	User     string
	Password string
	Host     string
	Port     uint16 // 0 means "not specified"

	// UriParams preserves insertion order via UriParamKeys; UriParams is
	// keyed by lower-cased parameter name.
	UriParams    map[string]string
	UriParamKeys []string

	Headers    map[string]string
	HeaderKeys []string
}

// NewSipURI builds a minimal sip: URI for the given user@host.
func NewSipURI(user, host string, port uint16) *URI {
	return &URI{Scheme: "sip", User: user, Host: host, Port: port}
}

func (u *URI) IsSecure() bool { return strings.EqualFold(u.Scheme, "sips") }

// Transport returns the ";transport=" URI parameter, if present.
func (u *URI) Transport() (Transport, bool) {
	v, ok := u.Param("transport")
	if !ok {
		return "", false
	}
	return ParseTransport(v)
}

func (u *URI) Param(name string) (string, bool) {
	if u.UriParams == nil {
		return "", false
	}
	v, ok := u.UriParams[strings.ToLower(name)]
	return v, ok
}

func (u *URI) SetParam(name, value string) {
	key := strings.ToLower(name)
	if u.UriParams == nil {
		u.UriParams = make(map[string]string, 4)
	}
	if _, exists := u.UriParams[key]; !exists {
		u.UriParamKeys = append(u.UriParamKeys, key)
	}
	u.UriParams[key] = value
}

// PortOrDefault returns Port, or the transport's default port when unset.
func (u *URI) PortOrDefault() uint16 {
	if u.Port != 0 {
		return u.Port
	}
	if t, ok := u.Transport(); ok {
		return t.DefaultPort()
	}
	if u.IsSecure() {
		return TLS.DefaultPort()
	}
	return UDP.DefaultPort()
}

func (u *URI) Clone() *URI {
	if u == nil {
		return nil
	}
	c := *u
	c.UriParams = cloneMap(u.UriParams)
	c.UriParamKeys = append([]string(nil), u.UriParamKeys...)
	c.Headers = cloneMap(u.Headers)
	c.HeaderKeys = append([]string(nil), u.HeaderKeys...)
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (u *URI) String() string {
	if u.Scheme != "sip" && u.Scheme != "sips" {
		return u.Opaque
	}

	sb := stringutils.NewStrBldr()
	defer stringutils.FreeStrBldr(sb)

	sb.WriteString(u.Scheme)
	sb.WriteByte(':')
	if u.User != "" {
		sb.WriteString(u.User)
		if u.Password != "" {
			sb.WriteByte(':')
			sb.WriteString(u.Password)
		}
		sb.WriteByte('@')
	}
	sb.WriteString(u.Host)
	if u.Port != 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(int(u.Port)))
	}
	for _, k := range u.UriParamKeys {
		sb.WriteByte(';')
		sb.WriteString(k)
		if v := u.UriParams[k]; v != "" {
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	if len(u.HeaderKeys) > 0 {
		sb.WriteByte('?')
		for i, k := range u.HeaderKeys {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(u.Headers[k])
		}
	}
	return sb.String()
}

// ParseURI parses a sip:/sips: URI. Any other scheme is preserved as-is
// through Opaque so that non-SIP Request-URIs (rare, but legal in a Route
// or After-header context) still round-trip.
func ParseURI(raw string) (*URI, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">") {
		raw = raw[1 : len(raw)-1]
	}

	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, NewParseError("uri missing scheme: %q", raw)
	}
	lscheme := strings.ToLower(scheme)
	if lscheme != "sip" && lscheme != "sips" {
		return &URI{Opaque: raw}, nil
	}

	u := &URI{Scheme: lscheme}

	// split off ?headers
	if hi := strings.IndexByte(rest, '?'); hi != -1 {
		headerPart := rest[hi+1:]
		rest = rest[:hi]
		for _, kv := range strings.Split(headerPart, "&") {
			k, v, _ := strings.Cut(kv, "=")
			if u.Headers == nil {
				u.Headers = make(map[string]string)
			}
			u.Headers[k] = v
			u.HeaderKeys = append(u.HeaderKeys, k)
		}
	}

	// split off ;params, but only after the userinfo@host part: params can't
	// contain '@' so this is safe to do before splitting userinfo.
	if pi := strings.IndexByte(rest, ';'); pi != -1 {
		paramPart := rest[pi+1:]
		rest = rest[:pi]
		for _, kv := range strings.Split(paramPart, ";") {
			if kv == "" {
				continue
			}
			k, v, _ := strings.Cut(kv, "=")
			u.SetParam(k, v)
		}
	}

	if ai := strings.LastIndexByte(rest, '@'); ai != -1 {
		userinfo := rest[:ai]
		rest = rest[ai+1:]
		u.User, u.Password, _ = strings.Cut(userinfo, ":")
	}

	host, port, err := splitHostPort(rest)
	if err != nil {
		return nil, errtraceParse(err)
	}
	u.Host = host
	u.Port = port

	return u, nil
}

func splitHostPort(hostport string) (string, uint16, error) {
	if hostport == "" {
		return "", 0, nil
	}
	if strings.HasPrefix(hostport, "[") {
		// IPv6 literal: "[::1]" or "[::1]:5060"
		end := strings.IndexByte(hostport, ']')
		if end == -1 {
			return "", 0, NewParseError("unterminated ipv6 literal: %q", hostport)
		}
		host := hostport[:end+1]
		if end+1 == len(hostport) {
			return host, 0, nil
		}
		if hostport[end+1] != ':' {
			return "", 0, NewParseError("malformed host:port: %q", hostport)
		}
		port, err := strconv.ParseUint(hostport[end+2:], 10, 16)
		if err != nil {
			return "", 0, NewParseError("malformed port in %q: %v", hostport, err)
		}
		return host, uint16(port), nil
	}

	host, portStr, found := strings.Cut(hostport, ":")
	if !found {
		return host, 0, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, NewParseError("malformed port in %q: %v", hostport, err)
	}
	return host, uint16(port), nil
}
