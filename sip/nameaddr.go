package sip

import (
	"strings"

	"github.com/coresip/coresip/internal/stringutils"
)

// NameAddr is the "name-addr" / "addr-spec" production shared by From, To,
// Contact, Route and Record-Route: an optional display name, a URI, and
// header parameters (of which "tag" is the one most heavily relied upon).
type NameAddr struct {
	DisplayName string
	URI         *URI
	Params      map[string]string
	ParamKeys   []string

	// Star is true for Contact: * (a REGISTER removing all bindings).
	Star bool
}

func (n *NameAddr) Param(name string) (string, bool) {
	if n.Params == nil {
		return "", false
	}
	v, ok := n.Params[strings.ToLower(name)]
	return v, ok
}

func (n *NameAddr) SetParam(name, value string) {
	key := strings.ToLower(name)
	if n.Params == nil {
		n.Params = make(map[string]string, 2)
	}
	if _, exists := n.Params[key]; !exists {
		n.ParamKeys = append(n.ParamKeys, key)
	}
	n.Params[key] = value
}

func (n *NameAddr) Tag() string {
	v, _ := n.Param("tag")
	return v
}

func (n *NameAddr) SetTag(tag string) { n.SetParam("tag", tag) }

func (n *NameAddr) Clone() *NameAddr {
	if n == nil {
		return nil
	}
	c := &NameAddr{DisplayName: n.DisplayName, URI: n.URI.Clone(), Star: n.Star}
	c.Params = cloneMap(n.Params)
	c.ParamKeys = append([]string(nil), n.ParamKeys...)
	return c
}

func (n *NameAddr) String() string {
	if n.Star {
		return "*"
	}

	sb := stringutils.NewStrBldr()
	defer stringutils.FreeStrBldr(sb)

	angled := n.DisplayName != "" || len(n.ParamKeys) > 0
	if n.DisplayName != "" {
		sb.WriteByte('"')
		sb.WriteString(n.DisplayName)
		sb.WriteByte('"')
		sb.WriteByte(' ')
	}
	if angled {
		sb.WriteByte('<')
	}
	sb.WriteString(n.URI.String())
	if angled {
		sb.WriteByte('>')
	}
	for _, k := range n.ParamKeys {
		sb.WriteByte(';')
		sb.WriteString(k)
		if v := n.Params[k]; v != "" {
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	return sb.String()
}

// ParseNameAddr parses a From/To/Contact/Route/Record-Route header value.
func ParseNameAddr(raw string) (*NameAddr, error) {
	raw = strings.TrimSpace(raw)
	if raw == "*" {
		return &NameAddr{Star: true}, nil
	}

	n := &NameAddr{}

	rest := raw
	if li := strings.IndexByte(rest, '<'); li != -1 {
		n.DisplayName = strings.Trim(strings.TrimSpace(rest[:li]), `"`)
		ri := strings.IndexByte(rest, '>')
		if ri == -1 || ri < li {
			return nil, NewParseError("unterminated name-addr: %q", raw)
		}
		uriPart := rest[li+1 : ri]
		u, err := ParseURI(uriPart)
		if err != nil {
			return nil, errtraceParse(err)
		}
		n.URI = u
		rest = strings.TrimSpace(rest[ri+1:])
		rest = strings.TrimPrefix(rest, ";")
	} else {
		// addr-spec form: "sip:...;uri-params" optionally followed by
		// ";header-params" — ambiguous with URI params, so split on the
		// first ';' only when the URI parse of the whole remainder fails
		// to consume header params cleanly. In practice header params
		// after an addr-spec are rare (bare From/To); treat the whole
		// string as the URI, then fall back to no header params.
		u, err := ParseURI(rest)
		if err != nil {
			return nil, errtraceParse(err)
		}
		n.URI = u
		return n, nil
	}

	for _, kv := range splitParams(rest) {
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		n.SetParam(strings.TrimSpace(k), strings.Trim(strings.TrimSpace(v), `"`))
	}

	return n, nil
}

func splitParams(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}
