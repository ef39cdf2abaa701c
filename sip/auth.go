package sip

import (
	"strings"

	"github.com/coresip/coresip/internal/stringutils"
)

// Challenge is the parsed value of a WWW-Authenticate / Proxy-Authenticate
// header field: a scheme (always "Digest" in this stack) plus its
// parameters. Digest computation itself lives in package dialog, grounded
// on github.com/icholy/digest; this type only carries the wire
// representation so the sip package stays free of crypto dependencies.
type Challenge struct {
	Scheme    string
	Params    map[string]string
	ParamKeys []string
}

func (c *Challenge) Param(name string) (string, bool) {
	v, ok := c.Params[strings.ToLower(name)]
	return v, ok
}

func (c *Challenge) SetParam(name, value string) {
	key := strings.ToLower(name)
	if c.Params == nil {
		c.Params = make(map[string]string, 6)
	}
	if _, exists := c.Params[key]; !exists {
		c.ParamKeys = append(c.ParamKeys, key)
	}
	c.Params[key] = value
}

func (c *Challenge) String() string {
	sb := stringutils.NewStrBldr()
	defer stringutils.FreeStrBldr(sb)
	sb.WriteString(c.Scheme)
	sb.WriteByte(' ')
	for i, k := range c.ParamKeys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		if needsQuoting(k) {
			sb.WriteByte('"')
			sb.WriteString(c.Params[k])
			sb.WriteByte('"')
		} else {
			sb.WriteString(c.Params[k])
		}
	}
	return sb.String()
}

func needsQuoting(param string) bool {
	switch strings.ToLower(param) {
	case "algorithm", "stale", "qop":
		return false
	default:
		return true
	}
}

// Credential is the parsed value of an Authorization / Proxy-Authorization
// header field — the response to a Challenge.
type Credential = Challenge

// ParseChallenge parses a WWW-Authenticate / Proxy-Authenticate /
// Authorization / Proxy-Authorization header value.
func ParseChallenge(raw string) (*Challenge, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, " ")
	if !ok {
		return nil, NewParseError("malformed auth header: %q", raw)
	}
	c := &Challenge{Scheme: scheme}
	for _, kv := range splitAuthParams(strings.TrimSpace(rest)) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		c.SetParam(strings.TrimSpace(k), strings.Trim(strings.TrimSpace(v), `"`))
	}
	return c, nil
}

// splitAuthParams splits comma-separated auth-params while respecting
// quoted-string boundaries, since values like nonce and uri may themselves
// contain commas.
func splitAuthParams(s string) []string {
	var (
		out      []string
		inQuotes bool
		start    int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}
