package sip

import (
	"strings"

	"github.com/coresip/coresip/internal/stringutils"
)

// HeaderField is a single "Name: Value" line, in the order it was
// encountered (or added).
type HeaderField struct {
	Name  string
	Value string
}

// Headers is an ordered, case-insensitive multimap of header fields.
// It is not safe for concurrent use; a Message and its Headers are owned
// by whichever task currently holds them (the connection receive loop
// while parsing, the transaction/dialog driver thereafter).
type Headers struct {
	fields []HeaderField
}

func NewHeaders() *Headers { return &Headers{} }

// Add appends a field, preserving any existing fields of the same name.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: canonicalHeaderName(name), Value: value})
}

// Set replaces all fields named name with a single field, in the position
// of the first existing occurrence (or appended if none existed).
func (h *Headers) Set(name, value string) {
	canon := canonicalHeaderName(name)
	for i, f := range h.fields {
		if f.Name == canon {
			h.fields[i].Value = value
			h.removeFrom(i+1, canon)
			return
		}
	}
	h.fields = append(h.fields, HeaderField{Name: canon, Value: value})
}

func (h *Headers) removeFrom(start int, canon string) {
	out := h.fields[:start]
	for _, f := range h.fields[start:] {
		if f.Name != canon {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first field's value for name.
func (h *Headers) Get(name string) (string, bool) {
	canon := canonicalHeaderName(name)
	for _, f := range h.fields {
		if f.Name == canon {
			return f.Value, true
		}
	}
	return "", false
}

// GetAll returns every value for name, in header order.
func (h *Headers) GetAll(name string) []string {
	canon := canonicalHeaderName(name)
	var out []string
	for _, f := range h.fields {
		if f.Name == canon {
			out = append(out, f.Value)
		}
	}
	return out
}

func (h *Headers) Del(name string) {
	canon := canonicalHeaderName(name)
	h.removeFrom(0, canon)
}

func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// All returns every field in wire order.
func (h *Headers) All() []HeaderField { return h.fields }

func (h *Headers) Clone() *Headers {
	if h == nil {
		return NewHeaders()
	}
	c := &Headers{fields: make([]HeaderField, len(h.fields))}
	copy(c.fields, h.fields)
	return c
}

func (h *Headers) String() string {
	sb := stringutils.NewStrBldr()
	defer stringutils.FreeStrBldr(sb)
	for _, f := range h.fields {
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\r\n")
	}
	return sb.String()
}

// canonicalNames maps the lower-cased long form (and RFC 3261 §7.3
// compact forms) to the canonical mixed-case header name used on the wire
// and for matching fields by name.
var canonicalNames = map[string]string{
	"via":                "Via",
	"v":                  "Via",
	"from":               "From",
	"f":                  "From",
	"to":                 "To",
	"t":                  "To",
	"call-id":            "Call-ID",
	"i":                  "Call-ID",
	"cseq":               "CSeq",
	"contact":            "Contact",
	"m":                  "Contact",
	"max-forwards":       "Max-Forwards",
	"content-length":     "Content-Length",
	"l":                  "Content-Length",
	"content-type":       "Content-Type",
	"c":                  "Content-Type",
	"route":              "Route",
	"record-route":       "Record-Route",
	"www-authenticate":   "WWW-Authenticate",
	"authorization":      "Authorization",
	"proxy-authenticate": "Proxy-Authenticate",
	"proxy-authorization": "Proxy-Authorization",
	"user-agent":         "User-Agent",
	"server":             "Server",
	"expires":            "Expires",
	"allow":              "Allow",
	"supported":          "Supported",
	"k":                  "Supported",
	"require":            "Require",
	"unsupported":        "Unsupported",
	"subject":            "Subject",
	"s":                  "Subject",
	"organization":       "Organization",
	"date":               "Date",
	"warning":            "Warning",
	"accept":             "Accept",
	"event":              "Event",
	"o":                  "Event",
	"reason":             "Reason",
	"rack":               "RAck",
	"rseq":               "RSeq",
	"session-expires":    "Session-Expires",
	"min-se":             "Min-SE",
}

func canonicalHeaderName(name string) string {
	lower := strings.ToLower(name)
	if canon, ok := canonicalNames[lower]; ok {
		return canon
	}
	// title-case each hyphen-separated segment for unrecognized headers
	parts := strings.Split(lower, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
