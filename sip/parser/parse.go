// Package parser turns wire bytes into sip.Message values and back,
// handling the two framing disciplines RFC 3261 §18 defines: one unit per
// UDP datagram, and Content-Length-delimited units on stream transports.
package parser

//go:generate errtrace -w .

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/sip"
)

// Parse parses one complete message (start line, headers, blank line,
// exactly Content-Length body bytes already sliced by the caller) from raw.
func Parse(raw []byte) (sip.Message, error) {
	reader := bufio.NewReader(bytes.NewReader(raw))

	startLine, err := readLine(reader)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if startLine == "" {
		return nil, sip.NewParseError("empty message")
	}

	headers, err := readHeaders(reader)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	body, err := bufferAll(reader)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	if isResponseStartLine(startLine) {
		resp, err := parseResponse(startLine, headers)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		resp.SetBody(body)
		return resp, nil
	}

	req, err := parseRequest(startLine, headers)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	req.SetBody(body)
	return req, nil
}

func isResponseStartLine(line string) bool {
	return strings.HasPrefix(line, "SIP/2.0 ")
}

func parseRequest(startLine string, headers *sip.Headers) (*sip.Request, error) {
	parts := strings.SplitN(startLine, " ", 3)
	if len(parts) != 3 {
		return nil, sip.NewParseError("malformed request line: %q", startLine)
	}
	uri, err := sip.ParseURI(parts[1])
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	req := sip.NewRequest(sip.Method(parts[0]), uri)
	req.SipVersion = parts[2]
	copyHeaders(req.Headers(), headers)
	return req, nil
}

func parseResponse(startLine string, headers *sip.Headers) (*sip.Response, error) {
	parts := strings.SplitN(startLine, " ", 3)
	if len(parts) < 2 {
		return nil, sip.NewParseError("malformed status line: %q", startLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, sip.NewParseError("malformed status code in %q: %v", startLine, err)
	}
	resp := sip.NewResponse(sip.StatusCode(code))
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	resp.Reason = reason
	copyHeaders(resp.Headers(), headers)
	return resp, nil
}

func copyHeaders(dst, src *sip.Headers) {
	for _, f := range src.All() {
		dst.Add(f.Name, f.Value)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", errtrace.Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readHeaders(r *bufio.Reader) (*sip.Headers, error) {
	headers := sip.NewHeaders()
	var lastName string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if line == "" {
				break
			}
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if (strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t")) && lastName != "" {
			// folded continuation line, RFC 3261 §7.3.1
			folded := strings.TrimSpace(trimmed)
			if last, ok := lastHeaderValue(headers, lastName); ok {
				headers.Set(lastName, last+" "+folded)
			}
			if err != nil {
				break
			}
			continue
		}
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			if err != nil {
				break
			}
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		headers.Add(name, value)
		lastName = name
		if err != nil {
			break
		}
	}
	return headers, nil
}

func lastHeaderValue(h *sip.Headers, name string) (string, bool) {
	all := h.GetAll(name)
	if len(all) == 0 {
		return "", false
	}
	return all[len(all)-1], true
}

func bufferAll(r *bufio.Reader) ([]byte, error) {
	buf := make([]byte, 0, 256)
	tmp := make([]byte, 4096)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
