package parser

//go:generate errtrace -w .

import (
	"bufio"
	"io"
	"strconv"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/sip"
)

// StreamReader frames SIP messages off a stream transport (TCP, TLS, or a
// WebSocket message reassembled to a byte stream): headers up to the first
// blank line, then exactly Content-Length body bytes, per RFC 3261 §18.1.1/
// §18.2.1. Because it wraps a *bufio.Reader, two messages concatenated in
// a single read (or split across several) are both framed correctly —
// ReadMessage simply keeps consuming from the same buffered stream.
type StreamReader struct {
	r *bufio.Reader
}

func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReader(r)}
}

// ReadMessage blocks until one complete message has been framed, or
// returns the underlying read error (including io.EOF when the peer
// closed the connection cleanly between messages).
func (sr *StreamReader) ReadMessage() (sip.Message, error) {
	startLine, err := sr.readNonEmptyLine()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	headers, err := readHeaders(sr.r)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	contentLength := 0
	if v, ok := headers.Get("Content-Length"); ok {
		contentLength, err = strconv.Atoi(v)
		if err != nil {
			return nil, sip.NewParseError("malformed content-length %q: %v", v, err)
		}
	}

	body := make([]byte, contentLength)
	if contentLength > 0 {
		if _, err := io.ReadFull(sr.r, body); err != nil {
			return nil, errtrace.Wrap(err)
		}
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

// readNonEmptyLine skips the CRLF keep-alives RFC 5626 §4.4.1 allows
// between messages (double CRLF "ping") and returns the first
// non-blank line as the new message's start line.
func (sr *StreamReader) readNonEmptyLine() (string, error) {
	for {
		line, err := readLine(sr.r)
		if err != nil {
			return "", errtrace.Wrap(err)
		}
		if line != "" {
			return line, nil
		}
	}
}
