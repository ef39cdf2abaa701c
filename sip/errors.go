package sip

//go:generate errtrace -w .

import (
	"errors"
	"fmt"

	"braces.dev/errtrace"
)

// ParseError reports a malformed message, URI, or header value. Framing is
// intact (the caller has a complete unit to parse); it is the content that
// is invalid.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return e.msg }

func NewParseError(format string, args ...any) error {
	return errtrace.Wrap(&ParseError{msg: fmt.Sprintf(format, args...)})
}

func errtraceParse(err error) error {
	if err == nil {
		return nil
	}
	return errtrace.Wrap(err)
}

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
