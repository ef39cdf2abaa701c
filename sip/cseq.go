package sip

import (
	"strconv"
	"strings"
)

// CSeq is the "CSeq" header field value, RFC 3261 §20.16.
type CSeq struct {
	Seq    uint32
	Method Method
}

func (c CSeq) String() string {
	return strconv.FormatUint(uint64(c.Seq), 10) + " " + string(c.Method)
}

func ParseCSeq(raw string) (CSeq, error) {
	numStr, methodStr, ok := strings.Cut(strings.TrimSpace(raw), " ")
	if !ok {
		return CSeq{}, NewParseError("malformed cseq: %q", raw)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(numStr), 10, 32)
	if err != nil {
		return CSeq{}, NewParseError("malformed cseq number in %q: %v", raw, err)
	}
	return CSeq{Seq: uint32(n), Method: Method(strings.TrimSpace(methodStr))}, nil
}
