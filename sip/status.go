package sip

// StatusCode is a SIP response status code, RFC 3261 §21.
type StatusCode int

const (
	StatusTrying               StatusCode = 100
	StatusRinging              StatusCode = 180
	StatusCallIsBeingForwarded StatusCode = 181
	StatusSessionProgress      StatusCode = 183
	StatusOK                   StatusCode = 200
	StatusMovedTemporarily     StatusCode = 302
	StatusBadRequest           StatusCode = 400
	StatusUnauthorized         StatusCode = 401
	StatusForbidden            StatusCode = 403
	StatusNotFound             StatusCode = 404
	StatusRequestTimeout       StatusCode = 408
	StatusProxyAuthRequired    StatusCode = 407
	StatusTemporarilyUnavail   StatusCode = 480
	StatusCallDoesNotExist     StatusCode = 481
	StatusBusyHere             StatusCode = 486
	StatusRequestTerminated    StatusCode = 487
	StatusServerInternalError  StatusCode = 500
	StatusServiceUnavailable   StatusCode = 503
	StatusBusyEverywhere       StatusCode = 600
	StatusDecline              StatusCode = 603
)

func (s StatusCode) Provisional() bool { return s >= 100 && s < 200 }
func (s StatusCode) Success() bool     { return s >= 200 && s < 300 }
func (s StatusCode) Final() bool       { return s >= 200 }
func (s StatusCode) Redirect() bool    { return s >= 300 && s < 400 }
func (s StatusCode) ClientError() bool { return s >= 400 && s < 500 }
func (s StatusCode) ServerError() bool { return s >= 500 && s < 600 }
func (s StatusCode) GlobalError() bool { return s >= 600 }

// ReasonPhrase returns the standard reason phrase for well-known codes and
// a generic fallback otherwise.
func (s StatusCode) ReasonPhrase() string {
	if r, ok := reasonPhrases[s]; ok {
		return r
	}
	switch {
	case s.Provisional():
		return "Session Progress"
	case s.Success():
		return "OK"
	case s.Redirect():
		return "Moved"
	case s.ClientError():
		return "Client Error"
	case s.ServerError():
		return "Server Error"
	default:
		return "Global Failure"
	}
}

var reasonPhrases = map[StatusCode]string{
	StatusTrying:               "Trying",
	StatusRinging:              "Ringing",
	StatusCallIsBeingForwarded: "Call Is Being Forwarded",
	StatusSessionProgress:      "Session Progress",
	StatusOK:                   "OK",
	StatusMovedTemporarily:     "Moved Temporarily",
	StatusBadRequest:           "Bad Request",
	StatusUnauthorized:         "Unauthorized",
	StatusForbidden:            "Forbidden",
	StatusNotFound:             "Not Found",
	StatusRequestTimeout:       "Request Timeout",
	StatusProxyAuthRequired:    "Proxy Authentication Required",
	StatusTemporarilyUnavail:   "Temporarily Unavailable",
	StatusCallDoesNotExist:     "Call/Transaction Does Not Exist",
	StatusBusyHere:             "Busy Here",
	StatusRequestTerminated:    "Request Terminated",
	StatusServerInternalError:  "Server Internal Error",
	StatusServiceUnavailable:   "Service Unavailable",
	StatusBusyEverywhere:       "Busy Everywhere",
	StatusDecline:              "Decline",
}
