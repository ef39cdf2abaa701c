package dialog

//go:generate errtrace -w .

import (
	"context"

	"braces.dev/errtrace"
	"github.com/icholy/digest"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
)

// ErrNoCredential is returned when a dialog is challenged but carries no
// Credential to answer with.
const ErrNoCredential errorutil.Error = "dialog: challenged with no credential set"

// retryWithAuth answers a 401/407 challenge to req once, per RFC 7616/RFC
// 2617: computes the Authorization (or Proxy-Authorization) header from
// dlg's credential and the challenge, resends with a fresh branch, and
// returns the retry request alongside its final response (the caller needs
// the retry request itself to build an ACK if it turns out to be a 2xx). A
// nil, nil, nil result means auth retry is disabled or dlg has no
// credential, so the caller should surface the original challenge response
// unchanged.
func (l *Layer) retryWithAuth(ctx context.Context, dlg *Dialog, req *sip.Request, challenge *sip.Response) (*sip.Request, *sip.Response, error) {
	if !l.authRetry {
		return nil, nil, nil
	}
	cred := dlg.credentials()
	if cred == nil {
		return nil, nil, nil
	}

	header := "Www-Authenticate"
	authHeader := "Authorization"
	if challenge.StatusCode == sip.StatusProxyAuthRequired {
		header = "Proxy-Authenticate"
		authHeader = "Proxy-Authorization"
	}
	raw, ok := challenge.Headers().Get(header)
	if !ok {
		return nil, nil, errtrace.Wrap(ErrNoCredential)
	}

	chal, err := digest.ParseChallenge(raw)
	if err != nil {
		return nil, nil, errtrace.Wrap(err)
	}
	if cred.Realm != "" && cred.Realm != chal.Realm {
		return nil, nil, errtrace.Wrap(ErrNoCredential)
	}

	creds, err := digest.Digest(&chal, digest.Options{
		Method:   string(req.Method),
		URI:      req.RequestURI.String(),
		Username: cred.Username,
		Password: cred.Password,
		Count:    1,
	})
	if err != nil {
		return nil, nil, errtrace.Wrap(err)
	}

	retry := req.Clone().(*sip.Request) //nolint:forcetypeassert
	if via, ok := retry.TopVia(); ok {
		via.SetBranch(sip.NewBranch())
		retry.SetTopVia(via)
	}
	retry.Headers().Add(authHeader, creds.String())

	resCh := make(chan *sip.Response, 1)
	errCh := make(chan error, 1)
	_, err = l.tx.NewClientTransaction(ctx, retry, dlg.destination(), func(ctx context.Context, ev transaction.Event) {
		switch ev.Kind {
		case transaction.EventFinal:
			resCh <- ev.Response
		case transaction.EventTransportError, transaction.EventTimeout:
			errCh <- errtrace.Wrap(ErrNoFinalResponse)
		}
	})
	if err != nil {
		return nil, nil, errtrace.Wrap(err)
	}

	select {
	case <-ctx.Done():
		return nil, nil, errtrace.Wrap(ctx.Err())
	case err := <-errCh:
		return nil, nil, err
	case res := <-resCh:
		return retry, res, nil
	}
}
