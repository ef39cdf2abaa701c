package transaction_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
)

// TestClientNonInviteTransportErrorOnResendTerminates exercises the
// transport-error path using a gomock-generated Sender: the initial send
// succeeds, but a retransmit triggered by Timer E fails, and the
// transaction must terminate with an EventTransportError rather than
// retrying forever.
func TestClientNonInviteTransportErrorOnResendTerminates(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sender := NewMockSender(ctrl)

	sendErr := errors.New("write: connection refused")
	gomock.InOrder(
		sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(1),
		sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, sendErr).AnyTimes(),
	)

	req := newOptionsRequest()
	dest := sip.SipAddr{Transport: sip.UDP, IP: net.ParseIP("192.0.2.2"), Port: 5060}
	timing := transaction.NewTiming(20*time.Millisecond, 0, 0)

	events := make(chan transaction.Event, 4)
	tx, err := transaction.NewClientNonInvite(context.Background(), req, dest, sender, timing, nil,
		func(_ context.Context, ev transaction.Event) { events <- ev })
	if err != nil {
		t.Fatalf("NewClientNonInvite: %v", err)
	}

	var sawTransportError bool
	for !sawTransportError {
		select {
		case ev := <-events:
			switch ev.Kind {
			case transaction.EventTransportError:
				if ev.Err == nil {
					t.Fatal("transport error event carries no error")
				}
				sawTransportError = true
			case transaction.EventTerminated:
				t.Fatal("terminated before a transport error event was observed")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no transport error event delivered")
		}
	}

	select {
	case ev := <-events:
		if ev.Kind != transaction.EventTerminated {
			t.Fatalf("event after transport error = %s, want terminated", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no terminated event delivered after transport error")
	}

	if got := tx.State(); got != transaction.StateTerminated {
		t.Fatalf("state after resend failure = %s, want Terminated", got)
	}
}
