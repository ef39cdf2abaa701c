package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/coresip/coresip/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestServeClosesEventsOnCancel exercises the Serve fan-out's cancellation
// contract: every listener's accept loop exits and the merged event
// channel closes once ctx is done, leaving no goroutine behind for goleak
// to catch.
func TestServeClosesEventsOnCancel(t *testing.T) {
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	conn := transport.NewUDPConnection(pc, nil)

	layer := transport.NewLayer()
	layer.AddConnection(conn)
	layer.AddListener(conn)

	ctx, cancel := context.WithCancel(context.Background())
	events := layer.Serve(ctx)

	cancel()

	select {
	case _, ok := <-events:
		if ok {
			// Drain any in-flight Closed event before confirming the
			// channel itself closes.
			for range events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never produced or closed")
	}
}
