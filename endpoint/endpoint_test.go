package endpoint_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/coresip/coresip/endpoint"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transaction"
	"github.com/coresip/coresip/transport"
)

func newLoopbackUDPEndpoint(t *testing.T) (*endpoint.Endpoint, sip.SipAddr) {
	t.Helper()

	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })

	conn := transport.NewUDPConnection(pc, nil)

	ep := endpoint.New(endpoint.WithLogFormat("noop"))
	ep.AddConnection(conn)
	ep.AddListener(conn)

	ctx, cancel := context.WithCancel(context.Background())
	ep.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = ep.Shutdown(time.Second)
	})

	return ep, conn.LocalAddr()
}

// TestUDPOptionsPing exercises §8's out-of-dialog request/response
// scenario end to end over real loopback UDP sockets: a client endpoint
// sends OPTIONS, a server endpoint answers 200 OK from its incoming
// transaction queue, and the client transaction observes the final
// response.
func TestUDPOptionsPing(t *testing.T) {
	server, serverAddr := newLoopbackUDPEndpoint(t)
	client, _ := newLoopbackUDPEndpoint(t)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		select {
		case in, ok := <-server.IncomingTransactions():
			if !ok {
				return
			}
			if in.Req.Method != sip.OPTIONS {
				t.Errorf("server received method %s, want OPTIONS", in.Req.Method)
			}
			res := sip.NewResponseFromRequest(in.Req, sip.StatusOK, "", "")
			if err := in.Tx.Respond(context.Background(), res); err != nil {
				t.Errorf("server Respond: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("server never observed an incoming transaction")
		}
	}()

	uri := sip.NewSipURI("bob", serverAddr.IP.String(), serverAddr.Port)
	req := sip.NewRequest(sip.OPTIONS, uri)
	req.Headers().Add("Call-ID", "options-ping-1")
	req.Headers().Add("From", `<sip:alice@example.com>;tag=abc123`)
	req.Headers().Add("To", `<sip:bob@example.com>`)
	req.SetCSeq(sip.CSeq{Seq: 1, Method: sip.OPTIONS})
	via := &sip.Via{Transport: sip.UDP, Host: "127.0.0.1"}
	via.SetBranch(sip.NewBranch())
	req.SetTopVia(via)

	results := make(chan transaction.Event, 1)
	_, err := client.ClientTransaction(context.Background(), req, serverAddr,
		func(_ context.Context, ev transaction.Event) {
			if ev.Kind == transaction.EventFinal {
				results <- ev
			}
		})
	if err != nil {
		t.Fatalf("ClientTransaction: %v", err)
	}

	select {
	case ev := <-results:
		if ev.Response.StatusCode != sip.StatusOK {
			t.Fatalf("response status = %d, want 200", ev.Response.StatusCode)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no final response observed")
	}

	<-serverDone
}
