// Command registrar-demo is a minimal SIP registrar: it listens on UDP,
// persists REGISTER bindings in a SQLite-backed location store, and
// answers with the address-of-record's current bindings.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coresip/coresip/endpoint"
	corelog "github.com/coresip/coresip/log"
	"github.com/coresip/coresip/registrar"
	"github.com/coresip/coresip/transport"
)

func main() {
	addr := ":5060"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	store, err := registrar.Open("registrar-demo.db")
	if err != nil {
		log.Fatalf("open location store: %v", err)
	}
	defer store.Close()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Fatalf("resolve %s: %v", addr, err)
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}

	conn := transport.NewUDPConnection(pc, corelog.Default)

	ep := endpoint.New(endpoint.WithLogFormat("console"))
	ep.AddConnection(conn)
	ep.AddListener(conn)

	ctx, cancel := context.WithCancel(context.Background())
	ep.Start(ctx)

	handler := registrar.NewHandler(store, corelog.Default)
	go handler.Serve(ctx, ep)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	_ = ep.Shutdown(5 * time.Second)
}
