package registrar_test

import (
	"context"
	"testing"
	"time"

	"github.com/coresip/coresip/registrar"
)

func TestStoreBindAndLookup(t *testing.T) {
	t.Parallel()

	store, err := registrar.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	aor := "sip:alice@example.com"

	if err := store.Bind(ctx, aor, "sip:alice@192.0.2.1:5060", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	bindings, err := store.Lookup(ctx, aor)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("len(bindings) = %d, want 1", len(bindings))
	}
	if bindings[0].Contact != "sip:alice@192.0.2.1:5060" {
		t.Fatalf("contact = %q, want sip:alice@192.0.2.1:5060", bindings[0].Contact)
	}
}

func TestStoreLookupNoBinding(t *testing.T) {
	t.Parallel()

	store, err := registrar.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Lookup(context.Background(), "sip:nobody@example.com"); err == nil {
		t.Fatal("Lookup for unknown AOR returned no error")
	}
}

func TestStoreExpiredBindingRemovesOnDeregister(t *testing.T) {
	t.Parallel()

	store, err := registrar.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	aor := "sip:bob@example.com"

	if err := store.Bind(ctx, aor, "sip:bob@192.0.2.2:5060", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := store.Bind(ctx, aor, "sip:bob@192.0.2.2:5060", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Bind (de-register): %v", err)
	}

	if _, err := store.Lookup(ctx, aor); err == nil {
		t.Fatal("Lookup after de-registration returned no error, want ErrNoBinding")
	}
}
