package sip_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coresip/coresip/sip"
)

func TestParseNameAddr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		input   string
		want    *sip.NameAddr
		wantErr bool
	}{
		{
			name:  "star",
			input: "*",
			want:  &sip.NameAddr{Star: true},
		},
		{
			name:  "bare addr-spec",
			input: "sip:alice@example.com",
			want:  &sip.NameAddr{URI: mustURI(t, "sip:alice@example.com")},
		},
		{
			name:  "display name and tag",
			input: `"Alice" <sip:alice@example.com>;tag=1928301774`,
			want: &sip.NameAddr{
				DisplayName: "Alice",
				URI:         mustURI(t, "sip:alice@example.com"),
				Params:      map[string]string{"tag": "1928301774"},
				ParamKeys:   []string{"tag"},
			},
		},
		{
			name:  "angle brackets without display name",
			input: "<sip:bob@example.com>",
			want: &sip.NameAddr{
				URI: mustURI(t, "sip:bob@example.com"),
			},
		},
		{
			name:    "unterminated angle bracket",
			input:   "<sip:bob@example.com",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := sip.ParseNameAddr(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseNameAddr(%q) = nil error, want error", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNameAddr(%q) unexpected error: %v", tc.input, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ParseNameAddr(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestNameAddrTagRoundTrip(t *testing.T) {
	t.Parallel()

	n := &sip.NameAddr{URI: mustURI(t, "sip:alice@example.com")}
	if got := n.Tag(); got != "" {
		t.Fatalf("Tag() on untagged addr = %q, want empty", got)
	}

	n.SetTag("abc123")
	if got := n.Tag(); got != "abc123" {
		t.Fatalf("Tag() = %q, want abc123", got)
	}

	again, err := sip.ParseNameAddr(n.String())
	if err != nil {
		t.Fatalf("round-trip parse: %v", err)
	}
	if got := again.Tag(); got != "abc123" {
		t.Fatalf("round-tripped Tag() = %q, want abc123", got)
	}
}

func TestNameAddrClone(t *testing.T) {
	t.Parallel()

	n := &sip.NameAddr{URI: mustURI(t, "sip:alice@example.com")}
	n.SetTag("xyz")

	c := n.Clone()
	c.SetTag("changed")

	if got := n.Tag(); got != "xyz" {
		t.Fatalf("original Tag() mutated by clone: got %q, want xyz", got)
	}
	if got := c.Tag(); got != "changed" {
		t.Fatalf("clone Tag() = %q, want changed", got)
	}
}

func mustURI(t *testing.T, raw string) *sip.URI {
	t.Helper()
	u, err := sip.ParseURI(raw)
	if err != nil {
		t.Fatalf("ParseURI(%q): %v", raw, err)
	}
	return u
}
