package sip_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coresip/coresip/sip"
)

func TestParseViaRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  *sip.Via
	}{
		{
			name:  "udp with branch",
			input: "SIP/2.0/UDP pc33.example.com;branch=z9hG4bK776asdhds",
			want: &sip.Via{
				Transport: sip.UDP,
				Host:      "pc33.example.com",
				Params:    map[string]string{"branch": "z9hG4bK776asdhds"},
				ParamKeys: []string{"branch"},
			},
		},
		{
			name:  "tls with explicit port",
			input: "SIP/2.0/TLS example.com:5061;branch=z9hG4bKabc",
			want: &sip.Via{
				Transport: sip.TLS,
				Host:      "example.com",
				Port:      5061,
				Params:    map[string]string{"branch": "z9hG4bKabc"},
				ParamKeys: []string{"branch"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := sip.ParseVia(tc.input)
			if err != nil {
				t.Fatalf("ParseVia(%q): %v", tc.input, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ParseVia(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}

			again, err := sip.ParseVia(got.String())
			if err != nil {
				t.Fatalf("re-parsing %q: %v", got.String(), err)
			}
			if diff := cmp.Diff(got, again); diff != "" {
				t.Fatalf("round-trip mismatch (-first +second):\n%s", diff)
			}
		})
	}
}

func TestNewBranchHasMagicCookie(t *testing.T) {
	t.Parallel()

	b := sip.NewBranch()
	if !strings.HasPrefix(b, sip.BranchMagicCookie) {
		t.Fatalf("NewBranch() = %q, want prefix %q", b, sip.BranchMagicCookie)
	}
	if b == sip.NewBranch() {
		t.Fatal("two consecutive NewBranch() calls collided")
	}
}

func TestViaRPort(t *testing.T) {
	t.Parallel()

	v, err := sip.ParseVia("SIP/2.0/UDP 192.0.2.1;rport=4000")
	if err != nil {
		t.Fatalf("ParseVia: %v", err)
	}
	rport, ok := v.RPort()
	if !ok || rport != 4000 {
		t.Fatalf("RPort() = (%d, %v), want (4000, true)", rport, ok)
	}

	noRport, err := sip.ParseVia("SIP/2.0/UDP 192.0.2.1;rport")
	if err != nil {
		t.Fatalf("ParseVia: %v", err)
	}
	if _, ok := noRport.RPort(); ok {
		t.Fatal("RPort() ok=true for empty rport parameter, want false")
	}
}
