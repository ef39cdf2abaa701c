package dns

//go:generate errtrace -w .

import (
	"context"
	"fmt"
	"net"
	"strings"

	"braces.dev/errtrace"

	"github.com/coresip/coresip/internal/errorutil"
	"github.com/coresip/coresip/sip"
)

// Target is one candidate destination the RFC 3263 resolution algorithm
// produced for a request URI, in preference order.
type Target struct {
	Transport sip.Transport
	IP        net.IP
	Port      uint16
}

func (t Target) Addr() sip.SipAddr {
	return sip.SipAddr{Transport: t.Transport, IP: t.IP, Port: t.Port}
}

// ResolveFailed reports that every strategy the algorithm tried failed,
// carrying enough detail to explain why for logging/diagnostics.
type ResolveFailed struct {
	Host    string
	Tried   []string
	Reasons []error
}

func (e *ResolveFailed) Error() string {
	return fmt.Sprintf("resolve %q failed after trying %v: %v", e.Host, e.Tried, errorutil.Join(e.Reasons...))
}

var errNoNameserver errorutil.Error = "dns: no nameserver reachable"

// Resolve implements the RFC 3263 procedure for turning a SIP/SIPS URI
// into an ordered list of candidate (transport, IP, port) targets:
//
//  1. If the URI has an explicit ;transport= parameter, that transport is
//     fixed and NAPTR is skipped.
//  2. If the host part is an IP literal, or the URI carries an explicit
//     port, DNS SRV/NAPTR are skipped entirely and a single target is
//     produced directly (falling back to A/AAAA when the host is a name).
//  3. Otherwise NAPTR is queried for the host; on a usable answer its
//     "s"-flagged record names the SRV record to query. On no usable
//     NAPTR answer, SRV is queried directly under the RFC 3263 §4.1
///    default service names for UDP/TCP/TLS.
//  4. If SRV also yields nothing, falls back to an A/AAAA lookup of the
//     host at the URI's default port for its transport.
func Resolve(ctx context.Context, r *Resolver, u *sip.URI) ([]Target, error) {
	if r == nil {
		r = DefaultResolver()
	}

	transport, transportFixed := u.Transport()
	if !transportFixed {
		transport = sip.UDP
		if u.IsSecure() {
			transport = sip.TLS
		}
	}

	if ip := net.ParseIP(u.Host); ip != nil {
		return []Target{{Transport: transport, IP: ip, Port: u.PortOrDefault()}}, nil
	}

	if u.Port != 0 {
		return resolveHostToTargets(ctx, r, transport, u.Host, uint16(u.Port))
	}

	if transportFixed {
		return resolveByTransport(ctx, r, u.Host, transport)
	}

	if naptrTargets, err := resolveViaNAPTR(ctx, r, u); err == nil && len(naptrTargets) > 0 {
		return naptrTargets, nil
	}

	var (
		tried   []string
		reasons []error
	)
	for _, t := range candidateTransports(u) {
		targets, err := resolveByTransport(ctx, r, u.Host, t)
		tried = append(tried, string(t))
		if err != nil {
			reasons = append(reasons, err)
			continue
		}
		if len(targets) > 0 {
			return targets, nil
		}
	}
	return nil, errtrace.Wrap(&ResolveFailed{Host: u.Host, Tried: tried, Reasons: reasons})
}

func candidateTransports(u *sip.URI) []sip.Transport {
	if u.IsSecure() {
		return []sip.Transport{sip.TLS}
	}
	return []sip.Transport{sip.UDP, sip.TCP}
}

// resolveByTransport does the RFC 3263 §4.2 SRV-then-A/AAAA lookup for a
// transport that is already fixed (by URI parameter or by the caller's
// NAPTR-less fallback loop).
func resolveByTransport(ctx context.Context, r *Resolver, host string, transport sip.Transport) ([]Target, error) {
	service := srvServiceName(transport)
	if service != "" {
		srvs, err := r.LookupSRV(ctx, service, "tcp", host)
		if transport == sip.UDP {
			srvs, err = r.LookupSRV(ctx, service, "udp", host)
		}
		if err == nil && len(srvs) > 0 {
			return srvsToTargets(ctx, r, transport, srvs)
		}
	}
	return resolveHostToTargets(ctx, r, transport, host, transport.DefaultPort())
}

func srvServiceName(t sip.Transport) string {
	switch t {
	case sip.UDP:
		return "sip"
	case sip.TCP:
		return "sip"
	case sip.TLS:
		return "sips"
	default:
		return ""
	}
}

// resolveViaNAPTR runs the full NAPTR -> SRV chain of RFC 3263 §4.1.
func resolveViaNAPTR(ctx context.Context, r *Resolver, u *sip.URI) ([]Target, error) {
	recs, err := r.LookupNAPTR(ctx, u.Host)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	for _, rec := range recs {
		if !strings.EqualFold(rec.Flags, "s") {
			continue
		}
		transport, ok := naptrServiceTransport(rec.Service)
		if !ok {
			continue
		}
		if u.IsSecure() && transport != sip.TLS {
			continue
		}

		proto := "tcp"
		if transport == sip.UDP {
			proto = "udp"
		}
		srvs, err := r.LookupSRV(ctx, "", proto, rec.Replacement)
		if err != nil || len(srvs) == 0 {
			continue
		}
		return srvsToTargets(ctx, r, transport, srvs)
	}
	return nil, nil
}

func naptrServiceTransport(service string) (sip.Transport, bool) {
	switch strings.ToUpper(service) {
	case "SIP+D2U":
		return sip.UDP, true
	case "SIP+D2T":
		return sip.TCP, true
	case "SIPS+D2T":
		return sip.TLS, true
	default:
		return "", false
	}
}

func srvsToTargets(ctx context.Context, r *Resolver, transport sip.Transport, srvs []*SRV) ([]Target, error) {
	targets := make([]Target, 0, len(srvs))
	for _, srv := range srvs {
		host := strings.TrimSuffix(srv.Target, ".")
		hostTargets, err := resolveHostToTargets(ctx, r, transport, host, srv.Port)
		if err != nil {
			continue
		}
		targets = append(targets, hostTargets...)
	}
	if len(targets) == 0 {
		return nil, errtrace.Wrap(errNoNameserver)
	}
	return targets, nil
}

func resolveHostToTargets(ctx context.Context, r *Resolver, transport sip.Transport, host string, port uint16) ([]Target, error) {
	ips, err := r.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	targets := make([]Target, 0, len(ips))
	for _, ip := range ips {
		targets = append(targets, Target{Transport: transport, IP: ip, Port: port})
	}
	return targets, nil
}
