package xipology

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

// prober is the resolver probe interface (component B, spec.md §4.2):
// issue one query for name and report how long it took, in
// microseconds. It is unexported — the concrete resolverProbe is the
// only production implementation, and tests can inject their own
// prober via WithProber.
type prober interface {
	poke(ctx context.Context, name string) (float64, error)
}

// resolverProbe issues a single UDP DNS query per poke call. Opening a
// fresh client/connection per probe is acceptable per spec.md §4.2:
// the protocol does not require connection reuse.
type resolverProbe struct {
	server string
}

func newResolverProbe(server string) *resolverProbe {
	return &resolverProbe{server: server}
}

// poke queries (name, class=IN, type=SRV). SRV is chosen because the
// sink zone will never contain one: the existence of a record is
// immaterial, what matters is that resolution forces the recursive
// resolver to cache the negative answer for the zone.
func (p *resolverProbe) poke(ctx context.Context, name string) (float64, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeSRV)
	msg.RecursionDesired = true

	client := &dns.Client{Net: "udp"}

	t1 := time.Now()
	_, _, err := client.ExchangeContext(ctx, msg, p.server)
	elapsed := time.Since(t1)
	if err != nil {
		return 0, err
	}

	return durationToMicros(elapsed), nil
}

func durationToMicros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
