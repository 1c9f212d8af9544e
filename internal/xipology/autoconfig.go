package xipology

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Known hostnames used by the auto-config probes, per spec.md §4.3/§6.
const (
	knownDNSHit        = "www.google.com."
	knownDNSMissSuffix = "xipoconf.example.com."
)

// Report is the aggregate result of the five diagnostic probes a
// caller (or the CLI) can run against a candidate resolver before
// trusting it as a channel medium.
type Report struct {
	SupportsUDP      bool
	SupportsTCP      bool
	TTLCountdown     bool
	NXDOMAINSOA      bool
	NXDOMAINSOACache bool
}

// Interrogate runs the five independent diagnostic probes from
// spec.md §4.3 against server and returns an aggregate Report. Each
// probe's own error (if any) is folded into a false result, matching
// the original `io::Result<bool>` fields — a failed probe reads as
// "not supported" rather than aborting the whole interrogation.
func Interrogate(ctx context.Context, server string) *Report {
	r := &Report{}
	r.SupportsUDP, _ = TestSupportsUDP(ctx, server)
	r.SupportsTCP, _ = TestSupportsTCP(ctx, server)
	r.TTLCountdown, _ = TestTTLCountdown(ctx, server)
	r.NXDOMAINSOA, _ = TestNXDOMAINSOA(ctx, server)
	r.NXDOMAINSOACache, _ = TestNXDOMAINSOACache(ctx, server)
	return r
}

func queryUDP(ctx context.Context, server, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(name, qtype)
	client := &dns.Client{Net: "udp"}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	return resp, err
}

func queryTCP(ctx context.Context, server, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(name, qtype)
	client := &dns.Client{Net: "tcp"}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	return resp, err
}

// randomMissName builds a random-labelled name under knownDNSMissSuffix,
// a zone that does not exist, mirroring the original `random_name()`
// (32 OS-random bytes, base64-encoded).
func randomMissName() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	label := base64.StdEncoding.EncodeToString(buf)
	return label + "." + knownDNSMissSuffix, nil
}

// TestSupportsUDP queries a known-good name over UDP and reports
// whether the query succeeded.
func TestSupportsUDP(ctx context.Context, server string) (bool, error) {
	_, err := queryUDP(ctx, server, knownDNSHit, dns.TypeA)
	return err == nil, nil
}

// TestSupportsTCP is TestSupportsUDP's TCP counterpart.
func TestSupportsTCP(ctx context.Context, server string) (bool, error) {
	_, err := queryTCP(ctx, server, knownDNSHit, dns.TypeA)
	return err == nil, nil
}

// TestTTLCountdown verifies that the resolver tracks the remaining
// TTL of a cached record rather than re-fetching it on every query:
// query twice, 1.001s apart, and expect the second TTL to be smaller.
func TestTTLCountdown(ctx context.Context, server string) (bool, error) {
	queryTTL := func() (uint32, error) {
		resp, err := queryUDP(ctx, server, knownDNSHit, dns.TypeA)
		if err != nil {
			return 0, err
		}
		if len(resp.Answer) == 0 {
			return 0, fmt.Errorf("xipology: no answer for %s", knownDNSHit)
		}
		return resp.Answer[0].Header().Ttl, nil
	}

	ttl1, err := queryTTL()
	if err != nil {
		return false, err
	}

	select {
	case <-time.After(1001 * time.Millisecond):
	case <-ctx.Done():
		return false, ctx.Err()
	}

	ttl2, err := queryTTL()
	if err != nil {
		return false, err
	}

	return ttl2 < ttl1, nil
}

// TestNXDOMAINSOA queries a random name in a non-existent zone and
// reports whether the authority section carries an SOA record — the
// negative answer the channel relies on the resolver caching.
func TestNXDOMAINSOA(ctx context.Context, server string) (bool, error) {
	name, err := randomMissName()
	if err != nil {
		return false, err
	}
	resp, err := queryUDP(ctx, server, name, dns.TypeA)
	if err != nil {
		return false, err
	}
	return hasSOA(resp), nil
}

// TestNXDOMAINSOACache queries the same random name twice and reports
// whether both responses carry an SOA record, i.e. the negative
// answer is being served consistently (from cache) rather than only
// sometimes.
func TestNXDOMAINSOACache(ctx context.Context, server string) (bool, error) {
	name, err := randomMissName()
	if err != nil {
		return false, err
	}
	resp1, err := queryUDP(ctx, server, name, dns.TypeA)
	if err != nil {
		return false, err
	}
	resp2, err := queryUDP(ctx, server, name, dns.TypeA)
	if err != nil {
		return false, err
	}
	return hasSOA(resp1) && hasSOA(resp2), nil
}

func hasSOA(msg *dns.Msg) bool {
	for _, rr := range msg.Ns {
		if _, ok := rr.(*dns.SOA); ok {
			return true
		}
	}
	return false
}

// CalibrateQueryTimes is the probe the channel actually needs
// (spec.md §4.3 probe 6): for 20 trials, probe a fresh random name
// twice — the first probe is an expected miss, the second an expected
// hit — and average each series.
func CalibrateQueryTimes(ctx context.Context, p prober) (*Calibration, error) {
	const trials = 20

	var missSum, hitSum float64
	for i := 0; i < trials; i++ {
		name, err := randomMissName()
		if err != nil {
			return nil, err
		}

		miss, err := p.poke(ctx, name)
		if err != nil {
			return nil, err
		}
		hit, err := p.poke(ctx, name)
		if err != nil {
			return nil, err
		}

		missSum += miss
		hitSum += hit
	}

	return &Calibration{
		Miss: missSum / float64(trials),
		Hit:  hitSum / float64(trials),
	}, nil
}
