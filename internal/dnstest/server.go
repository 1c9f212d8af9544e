// Package dnstest provides an in-process, caching DNS stand-in
// (component G of SPEC_FULL.md) used by the xipology test suite to
// exercise the write/read protocol without a live network resolver.
//
// It is a miekg/dns ServeMux handler wired to a listening UDP socket
// that answers like a caching recursive resolver: the first query for
// any name is slow and its (negative) answer is remembered; later
// queries for the same name are fast.
package dnstest

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

const (
	knownHitName = "www.google.com."
	baseHitTTL   = uint32(300)
)

// Resolver is a fake caching recursive resolver.
type Resolver struct {
	addr string
	srv  *dns.Server

	mu        sync.Mutex
	cached    map[string]bool
	firstSeen map[string]time.Time

	missDelay time.Duration
	hitDelay  time.Duration
}

// NewResolver starts a Resolver listening on an ephemeral UDP port.
// missDelay/hitDelay are the artificial latencies used to simulate a
// cache miss (slow, recursive) versus a cache hit (fast, served from
// memory).
func NewResolver(missDelay, hitDelay time.Duration) (*Resolver, error) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("dnstest: listen: %w", err)
	}

	r := &Resolver{
		addr:      pc.LocalAddr().String(),
		cached:    make(map[string]bool),
		firstSeen: make(map[string]time.Time),
		missDelay: missDelay,
		hitDelay:  hitDelay,
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", r.handle)
	r.srv = &dns.Server{PacketConn: pc, Handler: mux}

	go r.srv.ActivateAndServe()

	return r, nil
}

// Addr is the resolver's "host:port" — suitable as the server argument
// to xipology.FromSecret.
func (r *Resolver) Addr() string { return r.addr }

// Close shuts the resolver down.
func (r *Resolver) Close() error {
	return r.srv.Shutdown()
}

// Forget clears the cache, as if a cold resolver had just started —
// useful between test scenarios that must not see each other's state.
func (r *Resolver) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = make(map[string]bool)
	r.firstSeen = make(map[string]time.Time)
}

func (r *Resolver) handle(w dns.ResponseWriter, req *dns.Msg) {
	if len(req.Question) == 0 {
		return
	}
	q := req.Question[0]

	r.mu.Lock()
	hit := r.cached[q.Name]
	if !hit {
		r.cached[q.Name] = true
		r.firstSeen[q.Name] = time.Now()
	}
	seenAt := r.firstSeen[q.Name]
	r.mu.Unlock()

	if hit {
		time.Sleep(r.hitDelay)
	} else {
		time.Sleep(r.missDelay)
	}

	msg := new(dns.Msg)
	msg.SetReply(req)

	if q.Name == knownHitName && q.Qtype == dns.TypeA {
		ttl := ttlCountdown(seenAt)
		msg.Answer = append(msg.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
			A:   net.ParseIP("93.184.216.34"),
		})
		w.WriteMsg(msg)
		return
	}

	// Every other name lives in the sink zone: NXDOMAIN with a cached
	// negative (SOA) answer, matching spec.md §3's "Name" definition.
	msg.Rcode = dns.RcodeNameError
	msg.Ns = append(msg.Ns, &dns.SOA{
		Hdr:     dns.RR_Header{Name: q.Name, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: baseHitTTL},
		Ns:      "ns.invalid.",
		Mbox:    "hostmaster.invalid.",
		Serial:  1,
		Refresh: 3600,
		Retry:   600,
		Expire:  86400,
		Minttl:  60,
	})
	w.WriteMsg(msg)
}

func ttlCountdown(seenAt time.Time) uint32 {
	elapsed := uint32(time.Since(seenAt) / time.Second)
	if elapsed >= baseHitTTL {
		return 0
	}
	return baseHitTTL - elapsed
}
