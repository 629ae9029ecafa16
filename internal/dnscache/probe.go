package dnscache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"
)

// probeTimeout is the hard per-probe deadline. Probes must never hold up
// capture or a request handler longer than this.
const probeTimeout = 2 * time.Second

const mdnsAddress = "224.0.0.251:5353"

// Prober resolves hostnames for addresses on demand: reverse DNS against the
// system resolver first, multicast DNS second. Concurrent probes for the same
// IP are coalesced.
type Prober struct {
	cache    *Cache
	resolver string

	mu       sync.Mutex
	inflight map[string]chan string
}

// NewProber reads the system resolver configuration once. When unavailable
// (containers without resolv.conf), reverse DNS is skipped and only mDNS is
// probed.
func NewProber(cache *Cache) *Prober {
	p := &Prober{cache: cache, inflight: make(map[string]chan string)}
	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		p.resolver = conf.Servers[0] + ":" + conf.Port
	}
	return p
}

// Resolve returns a hostname for ip, consulting the cache first and probing
// on a miss. Returns "" when nothing answers within the deadline.
func (p *Prober) Resolve(ctx context.Context, ip string) string {
	if hostname, ok := p.cache.HostnameForIP(ip); ok {
		return hostname
	}

	p.mu.Lock()
	if ch, running := p.inflight[ip]; running {
		p.mu.Unlock()
		select {
		case hostname := <-ch:
			// Put the result back for the next waiter on the same probe.
			ch <- hostname
			return hostname
		case <-ctx.Done():
			return ""
		}
	}
	ch := make(chan string, 1)
	p.inflight[ip] = ch
	p.mu.Unlock()

	hostname := p.probe(ctx, ip)

	p.mu.Lock()
	delete(p.inflight, ip)
	p.mu.Unlock()
	ch <- hostname

	if hostname != "" {
		p.cache.Put(hostname, ip)
	}
	return hostname
}

func (p *Prober) probe(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if hostname := p.reverseLookup(ctx, ip); hostname != "" {
		return hostname
	}
	return p.mdnsLookup(ctx, ip)
}

// reverseLookup asks the system resolver for the PTR record of ip.
func (p *Prober) reverseLookup(ctx context.Context, ip string) string {
	if p.resolver == "" {
		return ""
	}
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	client := &dns.Client{Timeout: probeTimeout}
	resp, _, err := client.ExchangeContext(ctx, msg, p.resolver)
	if err != nil || resp == nil {
		return ""
	}
	for _, answer := range resp.Answer {
		if ptr, ok := answer.(*dns.PTR); ok {
			return strings.ToLower(strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	return ""
}

// mdnsLookup multicasts a PTR question for ip and waits for one answer.
// Devices that do not speak unicast DNS (printers, phones) usually answer
// this.
func (p *Prober) mdnsLookup(ctx context.Context, ip string) string {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	conn, err := dns.Dial("udp4", mdnsAddress)
	if err != nil {
		log.Debug().Err(err).Msg("mdns probe socket unavailable")
		return ""
	}
	defer conn.Close()

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = false

	deadline := time.Now().Add(probeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := conn.WriteMsg(msg); err != nil {
		return ""
	}
	resp, err := conn.ReadMsg()
	if err != nil || resp == nil {
		return ""
	}
	for _, answer := range resp.Answer {
		if ptr, ok := answer.(*dns.PTR); ok {
			return strings.ToLower(strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	return ""
}
