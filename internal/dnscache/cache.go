// Package dnscache keeps a bounded cache of hostname<->address bindings
// learned from DNS answers, mDNS announcements, and on-demand probes. The
// cache never grows past its bound: eviction removes the oldest slice of
// entries rather than flushing everything.
package dnscache

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the cache size.
	DefaultMaxEntries = 10_000
	// evictBatch caps how many of the oldest entries one eviction removes.
	evictBatch = 1_000
	// DefaultTTL is how long a binding stays valid.
	DefaultTTL = 5 * time.Minute
)

type entry struct {
	value    string
	storedAt time.Time
}

// Cache is a two-way hostname/IP cache with TTL and batch eviction.
type Cache struct {
	mu         sync.Mutex
	byIP       map[string]entry
	byHostname map[string]entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a cache with the default bound and TTL.
func New() *Cache {
	return NewWithLimits(DefaultMaxEntries, DefaultTTL)
}

// NewWithLimits creates a cache with explicit bounds, for tests and tuning.
func NewWithLimits(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		byIP:       make(map[string]entry),
		byHostname: make(map[string]entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Put records a hostname<->ip binding in both directions.
func (c *Cache) Put(hostname, ip string) {
	if hostname == "" || ip == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.byIP[ip] = entry{value: hostname, storedAt: now}
	c.byHostname[hostname] = entry{value: ip, storedAt: now}
	c.evictLocked()
}

// HostnameForIP returns the cached hostname for an address, if fresh.
func (c *Cache) HostnameForIP(ip string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(c.byIP, ip)
}

// IPForHostname returns the cached address for a hostname, if fresh.
func (c *Cache) IPForHostname(hostname string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(c.byHostname, hostname)
}

// Len returns the total number of entries across both directions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byIP) + len(c.byHostname)
}

func (c *Cache) getLocked(m map[string]entry, key string) (string, bool) {
	e, ok := m[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(m, key)
		return "", false
	}
	return e.value, true
}

// evictLocked removes the oldest tenth of the bound (at most evictBatch
// entries) once the bound is exceeded. Never a full flush: hot entries survive.
func (c *Cache) evictLocked() {
	total := len(c.byIP) + len(c.byHostname)
	if total <= c.maxEntries {
		return
	}

	type aged struct {
		key      string
		inIPMap  bool
		storedAt time.Time
	}
	all := make([]aged, 0, total)
	for k, e := range c.byIP {
		all = append(all, aged{key: k, inIPMap: true, storedAt: e.storedAt})
	}
	for k, e := range c.byHostname {
		all = append(all, aged{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })

	// A tenth of the bound per round, capped at the standard batch.
	n := c.maxEntries / 10
	if n < 1 {
		n = 1
	}
	if n > evictBatch {
		n = evictBatch
	}
	if n > len(all) {
		n = len(all)
	}
	for _, victim := range all[:n] {
		if victim.inIPMap {
			delete(c.byIP, victim.key)
		} else {
			delete(c.byHostname, victim.key)
		}
	}
}
