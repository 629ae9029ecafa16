package dnscache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachePutAndLookup(t *testing.T) {
	c := New()
	c.Put("example.com", "93.184.216.34")

	host, ok := c.HostnameForIP("93.184.216.34")
	assert.True(t, ok)
	assert.Equal(t, "example.com", host)

	ip, ok := c.IPForHostname("example.com")
	assert.True(t, ok)
	assert.Equal(t, "93.184.216.34", ip)

	_, ok = c.HostnameForIP("1.2.3.4")
	assert.False(t, ok)
}

func TestCacheIgnoresEmptyValues(t *testing.T) {
	c := New()
	c.Put("", "1.2.3.4")
	c.Put("host", "")
	assert.Equal(t, 0, c.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewWithLimits(100, time.Minute)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	c.Put("stale.example", "10.0.0.1")

	now = now.Add(30 * time.Second)
	_, ok := c.HostnameForIP("10.0.0.1")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.HostnameForIP("10.0.0.1")
	assert.False(t, ok)
}

func TestCacheBoundedEviction(t *testing.T) {
	c := NewWithLimits(100, time.Hour)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	for i := 0; i < 200; i++ {
		now = now.Add(time.Second)
		c.Put(hostName(i), ipName(i))
		assert.LessOrEqual(t, c.Len(), 100, "cache exceeded bound at insert %d", i)
	}

	// Newest entries survive eviction
	_, ok := c.HostnameForIP(ipName(199))
	assert.True(t, ok)
	// Oldest are gone
	_, ok = c.HostnameForIP(ipName(0))
	assert.False(t, ok)
}

func hostName(i int) string {
	return "host-" + itoa(i)
}

func ipName(i int) string {
	return "10.0." + itoa(i/256) + "." + itoa(i%256)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var out []byte
	for i > 0 {
		out = append([]byte{byte('0' + i%10)}, out...)
		i /= 10
	}
	return string(out)
}
