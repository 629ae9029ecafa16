package capture

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRealInterface(t *testing.T) {
	up := net.FlagUp
	tests := []struct {
		name       string
		iface      string
		flags      net.Flags
		hasUnicast bool
		want       bool
	}{
		{"normal ethernet", "eth0", up, true, true},
		{"wifi", "wlan0", up, true, true},
		{"loopback flag", "lo", up | net.FlagLoopback, true, false},
		{"loopback name", "lo0", up, true, false},
		{"docker bridge", "docker0", up, true, false},
		{"veth pair", "veth1a2b3c", up, true, false},
		{"bridge", "br-4f5e6d", up, true, false},
		{"tunnel", "tun0", up, true, false},
		{"tap", "tap0", up, true, false},
		{"mac vpn", "utun3", up, true, false},
		{"wireguard", "wg0", up, true, false},
		{"tailscale", "tailscale0", up, true, false},
		{"down interface", "eth1", 0, true, false},
		{"no address", "eth2", up, false, false},
		{"local-ish name is fine", "local0", up, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRealInterface(tt.iface, tt.flags, tt.hasUnicast))
		})
	}
}

func TestResolveSelections(t *testing.T) {
	ifaces := []net.Interface{
		{Index: 1, Name: "eth0"},
		{Index: 2, Name: "wlan0"},
		{Index: 3, Name: "docker0"},
	}

	wanted := resolveSelections([]string{"2", "eth0"}, ifaces)
	assert.Contains(t, wanted, "wlan0")
	assert.Contains(t, wanted, "eth0")
	assert.NotContains(t, wanted, "docker0")

	// Out-of-range indices are dropped
	wanted = resolveSelections([]string{"0", "99"}, ifaces)
	assert.Empty(t, wanted)
}

func TestSourcePublishDropsOldest(t *testing.T) {
	s := NewSource(2)
	for i := 0; i < 5; i++ {
		s.publish(Frame{Data: []byte{byte(i)}, Timestamp: time.Now()})
	}

	assert.Equal(t, uint64(3), s.DroppedCount())

	// The two newest frames survive
	first := <-s.frames
	second := <-s.frames
	assert.Equal(t, byte(3), first.Data[0])
	assert.Equal(t, byte(4), second.Data[0])
}

func TestSourcePauseFlag(t *testing.T) {
	s := NewSource(1)
	assert.False(t, s.Paused())
	s.SetPaused(true)
	assert.True(t, s.Paused())
	s.SetPaused(false)
	assert.False(t, s.Paused())
}

func TestSourceCloseIdempotent(t *testing.T) {
	s := NewSource(1)
	s.Close()
	s.Close()
	_, open := <-s.Frames()
	assert.False(t, open)
}
