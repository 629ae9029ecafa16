package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressScope(t *testing.T) {
	tests := []struct {
		name        string
		address     string
		addressType string
		want        string
	}{
		{"mac broadcast", "ff:ff:ff:ff:ff:ff", "MAC", "broadcast"},
		{"mac multicast", "01:00:5e:00:00:fb", "MAC", "multicast"},
		{"mac unicast", "00:11:22:33:44:55", "MAC", "unicast"},
		{"ipv4 multicast", "224.0.0.251", "IP", "multicast"},
		{"ipv4 broadcast", "255.255.255.255", "IP", "broadcast"},
		{"ipv4 unicast", "192.168.1.10", "IP", "unicast"},
		{"ipv6 multicast", "ff02::fb", "IP", "multicast"},
		{"ipv6 unicast", "2001:db8::1", "IP", "unicast"},
		{"bad ip", "not-an-ip", "IP", ""},
		{"unknown type", "whatever", "DNS", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddressScope(tt.address, tt.addressType))
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP("192.168.1.10"))
	assert.True(t, IsPrivateIP("10.0.0.1"))
	assert.True(t, IsPrivateIP("172.16.4.4"))
	assert.True(t, IsPrivateIP("127.0.0.1"))
	assert.True(t, IsPrivateIP("fe80::1"))
	assert.True(t, IsPrivateIP("fd00::1234"))
	assert.False(t, IsPrivateIP("8.8.8.8"))
	assert.False(t, IsPrivateIP("2600:1f14::1"))
	assert.False(t, IsPrivateIP("not-an-ip"))
}
