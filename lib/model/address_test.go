package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMACFromEUI64(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want string
	}{
		{"link-local eui64", "fe80::d48f:2ff:fefb:b5", "d6:8f:02:fb:00:b5"},
		{"another eui64", "fe80::1234:56ff:fe78:9abc", "10:34:56:78:9a:bc"},
		{"full form", "fe80:0000:0000:0000:0211:22ff:fe33:4455", "00:11:22:33:44:55"},
		{"global eui64", "2001:db8::0211:22ff:fe33:4455", "00:11:22:33:44:55"},
		{"privacy address", "fe80::1", ""},
		{"not an ip", "not-an-ip", ""},
		{"ipv4", "192.168.1.1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MACFromEUI64(tt.ip))
		})
	}
}

func TestIsLocallyAdministeredMAC(t *testing.T) {
	assert.True(t, IsLocallyAdministeredMAC("d6:8f:02:fb:00:b5"))
	assert.True(t, IsLocallyAdministeredMAC("3A:44:55:66:77:88"))
	assert.True(t, IsLocallyAdministeredMAC("fe:11:22:33:44:55"))
	assert.False(t, IsLocallyAdministeredMAC("00:11:22:33:44:55"))
	assert.False(t, IsLocallyAdministeredMAC("a4:83:e7:12:34:56"))
	assert.False(t, IsLocallyAdministeredMAC(""))
}

func TestIsBroadcastOrMulticastMAC(t *testing.T) {
	assert.True(t, IsBroadcastOrMulticastMAC("ff:ff:ff:ff:ff:ff"))
	assert.True(t, IsBroadcastOrMulticastMAC("01:00:5e:00:00:01"))
	assert.True(t, IsBroadcastOrMulticastMAC("33:33:00:00:00:fb"))
	assert.False(t, IsBroadcastOrMulticastMAC("00:11:22:33:44:55"))
}

func TestIsMulticastOrBroadcastIP(t *testing.T) {
	assert.True(t, IsMulticastOrBroadcastIP("224.0.0.251"))
	assert.True(t, IsMulticastOrBroadcastIP("255.255.255.255"))
	assert.True(t, IsMulticastOrBroadcastIP("ff02::fb"))
	assert.False(t, IsMulticastOrBroadcastIP("192.168.1.1"))
	assert.False(t, IsMulticastOrBroadcastIP("8.8.8.8"))
	assert.False(t, IsMulticastOrBroadcastIP("garbage"))
}

func TestIsIPv6LinkLocal(t *testing.T) {
	assert.True(t, IsIPv6LinkLocal("fe80::1"))
	assert.True(t, IsIPv6LinkLocal("fe80::d48f:2ff:fefb:b5"))
	assert.False(t, IsIPv6LinkLocal("2001:db8::1"))
	assert.False(t, IsIPv6LinkLocal("169.254.1.1"))
}

func TestIPv6Prefix64(t *testing.T) {
	assert.Equal(t, "2001:db8:1:2", IPv6Prefix64("2001:db8:1:2:aaaa:bbbb:cccc:dddd"))
	assert.Equal(t, "fe80:0:0:0", IPv6Prefix64("fe80::1"))
	assert.Equal(t, "", IPv6Prefix64("10.0.0.1"))
	assert.Equal(t, "", IPv6Prefix64("junk"))
}

func TestStripLocalSuffix(t *testing.T) {
	assert.Equal(t, "my-printer", StripLocalSuffix("my-printer.local"))
	assert.Equal(t, "nas", StripLocalSuffix("nas.lan"))
	assert.Equal(t, "router", StripLocalSuffix("router.home"))
	assert.Equal(t, "host", StripLocalSuffix("host.localdomain"))
	assert.Equal(t, "example.com", StripLocalSuffix("example.com"))
	assert.Equal(t, "MixedCase", StripLocalSuffix("MixedCase.LOCAL"))
}

func TestIsValidDisplayName(t *testing.T) {
	assert.True(t, IsValidDisplayName("MikesPC"))
	assert.True(t, IsValidDisplayName("my-printer"))
	assert.True(t, IsValidDisplayName("host.example.com"))
	assert.False(t, IsValidDisplayName(""))
	assert.False(t, IsValidDisplayName("192.168.1.30"))
	assert.False(t, IsValidDisplayName("fe80::1"))
	assert.False(t, IsValidDisplayName("34887b21-9413-022c-352a-67966809b46c"))
	// Version-like strings are not IPv4 literals
	assert.True(t, IsValidDisplayName("1.2.3.400"))
}

func TestSet(t *testing.T) {
	s := NewSet("tcp", "udp", "tcp")
	s.Add("")
	s.Add("00:00:00:00:00:00")
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, []string{"tcp", "udp"}, s.List())
	assert.True(t, s.Contains("tcp"))
	assert.False(t, s.Contains("icmp"))
	assert.Equal(t, "tcp,udp", s.String())
}
