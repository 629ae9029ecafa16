package model

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var macAddressRegex = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// Hostname suffixes that carry no identity information on a home network.
var localSuffixes = []string{
	".local",
	".lan",
	".home",
	".internal",
	".localdomain",
	".localhost",
}

func IsValidMACAddress(mac string) bool {
	return macAddressRegex.MatchString(mac)
}

// IsZeroMAC reports whether the MAC is absent or all-zero.
func IsZeroMAC(mac string) bool {
	return mac == "" || mac == "00:00:00:00:00:00"
}

// IsBroadcastOrMulticastMAC reports whether the MAC is the broadcast address
// or lies in a well-known multicast block: 01:00:5e (IPv4 multicast), 33:33
// (IPv6 multicast) or 01:80:c2 (bridge protocols such as STP and LLDP). These
// never identify a single device. Other addresses with the group bit set are
// not rejected.
func IsBroadcastOrMulticastMAC(mac string) bool {
	lower := strings.ToLower(mac)
	if lower == "ff:ff:ff:ff:ff:ff" {
		return true
	}
	for _, prefix := range []string{"01:00:5e:", "33:33:", "01:80:c2:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// IsLocallyAdministeredMAC reports whether the MAC is locally administered
// (randomized/private). The second hex digit of the first octet is 2, 6, a,
// or e. Such addresses rotate and must not be used for endpoint matching.
func IsLocallyAdministeredMAC(mac string) bool {
	var digits []rune
	for _, c := range strings.ToLower(mac) {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			digits = append(digits, c)
			if len(digits) == 2 {
				break
			}
		}
	}
	if len(digits) < 2 {
		return false
	}
	switch digits[1] {
	case '2', '6', 'a', 'e':
		return true
	}
	return false
}

// IsMulticastOrBroadcastIP reports whether the IP is a multicast or broadcast
// address and therefore not a real endpoint.
func IsMulticastOrBroadcastIP(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	if addr.IsMulticast() {
		return true
	}
	if v4 := addr.To4(); v4 != nil && v4.Equal(net.IPv4bcast) {
		return true
	}
	return false
}

// IsIPv6LinkLocal reports whether ip is an fe80::/10 address.
func IsIPv6LinkLocal(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil || addr.To4() != nil {
		return false
	}
	return addr.IsLinkLocalUnicast()
}

// MACFromEUI64 recovers the MAC address from an IPv6 EUI-64 interface
// identifier: the ff:fe marker bytes are removed and the universal/local bit
// of the first octet flipped back. Returns "" when the address is not
// EUI-64-derived (privacy addresses and the like).
//
// fe80::d48f:2ff:fefb:b5 -> d6:8f:02:fb:00:b5
func MACFromEUI64(ip string) string {
	addr := net.ParseIP(ip)
	if addr == nil || addr.To4() != nil {
		return ""
	}
	b := addr.To16()
	// Interface identifier is the last 8 bytes; EUI-64 puts ff:fe in the
	// middle of the original MAC.
	if b[11] != 0xff || b[12] != 0xfe {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		b[8]^0x02, b[9], b[10], b[13], b[14], b[15])
}

// IPv6Prefix64 returns the /64 prefix of an IPv6 address in its canonical
// colon form, or "" for IPv4 and unparseable input.
func IPv6Prefix64(ip string) string {
	addr := net.ParseIP(ip)
	if addr == nil || addr.To4() != nil {
		return ""
	}
	b := addr.To16()
	return fmt.Sprintf("%x:%x:%x:%x",
		uint16(b[0])<<8|uint16(b[1]),
		uint16(b[2])<<8|uint16(b[3]),
		uint16(b[4])<<8|uint16(b[5]),
		uint16(b[6])<<8|uint16(b[7]))
}

// StripLocalSuffix removes a trailing local-network suffix (.local, .lan, ...)
// from a hostname.
func StripLocalSuffix(hostname string) string {
	lower := strings.ToLower(hostname)
	for _, suffix := range localSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return hostname[:len(hostname)-len(suffix)]
		}
	}
	return hostname
}

// IsUUIDLike reports whether s has the 8-4-4-4-12 hex shape of a UUID.
// Devices sometimes announce UUIDs as instance names; they make poor display
// names.
func IsUUIDLike(s string) bool {
	if len(s) != 36 {
		return false
	}
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return false
	}
	lengths := []int{8, 4, 4, 4, 12}
	for i, part := range parts {
		if len(part) != lengths[i] {
			return false
		}
		for _, c := range part {
			if !isHexDigit(c) {
				return false
			}
		}
	}
	return true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// IsValidDisplayName is the single predicate deciding whether a string may be
// shown as an endpoint name. Empty strings, UUIDs, IPv4 literals, and IPv6
// literals are rejected.
func IsValidDisplayName(name string) bool {
	if name == "" {
		return false
	}
	if IsUUIDLike(name) {
		return false
	}
	if strings.Contains(name, ":") {
		return false
	}
	parts := strings.Split(name, ".")
	if len(parts) == 4 {
		allOctets := true
		for _, p := range parts {
			if n, err := strconv.Atoi(p); err != nil || n < 0 || n > 255 || p == "" {
				allOctets = false
				break
			}
		}
		if allOctets {
			return false
		}
	}
	return true
}
