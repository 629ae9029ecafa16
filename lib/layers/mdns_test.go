package lib_layers

import (
	"encoding/binary"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dnsName(name string) []byte {
	var out []byte
	for _, label := range splitLabels(name) {
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	return append(out, 0)
}

func splitLabels(name string) []string {
	var labels []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if i > start {
				labels = append(labels, name[start:i])
			}
			start = i + 1
		}
	}
	return labels
}

func mdnsHeader(qr bool, an uint16) []byte {
	h := make([]byte, 12)
	if qr {
		binary.BigEndian.PutUint16(h[2:4], 0x8400)
	}
	binary.BigEndian.PutUint16(h[6:8], an)
	return h
}

func aRecord(name string, ip []byte, cacheFlush bool) []byte {
	out := dnsName(name)
	out = binary.BigEndian.AppendUint16(out, uint16(layers.DNSTypeA))
	class := uint16(1)
	if cacheFlush {
		class |= 0x8000
	}
	out = binary.BigEndian.AppendUint16(out, class)
	out = append(out, 0, 0, 0, 120) // TTL
	out = binary.BigEndian.AppendUint16(out, uint16(len(ip)))
	return append(out, ip...)
}

func ptrRecord(name, target string) []byte {
	out := dnsName(name)
	out = binary.BigEndian.AppendUint16(out, uint16(layers.DNSTypePTR))
	out = binary.BigEndian.AppendUint16(out, 1)
	out = append(out, 0, 0, 0, 120)
	targetBytes := dnsName(target)
	out = binary.BigEndian.AppendUint16(out, uint16(len(targetBytes)))
	return append(out, targetBytes...)
}

func TestMDNSDecodeResponseWithARecord(t *testing.T) {
	packet := mdnsHeader(true, 1)
	packet = append(packet, aRecord("my-printer.local", []byte{192, 168, 1, 30}, true)...)

	mdns := &MDNS{}
	require.NoError(t, mdns.DecodeFromBytes(packet, nil))

	assert.True(t, mdns.IsResponse())
	assert.False(t, mdns.IsQuery())
	require.Len(t, mdns.Answers, 1)
	assert.Equal(t, "my-printer.local", string(mdns.Answers[0].Name))
	assert.True(t, mdns.Answers[0].CacheFlush)
	assert.Equal(t, "192.168.1.30", mdns.Answers[0].IP.String())

	bindings := mdns.HostnameBindings()
	require.Len(t, bindings, 1)
	assert.Equal(t, "my-printer.local", bindings[0].Hostname)
	assert.Equal(t, "192.168.1.30", bindings[0].IP.String())
}

func TestMDNSServiceTypes(t *testing.T) {
	packet := mdnsHeader(true, 2)
	packet = append(packet, ptrRecord("_ipp._tcp.local", "Printer._ipp._tcp.local")...)
	packet = append(packet, ptrRecord("_services._dns-sd._udp.local", "_ipp._tcp.local")...)

	mdns := &MDNS{}
	require.NoError(t, mdns.DecodeFromBytes(packet, nil))

	// Enumeration meta-records are excluded, real services kept
	assert.Equal(t, []string{"_ipp._tcp"}, mdns.ServiceTypes())
}

func TestMDNSQueryHasNoBindings(t *testing.T) {
	packet := mdnsHeader(false, 0)
	binary.BigEndian.PutUint16(packet[4:6], 1)
	packet = append(packet, dnsName("_http._tcp.local")...)
	packet = binary.BigEndian.AppendUint16(packet, uint16(layers.DNSTypePTR))
	packet = binary.BigEndian.AppendUint16(packet, 1|0x8000)

	mdns := &MDNS{}
	require.NoError(t, mdns.DecodeFromBytes(packet, nil))

	assert.True(t, mdns.IsQuery())
	require.Len(t, mdns.Questions, 1)
	assert.True(t, mdns.Questions[0].UnicastResponse)
	assert.Equal(t, "_http._tcp.local", mdns.Questions[0].GetServiceType())
	assert.Nil(t, mdns.HostnameBindings())
	assert.Nil(t, mdns.ServiceTypes())
}

func TestMDNSTruncatedPacket(t *testing.T) {
	mdns := &MDNS{}
	assert.Error(t, mdns.DecodeFromBytes([]byte{0x01, 0x02}, nil))

	// Header claims an answer that is not present
	packet := mdnsHeader(true, 1)
	assert.Error(t, mdns.DecodeFromBytes(packet, nil))
}

func TestMDNSCompressionLoopRejected(t *testing.T) {
	packet := mdnsHeader(true, 1)
	// Pointer to itself at offset 12
	packet = append(packet, 0xC0, 0x0C)
	packet = binary.BigEndian.AppendUint16(packet, uint16(layers.DNSTypeA))
	packet = binary.BigEndian.AppendUint16(packet, 1)
	packet = append(packet, 0, 0, 0, 120, 0, 4, 192, 168, 1, 1)

	mdns := &MDNS{}
	assert.Error(t, mdns.DecodeFromBytes(packet, nil))
}
