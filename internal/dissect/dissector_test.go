package dissect

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/netwatch-go/internal/capture"
	liblayers "github.com/InfraSecConsult/netwatch-go/lib/layers"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

func TestMain(m *testing.M) {
	liblayers.InitLayers()
	m.Run()
}

var (
	testSrcMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}
	testDstMAC = net.HardwareAddr{0x00, 0x22, 0x33, 0x44, 0x55, 0x66}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func tcpFrame(t *testing.T, srcIP, dstIP string, srcPort, dstPort int, payload []byte) capture.Frame {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP(srcIP), DstIP: net.ParseIP(dstIP)}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), SYN: payload == nil}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	ls := []gopacket.SerializableLayer{eth, ip, tcp}
	if payload != nil {
		ls = append(ls, gopacket.Payload(payload))
	}
	return capture.Frame{Data: serialize(t, ls...), Interface: "eth0", Timestamp: time.Now()}
}

func udpFrame(t *testing.T, srcIP, dstIP string, srcPort, dstPort int, payload []byte) capture.Frame {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP(srcIP), DstIP: net.ParseIP(dstIP)}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	return capture.Frame{
		Data:      serialize(t, eth, ip, udp, gopacket.Payload(payload)),
		Interface: "eth0",
		Timestamp: time.Now(),
	}
}

func TestDissectTCPFlow(t *testing.T) {
	res := Dissect(tcpFrame(t, "192.168.1.10", "93.184.216.34", 49152, 443, nil))

	require.NotNil(t, res.Flow)
	assert.Equal(t, "192.168.1.10", res.Flow.SrcIP)
	assert.Equal(t, "93.184.216.34", res.Flow.DstIP)
	assert.Equal(t, 443, res.Flow.DstPort)
	assert.Equal(t, "HTTPS", res.Flow.Protocol)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", res.Flow.SrcMAC)

	require.Len(t, res.Identities, 2)
	assert.Equal(t, "192.168.1.10", res.Identities[0].IP)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", res.Identities[0].MAC)
}

func TestDissectARPReply(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPReply,
		SourceHwAddress: testSrcMAC, SourceProtAddress: []byte{192, 168, 1, 20},
		DstHwAddress: testDstMAC, DstProtAddress: []byte{192, 168, 1, 1},
	}
	frame := capture.Frame{Data: serialize(t, eth, arp), Interface: "eth0", Timestamp: time.Now()}

	res := Dissect(frame)
	assert.Nil(t, res.Flow)
	require.Len(t, res.Identities, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", res.Identities[0].MAC)
	assert.Equal(t, "192.168.1.20", res.Identities[0].IP)
	assert.Equal(t, "192.168.1.1", res.Identities[1].IP)
}

func TestDissectARPRequestIgnored(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: testSrcMAC, SourceProtAddress: []byte{192, 168, 1, 20},
		DstHwAddress: net.HardwareAddr{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{192, 168, 1, 1},
	}
	frame := capture.Frame{Data: serialize(t, eth, arp), Interface: "eth0", Timestamp: time.Now()}

	res := Dissect(frame)
	assert.Empty(t, res.Identities)
}

func TestDissectDNSResponse(t *testing.T) {
	dns := &layers.DNS{
		QR: true, ResponseCode: layers.DNSResponseCodeNoErr, ANCount: 1,
		Questions: []layers.DNSQuestion{{Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN}},
		Answers: []layers.DNSResourceRecord{{
			Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN,
			TTL: 300, IP: net.ParseIP("93.184.216.34").To4(),
		}},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, dns.SerializeTo(buf, gopacket.SerializeOptions{FixLengths: true}))

	res := Dissect(udpFrame(t, "8.8.8.8", "192.168.1.10", 53, 44321, buf.Bytes()))
	require.NotNil(t, res.Flow)
	assert.Equal(t, "DNS", res.Flow.Protocol)

	require.Len(t, res.Bindings, 1)
	assert.Equal(t, "example.com", res.Bindings[0].Hostname)
	assert.Equal(t, "93.184.216.34", res.Bindings[0].IP)
	assert.Equal(t, model.BindingSourceDNS, res.Bindings[0].Source)
}

func TestDissectTLSClientHelloSNI(t *testing.T) {
	hello := buildTestClientHello(t, "secret.example.org")
	res := Dissect(tcpFrame(t, "192.168.1.10", "1.2.3.4", 50000, 443, hello))

	require.Len(t, res.Bindings, 1)
	assert.Equal(t, "secret.example.org", res.Bindings[0].Hostname)
	assert.Equal(t, "1.2.3.4", res.Bindings[0].IP)
	assert.Equal(t, model.BindingSourceSNI, res.Bindings[0].Source)
}

func TestDissectHTTPHost(t *testing.T) {
	payload := []byte("GET / HTTP/1.1\r\nHost: cleartext.example.net\r\n\r\n")
	res := Dissect(tcpFrame(t, "192.168.1.10", "5.6.7.8", 50001, 80, payload))

	require.Len(t, res.Bindings, 1)
	assert.Equal(t, "cleartext.example.net", res.Bindings[0].Hostname)
	assert.Equal(t, model.BindingSourceHTTP, res.Bindings[0].Source)
	require.NotNil(t, res.Flow)
	assert.Equal(t, "HTTP", res.Flow.Protocol)
}

func TestDissectMDNSAnnouncement(t *testing.T) {
	packet := make([]byte, 12)
	packet[2] = 0x84 // response, authoritative
	packet[7] = 2    // two answers
	packet = append(packet, mdnsName("my-printer.local")...)
	packet = append(packet, 0x00, 0x01, 0x80, 0x01, 0, 0, 0, 120, 0, 4, 192, 168, 1, 30)
	packet = append(packet, mdnsName("_ipp._tcp.local")...)
	ptrTarget := mdnsName("Printer._ipp._tcp.local")
	packet = append(packet, 0x00, 0x0c, 0x00, 0x01, 0, 0, 0, 120, byte(len(ptrTarget)>>8), byte(len(ptrTarget)))
	packet = append(packet, ptrTarget...)

	res := Dissect(udpFrame(t, "192.168.1.30", "224.0.0.251", 5353, 5353, packet))

	require.NotNil(t, res.MDNS)
	assert.Equal(t, "192.168.1.30", res.MDNS.IP)
	assert.Equal(t, "my-printer.local", res.MDNS.Hostname)
	assert.Equal(t, []string{"_ipp._tcp"}, res.MDNS.Services)

	require.Len(t, res.Services, 1)
	assert.Equal(t, "_ipp._tcp", res.Services[0].ServiceType)

	require.Len(t, res.Bindings, 1)
	assert.Equal(t, model.BindingSourceMDNS, res.Bindings[0].Source)
}

func TestDissectMalformedFrame(t *testing.T) {
	res := Dissect(capture.Frame{Data: []byte{0x01, 0x02, 0x03}, Interface: "eth0", Timestamp: time.Now()})
	assert.Nil(t, res.Flow)
	assert.Empty(t, res.Identities)
}

func TestProtocolName(t *testing.T) {
	tests := []struct {
		name     string
		srcPort  int
		dstPort  int
		expected string
	}{
		{"well-known destination", 50000, 443, "HTTPS"},
		{"well-known low destination", 50000, 22, "SSH"},
		{"ephemeral destination falls back to source", 443, 49152, "HTTPS"},
		{"boundary: 32768 is ephemeral", 80, 32768, "HTTP"},
		{"boundary: 32767 is not", 80, 32767, "32767"},
		{"both unknown", 40000, 50000, "50000"},
		{"unknown below floor keeps numeric tag", 443, 12345, "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ProtocolName(tt.srcPort, tt.dstPort))
		})
	}
}

func mdnsName(name string) []byte {
	var out []byte
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if i > start {
				out = append(out, byte(i-start))
				out = append(out, name[start:i]...)
			}
			start = i + 1
		}
	}
	return append(out, 0)
}

func buildTestClientHello(t *testing.T, sni string) []byte {
	t.Helper()
	name := []byte(sni)

	entry := []byte{0x00, byte(len(name) >> 8), byte(len(name))}
	entry = append(entry, name...)
	sniExt := []byte{byte(len(entry) >> 8), byte(len(entry))}
	sniExt = append(sniExt, entry...)

	extensions := []byte{0x00, 0x00, byte(len(sniExt) >> 8), byte(len(sniExt))}
	extensions = append(extensions, sniExt...)

	body := []byte{0x03, 0x03}
	body = append(body, make([]byte, 32)...)
	body = append(body, 0)
	body = append(body, 0x00, 0x02, 0xc0, 0x2f)
	body = append(body, 1, 0)
	body = append(body, byte(len(extensions)>>8), byte(len(extensions)))
	body = append(body, extensions...)

	handshake := []byte{0x01, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	handshake = append(handshake, body...)

	record := []byte{0x16, 0x03, 0x01, byte(len(handshake) >> 8), byte(len(handshake))}
	return append(record, handshake...)
}
