// Package dissect turns raw frames into typed observations: flow records,
// identity facts, name bindings, and mDNS announcements. Dissection is a pure
// function of one frame; the pool fans frames out across workers.
package dissect

import (
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/InfraSecConsult/netwatch-go/internal/capture"
	liblayers "github.com/InfraSecConsult/netwatch-go/lib/layers"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// Result collects everything one frame contributed.
type Result struct {
	Flow       *model.FlowObservation
	Identities []model.Observation
	Bindings   []model.NameBinding
	MDNS       *model.MDNSEntry
	Services   []model.ServiceAnnouncement
}

var decodeOptions = gopacket.DecodeOptions{
	Lazy:               true,
	NoCopy:             true,
	SkipDecodeRecovery: false,
}

// Dissect decodes one frame into observations. Malformed packets produce an
// empty result, never an error; the monitor must not be crashed by network
// input.
func Dissect(frame capture.Frame) Result {
	var res Result

	packet := gopacket.NewPacket(frame.Data, layers.LayerTypeEthernet, decodeOptions)

	var (
		srcMAC, dstMAC string
		srcIP, dstIP   string
		srcPort        int
		dstPort        int
		proto          string
	)

	if ethLayer := packet.Layer(layers.LayerTypeEthernet); ethLayer != nil {
		eth := ethLayer.(*layers.Ethernet)
		srcMAC = eth.SrcMAC.String()
		dstMAC = eth.DstMAC.String()
	}

	// ARP replies bind (ip, mac) for both sides.
	if arpLayer := packet.Layer(layers.LayerTypeARP); arpLayer != nil {
		arp := arpLayer.(*layers.ARP)
		if arp.Operation == layers.ARPReply && arp.AddrType == layers.LinkTypeEthernet {
			res.Identities = append(res.Identities, model.Observation{
				MAC:       hardwareAddr(arp.SourceHwAddress),
				IP:        ipString(arp.SourceProtAddress),
				Interface: frame.Interface,
				Timestamp: frame.Timestamp,
			})
			if target := ipString(arp.DstProtAddress); target != "" && target != "0.0.0.0" {
				res.Identities = append(res.Identities, model.Observation{
					MAC:       hardwareAddr(arp.DstHwAddress),
					IP:        target,
					Interface: frame.Interface,
					Timestamp: frame.Timestamp,
				})
			}
		}
		return res
	}

	if ip4Layer := packet.Layer(layers.LayerTypeIPv4); ip4Layer != nil {
		ip4 := ip4Layer.(*layers.IPv4)
		srcIP = ip4.SrcIP.String()
		dstIP = ip4.DstIP.String()
	} else if ip6Layer := packet.Layer(layers.LayerTypeIPv6); ip6Layer != nil {
		ip6 := ip6Layer.(*layers.IPv6)
		srcIP = ip6.SrcIP.String()
		dstIP = ip6.DstIP.String()
	} else {
		return res
	}

	switch {
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		proto = "ICMP"
	case packet.Layer(layers.LayerTypeICMPv6) != nil:
		proto = "ICMPV6"
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		srcPort = int(tcp.SrcPort)
		dstPort = int(tcp.DstPort)
		proto = ProtocolName(srcPort, dstPort)
		dissectTCPPayload(tcp.Payload, dstIP, frame, &res)
	}

	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		srcPort = int(udp.SrcPort)
		dstPort = int(udp.DstPort)
		proto = ProtocolName(srcPort, dstPort)
	}

	if dnsLayer := packet.Layer(layers.LayerTypeDNS); dnsLayer != nil {
		dissectDNS(dnsLayer.(*layers.DNS), frame, &res)
	}

	if mdnsLayer := packet.Layer(liblayers.LayerTypeMDNS); mdnsLayer != nil {
		dissectMDNS(mdnsLayer.(*liblayers.MDNS), srcIP, frame, &res)
	}

	if nbLayer := packet.Layer(liblayers.LayerTypeNetBIOS); nbLayer != nil {
		nb := nbLayer.(*liblayers.NetBIOS)
		if name := nb.MachineName(); name != "" {
			res.Bindings = append(res.Bindings, model.NameBinding{
				Hostname:  strings.ToLower(name),
				IP:        srcIP,
				Source:    model.BindingSourceNetBIOS,
				Timestamp: frame.Timestamp,
			})
		}
	}

	if proto == "" {
		return res
	}

	res.Flow = &model.FlowObservation{
		SrcMAC:    srcMAC,
		DstMAC:    dstMAC,
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  proto,
		Bytes:     len(frame.Data),
		Interface: frame.Interface,
		Timestamp: frame.Timestamp,
	}

	res.Identities = append(res.Identities,
		model.Observation{MAC: srcMAC, IP: srcIP, Interface: frame.Interface, Timestamp: frame.Timestamp},
		model.Observation{MAC: dstMAC, IP: dstIP, Interface: frame.Interface, Timestamp: frame.Timestamp},
	)

	return res
}

// dissectTCPPayload sniffs the first bytes of a TCP segment for identity
// fields: a cleartext HTTP Host header or a TLS ClientHello SNI. Only the
// header-parsing window is touched, payload bytes are never retained.
func dissectTCPPayload(payload []byte, dstIP string, frame capture.Frame, res *Result) {
	if len(payload) == 0 {
		return
	}

	if req, err := liblayers.ParseHTTPRequest(payload); err == nil {
		if req.Host != "" {
			res.Bindings = append(res.Bindings, model.NameBinding{
				Hostname:  req.Host,
				IP:        dstIP,
				Source:    model.BindingSourceHTTP,
				Timestamp: frame.Timestamp,
			})
		}
		return
	}

	if hello, err := liblayers.ParseClientHello(payload); err == nil && hello.SNI != "" {
		res.Bindings = append(res.Bindings, model.NameBinding{
			Hostname:  hello.SNI,
			IP:        dstIP,
			Source:    model.BindingSourceSNI,
			Timestamp: frame.Timestamp,
		})
	}
}

// dissectDNS extracts hostname<->address pairs from answer records of
// successful responses.
func dissectDNS(dns *layers.DNS, frame capture.Frame, res *Result) {
	if !dns.QR || dns.ResponseCode != layers.DNSResponseCodeNoErr {
		return
	}
	for _, answer := range dns.Answers {
		switch answer.Type {
		case layers.DNSTypeA, layers.DNSTypeAAAA:
			if answer.IP == nil {
				continue
			}
			res.Bindings = append(res.Bindings, model.NameBinding{
				Hostname:  strings.ToLower(string(answer.Name)),
				IP:        answer.IP.String(),
				Source:    model.BindingSourceDNS,
				Timestamp: frame.Timestamp,
			})
		}
	}
}

// dissectMDNS records the announcement for the DNS tab and feeds hostname and
// service observations back into identity.
func dissectMDNS(mdns *liblayers.MDNS, srcIP string, frame capture.Frame, res *Result) {
	if !mdns.IsResponse() {
		return
	}

	hostname := ""
	for _, binding := range mdns.HostnameBindings() {
		res.Bindings = append(res.Bindings, model.NameBinding{
			Hostname:  strings.ToLower(binding.Hostname),
			IP:        binding.IP.String(),
			Source:    model.BindingSourceMDNS,
			Timestamp: frame.Timestamp,
		})
		if hostname == "" {
			hostname = strings.ToLower(binding.Hostname)
		}
	}
	if hostname == "" {
		hostname = strings.ToLower(mdns.InstanceHostname())
	}

	services := mdns.ServiceTypes()
	for _, service := range services {
		res.Services = append(res.Services, model.ServiceAnnouncement{
			IP:          srcIP,
			Hostname:    hostname,
			ServiceType: service,
			Timestamp:   frame.Timestamp,
		})
	}

	if hostname != "" || len(services) > 0 {
		res.MDNS = &model.MDNSEntry{
			Timestamp: frame.Timestamp,
			IP:        srcIP,
			Hostname:  hostname,
			Services:  services,
		}
	}
}

func hardwareAddr(b []byte) string {
	if len(b) != 6 {
		return ""
	}
	return net.HardwareAddr(b).String()
}

func ipString(b []byte) string {
	if len(b) != 4 && len(b) != 16 {
		return ""
	}
	return net.IP(b).String()
}
