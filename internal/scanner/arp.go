package scanner

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// arpSweep sends an ARP request to every host address of each local IPv4
// subnet and records the replies. Requires a capture-capable handle on the
// interface owning the subnet.
func arpSweep(ctx context.Context, subnets []*net.IPNet, record func(model.ScanRecord)) error {
	for _, subnet := range subnets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := arpSweepSubnet(ctx, subnet, record); err != nil {
			log.Warn().Err(err).Str("subnet", subnet.String()).Msg("arp sweep failed for subnet")
		}
	}
	return ctx.Err()
}

func arpSweepSubnet(ctx context.Context, subnet *net.IPNet, record func(model.ScanRecord)) error {
	iface, srcIP, err := interfaceForSubnet(subnet)
	if err != nil {
		return err
	}

	handle, err := pcap.OpenLive(iface.Name, 128, false, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScanUnavailable, err)
	}
	defer handle.Close()
	if err := handle.SetBPFFilter("arp"); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		collectARPReplies(ctx, handle, subnet, record)
	}()

	for _, host := range hostsIn(subnet) {
		if ctx.Err() != nil {
			break
		}
		if host.Equal(srcIP) {
			continue
		}
		if err := sendARPRequest(handle, iface, srcIP, host); err != nil {
			return err
		}
		// Pace requests so cheap switches do not drop bursts.
		time.Sleep(2 * time.Millisecond)
	}

	// Late repliers get one timeout's grace before the reader stops.
	select {
	case <-ctx.Done():
	case <-time.After(perTargetTimeout):
	}
	handle.Close()
	<-done
	return nil
}

func sendARPRequest(handle *pcap.Handle, iface *net.Interface, srcIP, dstIP net.IP) error {
	eth := layers.Ethernet{
		SrcMAC:       iface.HardwareAddr,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   iface.HardwareAddr,
		SourceProtAddress: srcIP.To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    dstIP.To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return err
	}
	return handle.WritePacketData(buf.Bytes())
}

func collectARPReplies(ctx context.Context, handle *pcap.Handle, subnet *net.IPNet, record func(model.ScanRecord)) {
	started := time.Now()
	for ctx.Err() == nil {
		data, _, err := handle.ReadPacketData()
		if err != nil {
			return
		}
		packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
		arpLayer := packet.Layer(layers.LayerTypeARP)
		if arpLayer == nil {
			continue
		}
		arp := arpLayer.(*layers.ARP)
		if arp.Operation != layers.ARPReply {
			continue
		}
		ip := net.IP(arp.SourceProtAddress)
		if !subnet.Contains(ip) {
			continue
		}
		record(model.ScanRecord{
			ScanType:  ScanTypeARP,
			IP:        ip.String(),
			MAC:       net.HardwareAddr(arp.SourceHwAddress).String(),
			RTTMillis: time.Since(started).Milliseconds(),
		})
	}
}

// interfaceForSubnet finds the interface carrying an address inside subnet.
func interfaceForSubnet(subnet *net.IPNet) (*net.Interface, net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			if subnet.Contains(ipNet.IP) {
				return &ifaces[i], ipNet.IP.To4(), nil
			}
		}
	}
	return nil, nil, fmt.Errorf("no interface owns subnet %s", subnet)
}
