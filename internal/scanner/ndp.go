package scanner

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/mdlayher/ndp"
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// ndpSweep multicasts an ICMPv6 presence probe: a neighbor solicitation to
// ff02::1 makes link-local hosts reveal themselves through neighbor
// advertisements, which are collected for (ip, mac) pairs.
func ndpSweep(ctx context.Context, record func(model.ScanRecord)) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return err
	}
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := ndpSweepInterface(ctx, iface, record); err != nil {
			log.Debug().Err(err).Str("interface", iface.Name).Msg("ndp sweep skipped interface")
		}
	}
	return ctx.Err()
}

func ndpSweepInterface(ctx context.Context, iface *net.Interface, record func(model.ScanRecord)) error {
	conn, _, err := ndp.Listen(iface, ndp.LinkLocal)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScanUnavailable, err)
	}
	defer conn.Close()

	allNodes := netip.MustParseAddr("ff02::1")

	// Soliciting the all-nodes group makes neighbors advertise themselves.
	msg := &ndp.NeighborSolicitation{
		TargetAddress: allNodes,
		Options: []ndp.Option{&ndp.LinkLayerAddress{
			Direction: ndp.Source,
			Addr:      iface.HardwareAddr,
		}},
	}
	if err := conn.WriteTo(msg, nil, allNodes); err != nil {
		return err
	}

	deadline := time.Now().Add(perTargetTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	for ctx.Err() == nil {
		received, _, from, err := conn.ReadFrom()
		if err != nil {
			return nil // deadline reached
		}
		adv, ok := received.(*ndp.NeighborAdvertisement)
		if !ok {
			continue
		}
		mac := ""
		for _, opt := range adv.Options {
			if lla, ok := opt.(*ndp.LinkLayerAddress); ok && lla.Direction == ndp.Target {
				mac = lla.Addr.String()
			}
		}
		record(model.ScanRecord{
			ScanType: ScanTypeNDP,
			IP:       from.String(),
			MAC:      mac,
		})
	}
	return ctx.Err()
}
