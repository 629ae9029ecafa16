package scanner

import (
	"context"
	"net"
	"strings"
	"sync"

	liblayers "github.com/InfraSecConsult/netwatch-go/lib/layers"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

const netbiosConcurrency = 64

// netbiosSweep sends a node status query to UDP/137 of every host and
// records the machine names and adapter MACs that answer.
func netbiosSweep(ctx context.Context, subnets []*net.IPNet, record func(model.ScanRecord)) error {
	sem := make(chan struct{}, netbiosConcurrency)
	var wg sync.WaitGroup

	for _, subnet := range subnets {
		for _, host := range hostsIn(subnet) {
			if ctx.Err() != nil {
				wg.Wait()
				return ctx.Err()
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				defer func() { <-sem }()
				if rec, ok := ProbeNetBIOS(ctx, ip); ok {
					record(rec)
				}
			}(host.String())
		}
	}
	wg.Wait()
	return ctx.Err()
}

// ProbeNetBIOS queries one host's NetBIOS name service. Also used directly
// by the /api/probe-netbios endpoint.
func ProbeNetBIOS(ctx context.Context, ip string) (model.ScanRecord, bool) {
	conn, err := net.Dial("udp4", net.JoinHostPort(ip, "137"))
	if err != nil {
		return model.ScanRecord{}, false
	}
	defer conn.Close()

	deadline := deadlineFor(ctx)
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(liblayers.NodeStatusRequest(0x4e42)); err != nil {
		return model.ScanRecord{}, false
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return model.ScanRecord{}, false
	}

	nb := &liblayers.NetBIOS{}
	if err := nb.DecodeFromBytes(buf[:n], nil); err != nil {
		return model.ScanRecord{}, false
	}
	name := nb.MachineName()
	if name == "" {
		return model.ScanRecord{}, false
	}

	return model.ScanRecord{
		ScanType: ScanTypeNetBIOS,
		IP:       ip,
		MAC:      nb.MAC,
		Hostname: strings.ToLower(name),
	}, true
}
