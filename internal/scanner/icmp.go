package scanner

import (
	"context"
	"net"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// icmpConcurrency bounds the number of in-flight echo requests.
const icmpConcurrency = 64

// icmpSweep pings every host of the local subnets with bounded concurrency
// and records the round-trip time of responders.
func icmpSweep(ctx context.Context, subnets []*net.IPNet, record func(model.ScanRecord)) error {
	sem := make(chan struct{}, icmpConcurrency)
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
				if rtt, ok := pingOnce(ctx, ip); ok {
					record(model.ScanRecord{
						ScanType:  ScanTypeICMP,
						IP:        ip,
						RTTMillis: rtt.Milliseconds(),
					})
				}
			}(host.String())
		}
	}
	wg.Wait()
	return ctx.Err()
}

// Ping sends one echo request; used by the /api/ping endpoint.
func Ping(ctx context.Context, ip string) (time.Duration, bool) {
	return pingOnce(ctx, ip)
}

func pingOnce(ctx context.Context, ip string) (time.Duration, bool) {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return 0, false
	}
	pinger.Count = 1
	pinger.Timeout = perTargetTimeout
	pinger.SetPrivileged(true)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, false
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, false
	}
	return stats.AvgRtt, true
}
