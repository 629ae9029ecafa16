package scanner

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

const portConcurrency = 128

// portSweep connect-probes the configured ports on every host of the local
// subnets. Connection refused still proves the host is up but only open
// ports are recorded.
func portSweep(ctx context.Context, subnets []*net.IPNet, ports []int, record func(model.ScanRecord)) error {
	if len(ports) == 0 {
		ports = DefaultPorts
	}

	sem := make(chan struct{}, portConcurrency)
	var wg sync.WaitGroup
	dialer := &net.Dialer{Timeout: perTargetTimeout}

	for _, subnet := range subnets {
		for _, host := range hostsIn(subnet) {
			if ctx.Err() != nil {
				wg.Wait()
				return ctx.Err()
			}
			for _, port := range ports {
				sem <- struct{}{}
				wg.Add(1)
				go func(ip string, port int) {
					defer wg.Done()
					defer func() { <-sem }()
					address := net.JoinHostPort(ip, strconv.Itoa(port))
					conn, err := dialer.DialContext(ctx, "tcp", address)
					if err != nil {
						return
					}
					conn.Close()
					record(model.ScanRecord{
						ScanType: ScanTypePort,
						IP:       ip,
						OpenPort: port,
					})
				}(host.String(), port)
			}
		}
	}
	wg.Wait()
	return ctx.Err()
}
