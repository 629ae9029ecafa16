// Package scanner is the active discovery engine: a cooperative multi-phase
// scan over the local subnets whose results feed the same identity pipeline
// as passive capture. At most one scan runs at a time and cancellation is
// observed between targets, never mid-socket beyond the per-target timeout.
package scanner

import (
	"context"
	"errors"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// Scan phase names, as used over the API.
const (
	ScanTypeARP     = "arp"
	ScanTypeICMP    = "icmp"
	ScanTypeNDP     = "ndp"
	ScanTypePort    = "port"
	ScanTypeSSDP    = "ssdp"
	ScanTypeNetBIOS = "netbios"
	ScanTypeSNMP    = "snmp"
)

// ErrScanRunning rejects a start request while a scan is in progress.
var ErrScanRunning = errors.New("scan already in progress")

// ErrScanUnavailable marks phases disabled by missing privileges.
var ErrScanUnavailable = errors.New("scan type unavailable")

// perTargetTimeout bounds every socket operation so cancellation latency is
// bounded by it.
const perTargetTimeout = 2 * time.Second

// DefaultPorts is the fixed list the TCP probe phase connects to.
var DefaultPorts = []int{
	22, 80, 139, 443, 445, 554, 1900, 3389, 5000, 5900,
	8008, 8060, 8080, 8443, 9100,
}

// Recorder receives scan results; implemented by the storage writer.
type Recorder interface {
	RecordScanRecord(model.ScanRecord)
}

// Status is the scan-state singleton exposed over the API.
type Status struct {
	Running         bool     `json:"running"`
	ScanTypes       []string `json:"scan_types"`
	ProgressPercent int      `json:"progress_percent"`
	DiscoveredCount int      `json:"discovered_count"`
	LastScanTime    *int64   `json:"last_scan_time"`
	CurrentPhase    string   `json:"current_phase"`
}

// Capabilities reports which phases the current privileges allow.
type Capabilities struct {
	ARP     bool `json:"arp"`
	ICMP    bool `json:"icmp"`
	NDP     bool `json:"ndp"`
	Port    bool `json:"port"`
	SSDP    bool `json:"ssdp"`
	NetBIOS bool `json:"netbios"`
	SNMP    bool `json:"snmp"`
}

// Config are the scanner tunables exposed over the API.
type Config struct {
	Ports     []int `json:"ports"`
	TimeoutMS int   `json:"timeout_ms"`
}

// Manager owns the scan-state singleton and runs scans.
type Manager struct {
	recorder Recorder

	mu      sync.Mutex
	status  Status
	config  Config
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

// NewManager creates an idle manager.
func NewManager(recorder Recorder) *Manager {
	return &Manager{
		recorder: recorder,
		config:   Config{Ports: append([]int(nil), DefaultPorts...), TimeoutMS: 1000},
	}
}

// Status returns a consistent snapshot of the scan state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	s.ScanTypes = append([]string(nil), m.status.ScanTypes...)
	return s
}

// Config returns the current scanner configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.config
	c.Ports = append([]int(nil), m.config.Ports...)
	return c
}

// SetConfig replaces the scanner configuration.
func (m *Manager) SetConfig(c Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(c.Ports) > 0 {
		m.config.Ports = c.Ports
	}
	if c.TimeoutMS > 0 {
		m.config.TimeoutMS = c.TimeoutMS
	}
}

// CheckCapabilities probes the privileges available to this process. Raw
// sockets (ARP, ICMP, NDP) need root or the equivalent capability.
func CheckCapabilities() Capabilities {
	raw := os.Geteuid() == 0
	return Capabilities{
		ARP:     raw,
		ICMP:    raw,
		NDP:     raw,
		Port:    true,
		SSDP:    true,
		NetBIOS: true,
		SNMP:    true,
	}
}

// Start launches a scan over the requested phases. Returns ErrScanRunning
// while a scan is active.
func (m *Manager) Start(scanTypes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrScanRunning
	}
	if len(scanTypes) == 0 {
		scanTypes = []string{ScanTypeARP, ScanTypeNDP, ScanTypeSSDP, ScanTypeNetBIOS, ScanTypeSNMP}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})
	m.status = Status{
		Running:      true,
		ScanTypes:    append([]string(nil), scanTypes...),
		CurrentPhase: "starting",
		LastScanTime: m.status.LastScanTime,
	}

	go m.run(ctx, scanTypes)
	return nil
}

// Stop requests cooperative cancellation of the running scan.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// Wait blocks until the current scan (if any) has fully wound down. Used at
// shutdown so no result can reach the writer after it stops.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	running := m.running
	m.mu.Unlock()
	if running && done != nil {
		<-done
	}
}

func (m *Manager) run(ctx context.Context, scanTypes []string) {
	caps := CheckCapabilities()
	subnets := localSubnets()
	discovered := make(map[string]struct{})

	record := func(rec model.ScanRecord) {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		m.recorder.RecordScanRecord(rec)
		m.mu.Lock()
		discovered[rec.IP] = struct{}{}
		m.status.DiscoveredCount = len(discovered)
		m.mu.Unlock()
	}

	cancelled := false
	for i, scanType := range scanTypes {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		m.setPhase(scanType)
		var err error
		switch scanType {
		case ScanTypeARP:
			err = m.runIfAllowed(caps.ARP, func() error { return arpSweep(ctx, subnets, record) })
		case ScanTypeICMP:
			err = m.runIfAllowed(caps.ICMP, func() error { return icmpSweep(ctx, subnets, record) })
		case ScanTypeNDP:
			err = m.runIfAllowed(caps.NDP, func() error { return ndpSweep(ctx, record) })
		case ScanTypePort:
			err = portSweep(ctx, subnets, m.Config().Ports, record)
		case ScanTypeSSDP:
			err = ssdpSweep(ctx, record)
		case ScanTypeNetBIOS:
			err = netbiosSweep(ctx, subnets, record)
		case ScanTypeSNMP:
			err = snmpSweep(ctx, subnets, record)
		default:
			log.Warn().Str("scan_type", scanType).Msg("unknown scan type requested")
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("scan_type", scanType).Msg("scan phase failed")
		}

		m.mu.Lock()
		m.status.ProgressPercent = (i + 1) * 100 / len(scanTypes)
		m.mu.Unlock()
	}

	now := time.Now().Unix()
	m.mu.Lock()
	defer close(m.done)
	m.running = false
	m.status.Running = false
	m.status.LastScanTime = &now
	if cancelled || ctx.Err() != nil {
		m.status.CurrentPhase = "cancelled"
	} else {
		m.status.CurrentPhase = "complete"
		m.status.ProgressPercent = 100
	}
	m.cancel = nil
	m.mu.Unlock()
}

func (m *Manager) runIfAllowed(allowed bool, fn func() error) error {
	if !allowed {
		return ErrScanUnavailable
	}
	return fn()
}

func (m *Manager) setPhase(phase string) {
	m.mu.Lock()
	m.status.CurrentPhase = phase
	m.mu.Unlock()
}

// deadlineFor bounds a socket operation by the per-target timeout and the
// scan context, whichever ends first.
func deadlineFor(ctx context.Context) time.Time {
	deadline := time.Now().Add(perTargetTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// localSubnets returns the IPv4 networks attached to non-loopback
// interfaces, clamped to /24 so a misconfigured /8 cannot trigger a sweep of
// millions of hosts.
func localSubnets() []*net.IPNet {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var subnets []*net.IPNet
	seen := make(map[string]struct{})
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			ones, _ := ipNet.Mask.Size()
			if ones < 24 {
				ones = 24
			}
			clamped := &net.IPNet{IP: ipNet.IP.Mask(net.CIDRMask(ones, 32)), Mask: net.CIDRMask(ones, 32)}
			key := clamped.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			subnets = append(subnets, clamped)
		}
	}
	sort.Slice(subnets, func(i, j int) bool { return subnets[i].String() < subnets[j].String() })
	return subnets
}

// hostsIn enumerates the host addresses of a subnet, skipping network and
// broadcast.
func hostsIn(subnet *net.IPNet) []net.IP {
	ones, bits := subnet.Mask.Size()
	if bits != 32 || ones > 30 {
		return nil
	}
	count := 1 << (bits - ones)

	base := subnet.IP.To4()
	var hosts []net.IP
	for i := 1; i < count-1; i++ {
		ip := make(net.IP, 4)
		copy(ip, base)
		ip[2] += byte(i >> 8)
		ip[3] += byte(i & 0xff)
		hosts = append(hosts, ip)
	}
	return hosts
}
