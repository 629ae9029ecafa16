// Package aggregate collapses per-packet flow observations into per-
// conversation totals before they reach the storage writer. Each flow key is
// pinned to one shard, preserving update order within a conversation while
// dissector workers run concurrently.
package aggregate

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

const (
	shardCount = 16
	// maxPendingPerShard caps in-memory coalescing; beyond it a shard
	// flushes early instead of growing.
	maxPendingPerShard = 4096
	// DefaultFlushInterval bounds how stale the stored counters can be.
	DefaultFlushInterval = 2 * time.Second
)

// FlowTotals is the coalesced contribution of one conversation since the
// last flush. Addresses are still raw; the writer resolves endpoints.
type FlowTotals struct {
	SrcMAC, DstMAC string
	SrcIP, DstIP   string
	SrcPort        int
	DstPort        int
	Protocol       string
	Interface      string
	PacketCount    int64
	Bytes          int64
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Store is the downstream the aggregator feeds; implemented by the storage
// writer.
type Store interface {
	EnqueueIdentity(model.Observation)
	EnqueueBinding(model.NameBinding)
	EnqueueMDNS(model.MDNSEntry)
	EnqueueService(model.ServiceAnnouncement)
	EnqueueFlows([]FlowTotals)
}

type shard struct {
	mu      sync.Mutex
	pending map[string]*FlowTotals
}

// Aggregator implements the dissector sink.
type Aggregator struct {
	store         Store
	shards        [shardCount]*shard
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// New creates an aggregator feeding the given store.
func New(store Store) *Aggregator {
	a := &Aggregator{
		store:         store,
		flushInterval: DefaultFlushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for i := range a.shards {
		a.shards[i] = &shard{pending: make(map[string]*FlowTotals)}
	}
	return a
}

// Run flushes on an interval until Stop is called.
func (a *Aggregator) Run() {
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush()
			case <-a.stop:
				a.Flush()
				return
			}
		}
	}()
}

// Stop flushes the remaining totals and stops the flush loop.
func (a *Aggregator) Stop() {
	close(a.stop)
	<-a.done
}

// HandleFlow coalesces one packet into its conversation slot.
func (a *Aggregator) HandleFlow(flow model.FlowObservation) {
	key := flowKey(flow)
	s := a.shards[shardIndex(key)]

	s.mu.Lock()
	totals, ok := s.pending[key]
	if !ok {
		totals = &FlowTotals{
			SrcMAC: flow.SrcMAC, DstMAC: flow.DstMAC,
			SrcIP: flow.SrcIP, DstIP: flow.DstIP,
			SrcPort: flow.SrcPort, DstPort: flow.DstPort,
			Protocol:  flow.Protocol,
			Interface: flow.Interface,
			FirstSeen: flow.Timestamp,
			LastSeen:  flow.Timestamp,
		}
		s.pending[key] = totals
	}
	totals.PacketCount++
	totals.Bytes += int64(flow.Bytes)
	if flow.Timestamp.Before(totals.FirstSeen) {
		totals.FirstSeen = flow.Timestamp
	}
	if flow.Timestamp.After(totals.LastSeen) {
		totals.LastSeen = flow.Timestamp
	}

	var overflow []FlowTotals
	if len(s.pending) >= maxPendingPerShard {
		overflow = drainLocked(s)
	}
	s.mu.Unlock()

	if overflow != nil {
		a.store.EnqueueFlows(overflow)
	}
}

// HandleIdentity forwards identity observations unchanged.
func (a *Aggregator) HandleIdentity(obs model.Observation) {
	a.store.EnqueueIdentity(obs)
}

// HandleBinding forwards name bindings unchanged.
func (a *Aggregator) HandleBinding(binding model.NameBinding) {
	a.store.EnqueueBinding(binding)
}

// HandleMDNS forwards mDNS entries unchanged.
func (a *Aggregator) HandleMDNS(entry model.MDNSEntry) {
	a.store.EnqueueMDNS(entry)
}

// HandleService forwards service announcements unchanged.
func (a *Aggregator) HandleService(service model.ServiceAnnouncement) {
	a.store.EnqueueService(service)
}

// Flush pushes every pending total downstream.
func (a *Aggregator) Flush() {
	for _, s := range a.shards {
		s.mu.Lock()
		batch := drainLocked(s)
		s.mu.Unlock()
		if batch != nil {
			a.store.EnqueueFlows(batch)
		}
	}
}

func drainLocked(s *shard) []FlowTotals {
	if len(s.pending) == 0 {
		return nil
	}
	batch := make([]FlowTotals, 0, len(s.pending))
	for _, totals := range s.pending {
		batch = append(batch, *totals)
	}
	s.pending = make(map[string]*FlowTotals)
	return batch
}

func flowKey(flow model.FlowObservation) string {
	return flow.SrcIP + "|" + flow.DstIP + "|" + flow.Protocol + "|" +
		strconv.Itoa(flow.SrcPort) + "|" + strconv.Itoa(flow.DstPort)
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
