package dissect

import (
	"runtime"
	"sync"

	"github.com/InfraSecConsult/netwatch-go/internal/capture"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// Sink receives the observations the pool produces. The aggregator pins each
// flow key to a shard internally, so per-connection ordering is preserved
// even though workers run concurrently.
type Sink interface {
	HandleFlow(model.FlowObservation)
	HandleIdentity(model.Observation)
	HandleBinding(model.NameBinding)
	HandleMDNS(model.MDNSEntry)
	HandleService(model.ServiceAnnouncement)
}

// Pool runs a fixed set of dissector workers over the capture channel.
type Pool struct {
	source  *capture.Source
	sink    Sink
	workers int
	wg      sync.WaitGroup
}

// NewPool sizes the worker set to CPU count - 1, minimum one.
func NewPool(source *capture.Source, sink Sink) *Pool {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return &Pool{source: source, sink: sink, workers: workers}
}

// Run starts the workers. They exit when the capture channel closes.
func (p *Pool) Run() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Wait blocks until all workers have drained the channel.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for frame := range p.source.Frames() {
		if p.source.Paused() {
			continue
		}
		p.dispatch(Dissect(frame))
	}
}

func (p *Pool) dispatch(res Result) {
	if res.Flow != nil {
		p.sink.HandleFlow(*res.Flow)
	}
	for _, identity := range res.Identities {
		p.sink.HandleIdentity(identity)
	}
	for _, binding := range res.Bindings {
		p.sink.HandleBinding(binding)
	}
	if res.MDNS != nil {
		p.sink.HandleMDNS(*res.MDNS)
	}
	for _, service := range res.Services {
		p.sink.HandleService(service)
	}
}
