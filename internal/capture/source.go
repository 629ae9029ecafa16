// Package capture opens live captures on the selected interfaces and feeds
// raw frames into a bounded channel. Overflow drops the oldest frame and
// increments a counter; capture itself never blocks.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog/log"
)

// ErrCaptureUnavailable marks an interface that cannot be opened for capture:
// missing driver, insufficient privileges, or no usable interface at all.
var ErrCaptureUnavailable = errors.New("capture unavailable")

const snapshotLen = 65536

// Frame is one captured link-layer frame with its arrival metadata.
type Frame struct {
	Data      []byte
	Interface string
	Timestamp time.Time
}

// Source captures frames from one or more interfaces into a shared bounded
// channel.
type Source struct {
	frames chan Frame

	paused   atomic.Bool
	captured atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	wg      sync.WaitGroup
	handles []*pcap.Handle
	closed  bool
}

// NewSource creates a source with the given channel capacity.
func NewSource(bufferSize int) *Source {
	return &Source{frames: make(chan Frame, bufferSize)}
}

// Frames returns the channel the dissector pool consumes.
func (s *Source) Frames() <-chan Frame {
	return s.frames
}

// Paused reports whether the UI has paused capture.
func (s *Source) Paused() bool {
	return s.paused.Load()
}

// SetPaused flips the capture-paused state.
func (s *Source) SetPaused(paused bool) {
	s.paused.Store(paused)
}

// CapturedCount returns the number of frames published so far.
func (s *Source) CapturedCount() uint64 {
	return s.captured.Load()
}

// DroppedCount returns the number of frames discarded due to backpressure.
func (s *Source) DroppedCount() uint64 {
	return s.dropped.Load()
}

// Start opens a live capture on each interface and spawns one reader
// goroutine per handle. Interfaces that cannot be opened are skipped; only
// when every interface fails is ErrCaptureUnavailable returned.
func (s *Source) Start(interfaces []string) error {
	opened := 0
	for _, name := range interfaces {
		handle, err := pcap.OpenLive(name, snapshotLen, true, pcap.BlockForever)
		if err != nil {
			log.Error().Err(err).Str("interface", name).Msg("cannot open interface for capture")
			continue
		}
		s.mu.Lock()
		s.handles = append(s.handles, handle)
		s.mu.Unlock()
		opened++

		log.Info().Str("interface", name).Msg("capture started")
		s.wg.Add(1)
		go s.readLoop(name, handle)
	}

	if opened == 0 {
		return fmt.Errorf("%w: could not open any of %v", ErrCaptureUnavailable, interfaces)
	}
	return nil
}

func (s *Source) readLoop(name string, handle *pcap.Handle) {
	defer s.wg.Done()
	for {
		data, ci, err := handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			log.Debug().Err(err).Str("interface", name).Msg("capture read ended")
			return
		}
		s.captured.Add(1)
		s.publish(Frame{Data: data, Interface: name, Timestamp: ci.Timestamp})
	}
}

// publish enqueues a frame, evicting the oldest when the channel is full.
func (s *Source) publish(frame Frame) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

// Close stops all captures, waits for the readers to finish, and closes the
// frame channel so downstream consumers drain and exit.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := s.handles
	s.mu.Unlock()

	for _, handle := range handles {
		handle.Close()
	}
	s.wg.Wait()
	close(s.frames)
}
