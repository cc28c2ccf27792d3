// Package sink renders decoded PCM to a local audio output device.
//
// The sink owns a sample ring sized to the configured buffer window. The
// device pulls from the ring at its own pace through the data callback;
// Write pushes into it and blocks when the ring is full, which is the
// backpressure that paces the whole playback path. Device loss flips the
// sink to buffering: the ring keeps absorbing audio with drop-oldest
// overflow until the device returns or the reconnect timeout expires.
package sink

import (
	"sync"
	"time"

	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/log"
	"firestige.xyz/auris/internal/metrics"
)

// State is the sink lifecycle state.
type State int

const (
	StatePlaying State = iota
	StateBuffering
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateBuffering:
		return "buffering"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one enumerated playback device.
type DeviceInfo struct {
	ID   string
	Name string
}

// PlaybackHandle is an open playback device.
type PlaybackHandle interface {
	Close() error
}

// Backend abstracts the audio system so tests can substitute a fake device.
type Backend interface {
	// Open starts playback on the named device (substring match, empty for
	// default). onData must fill out with interleaved S16 samples; it runs
	// on the audio thread and must not block.
	Open(device string, sampleRate, channels int, onData func(out []int16)) (PlaybackHandle, error)
	// Playbacks enumerates the currently attached playback devices.
	Playbacks() ([]DeviceInfo, error)
	Close() error
}

// Sink writes decoded audio blocks to an output device.
type Sink struct {
	cfg config.OutputConfig
	be  Backend

	mu   sync.Mutex
	cond *sync.Cond

	ring []int16
	head int
	size int

	state  State
	lostAt time.Time
	handle PlaybackHandle
	closed bool

	logger log.Logger
}

// New creates a sink over the given backend.
func New(cfg config.OutputConfig, be Backend) *Sink {
	ringLen := int(int64(cfg.SampleRate) * int64(cfg.Channels) * int64(cfg.BufferWindow) / int64(time.Second))
	if ringLen < cfg.SampleRate/100 {
		ringLen = cfg.SampleRate / 100
	}
	s := &Sink{
		cfg:    cfg,
		be:     be,
		ring:   make([]int16, ringLen),
		state:  StateBuffering,
		logger: log.GetLogger(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start opens the output device. Failure is not fatal: the sink starts in
// buffering state and retries when the watcher reports a device arrival.
func (s *Sink) Start() error {
	if err := s.open(); err != nil {
		s.logger.Warnf("output device unavailable at startup, buffering: %v", err)
		s.mu.Lock()
		s.setStateLocked(StateBuffering)
		s.lostAt = time.Now()
		s.mu.Unlock()
	}
	return nil
}

// Write pushes one decoded block into the playback ring. The block must
// already be at the sink's sample rate and channel count. While the device
// is playing, Write blocks when the ring is full; while buffering, the
// oldest audio gives way; once unavailable, the block is dropped and
// counted, and ErrOutputUnavailable is returned.
func (s *Sink) Write(block core.DecodedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.ErrOutputUnavailable
	}

	if s.state != StatePlaying && !s.lostAt.IsZero() &&
		time.Since(s.lostAt) > s.cfg.ReconnectTimeout {
		s.setStateLocked(StateUnavailable)
	}
	if s.state == StateUnavailable {
		metrics.OutputBlocksDroppedTotal.Inc()
		return core.ErrOutputUnavailable
	}

	for _, sample := range block.PCM {
		if s.size == len(s.ring) {
			if s.state == StatePlaying {
				// Device drains the ring; wait for room.
				s.cond.Wait()
				if s.closed {
					return core.ErrOutputUnavailable
				}
				continue
			}
			// Buffering: overwrite the oldest sample.
			s.head = (s.head + 1) % len(s.ring)
			s.size--
		}
		s.ring[(s.head+s.size)%len(s.ring)] = sample
		s.size++
	}
	return nil
}

// State returns the current sink state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Buffered returns the amount of audio currently queued in the ring.
func (s *Sink) Buffered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := s.size / s.cfg.Channels
	return time.Duration(samples) * time.Second / time.Duration(s.cfg.SampleRate)
}

// HandleDeviceEvent reacts to one hot-plug notification from the watcher.
// Duplicate adds are idempotent; a removal of an unrelated device is ignored.
func (s *Sink) HandleDeviceEvent(ev core.DeviceEvent) {
	metrics.DeviceEventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case core.DeviceAdded:
		if s.State() == StatePlaying {
			return
		}
		s.logger.Infof("output device %q attached, reopening", ev.Name)
		if err := s.open(); err != nil {
			s.logger.Warnf("reopen after device arrival failed: %v", err)
		}
	case core.DeviceRemoved:
		s.mu.Lock()
		if s.state != StatePlaying {
			s.mu.Unlock()
			return
		}
		handle := s.handle
		s.handle = nil
		s.setStateLocked(StateBuffering)
		s.lostAt = time.Now()
		s.mu.Unlock()

		s.logger.Warnf("output device %q removed, buffering up to %s", ev.Name, s.cfg.ReconnectTimeout)
		if handle != nil {
			_ = handle.Close()
		}
	}
}

// Stop closes the device and releases writers.
func (s *Sink) Stop() error {
	s.mu.Lock()
	s.closed = true
	handle := s.handle
	s.handle = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
	return s.be.Close()
}

func (s *Sink) open() error {
	handle, err := s.be.Open(s.cfg.Device, s.cfg.SampleRate, s.cfg.Channels, s.onData)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return handle.Close()
	}
	s.handle = handle
	s.setStateLocked(StatePlaying)
	s.lostAt = time.Time{}
	s.mu.Unlock()

	s.logger.Info("output device opened, playing")
	return nil
}

// onData runs on the audio thread: fill the callback buffer from the ring,
// zero-padding on underrun.
func (s *Sink) onData(out []int16) {
	s.mu.Lock()
	n := len(out)
	if n > s.size {
		n = s.size
	}
	for i := 0; i < n; i++ {
		out[i] = s.ring[s.head]
		s.head = (s.head + 1) % len(s.ring)
	}
	s.size -= n
	s.cond.Broadcast()
	s.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

func (s *Sink) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	// A writer parked on a full ring decides by state; every transition must
	// wake it so device loss cannot leave it waiting on a callback that will
	// never run again.
	s.cond.Broadcast()
	switch state {
	case StatePlaying:
		metrics.OutputState.Set(metrics.OutputStatePlaying)
	case StateBuffering:
		metrics.OutputState.Set(metrics.OutputStateBuffering)
	case StateUnavailable:
		metrics.OutputState.Set(metrics.OutputStateUnavailable)
		s.logger.Errorf("output unavailable: no device within %s", s.cfg.ReconnectTimeout)
	}
}
