// Package jitter implements the per-session reorder buffer and adaptive
// playout delay.
//
// Payload units arrive out of order, duplicated, and with gaps; the buffer
// re-sequences them behind a bounded window and emits a steady in-order
// stream. A missing unit stalls emission for at most MaxGapWait before the
// gap is skipped with explicit silence markers, so one lost packet can never
// impose unbounded latency. The playout depth adapts to the measured
// inter-arrival jitter: it grows as soon as the network degrades and shrinks
// slowly while it is stable.
package jitter

import (
	"fmt"
	"time"

	"firestige.xyz/auris/internal/core"
)

// Config tunes one buffer instance.
type Config struct {
	// Window is the reorder window in units; rounded up to a power of two.
	// Must stay below half the 16-bit sequence space so signed distance
	// comparison stays unambiguous.
	Window int
	// MinDepth and MaxDepth bound the adaptive playout depth, in frames.
	MinDepth int
	MaxDepth int
	// MaxGapWait caps how long emission stalls on a single missing unit.
	MaxGapWait time.Duration
	// ShrinkInterval is the minimum period between single-frame depth
	// reductions while the network is stable.
	ShrinkInterval time.Duration
	// FrameDuration is the nominal duration of one unit.
	FrameDuration time.Duration
	// ClockRate is the sender media clock in Hz, for jitter estimation.
	ClockRate int
}

// Emission is one in-order output of the buffer: either a payload unit or a
// silence-fill marker standing in for a unit that was lost or too late.
type Emission struct {
	Seq  uint16
	Unit core.PayloadUnit // zero value when Gap
	Gap  bool
}

// Stats are cumulative buffer counters.
type Stats struct {
	Received  uint64
	Emitted   uint64
	LateDrops uint64
	DupDrops  uint64
	GapFills  uint64
	Restarts  uint64
}

type slot struct {
	unit core.PayloadUnit
	seq  uint16
	set  bool
}

// Buffer is a bounded reorder window indexed by sequence number. Not safe
// for concurrent use; the owning session serialises Push and Pop.
type Buffer struct {
	cfg  Config
	ring []slot
	mask uint16

	next   uint16 // next sequence number to emit
	primed bool
	count  int // units buffered while priming

	depth      int // current playout depth in frames
	lastShrink time.Time

	gapSince time.Time // when emission first blocked on a missing unit

	est   *estimator
	stats Stats
}

// New creates a buffer. The window is rounded up to a power of two.
func New(cfg Config) (*Buffer, error) {
	if cfg.Window < 4 || cfg.Window > 16384 {
		return nil, fmt.Errorf("jitter: window %d out of range 4-16384", cfg.Window)
	}
	window := 1
	for window < cfg.Window {
		window <<= 1
	}
	if cfg.MinDepth < 1 {
		cfg.MinDepth = 1
	}
	if cfg.MaxDepth < cfg.MinDepth {
		cfg.MaxDepth = cfg.MinDepth
	}
	if cfg.MaxDepth > window/2 {
		cfg.MaxDepth = window / 2
	}
	if cfg.ClockRate <= 0 {
		cfg.ClockRate = 8000
	}

	return &Buffer{
		cfg:   cfg,
		ring:  make([]slot, window),
		mask:  uint16(window - 1),
		depth: cfg.MinDepth,
		est:   newEstimator(cfg.ClockRate),
	}, nil
}

// Push inserts one received unit.
func (b *Buffer) Push(u core.PayloadUnit) {
	b.stats.Received++
	b.est.Observe(u.ArrivedAt, u.Timestamp, u.Marker)
	b.adaptDepth(u.ArrivedAt)

	if !b.primed {
		if b.count == 0 {
			b.next = u.Seq
		} else if dist := int16(u.Seq - b.next); dist < 0 {
			// An earlier unit arrived during priming; start there instead.
			b.next = u.Seq
		}
		idx := u.Seq & b.mask
		if b.ring[idx].set && b.ring[idx].seq == u.Seq {
			// A duplicate must not count toward the priming depth.
			b.stats.DupDrops++
			return
		}
		b.insert(u)
		b.count++
		if b.count >= b.depth {
			b.primed = true
		}
		return
	}

	dist := int16(u.Seq - b.next)
	if dist < 0 {
		// Already emitted past this sequence number.
		b.stats.LateDrops++
		return
	}
	if int(dist) >= len(b.ring) {
		// Far outside the window: the sender restarted or the stream
		// jumped. Resynchronise on the newest unit.
		b.restart(u)
		return
	}

	idx := u.Seq & b.mask
	if b.ring[idx].set && b.ring[idx].seq == u.Seq {
		b.stats.DupDrops++
		return
	}
	b.insert(u)
}

// Pop emits everything ready at the given instant, in sequence order.
// Called once per frame tick by the session loop. A missing unit yields
// nothing until MaxGapWait has elapsed, then the gap is emitted as silence
// markers and the cursor advances past it.
func (b *Buffer) Pop(now time.Time) []Emission {
	if !b.primed {
		return nil
	}

	idx := b.next & b.mask
	if b.ring[idx].set && b.ring[idx].seq == b.next {
		out := []Emission{b.take(idx)}
		b.gapSince = time.Time{}
		return out
	}

	if !b.hasNewer() {
		// The ring holds nothing beyond the cursor: the stream is idle, not
		// gapped. Skipping here would fabricate silence for sequence numbers
		// that were never lost.
		b.gapSince = time.Time{}
		return nil
	}

	if b.gapSince.IsZero() {
		b.gapSince = now
		return nil
	}
	if now.Sub(b.gapSince) < b.cfg.MaxGapWait {
		return nil
	}

	// Gap wait exhausted: skip forward to the next buffered unit, emitting
	// one silence marker per missing sequence number.
	var out []Emission
	for i := 0; i < len(b.ring); i++ {
		idx = b.next & b.mask
		if b.ring[idx].set && b.ring[idx].seq == b.next {
			out = append(out, b.take(idx))
			break
		}
		out = append(out, Emission{Seq: b.next, Gap: true})
		b.stats.GapFills++
		b.next++
	}
	b.gapSince = time.Time{}
	return out
}

// Depth returns the current playout depth in frames.
func (b *Buffer) Depth() int { return b.depth }

// Jitter returns the current smoothed inter-arrival jitter estimate.
func (b *Buffer) Jitter() time.Duration { return b.est.Jitter() }

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() Stats { return b.stats }

// hasNewer reports whether any buffered unit lies at or beyond the emission
// cursor, i.e. whether a gap skip could reach something.
func (b *Buffer) hasNewer() bool {
	for i := range b.ring {
		if b.ring[i].set && int16(b.ring[i].seq-b.next) >= 0 {
			return true
		}
	}
	return false
}

func (b *Buffer) insert(u core.PayloadUnit) {
	idx := u.Seq & b.mask
	b.ring[idx] = slot{unit: u, seq: u.Seq, set: true}
}

func (b *Buffer) take(idx uint16) Emission {
	e := Emission{Seq: b.next, Unit: b.ring[idx].unit}
	b.ring[idx] = slot{}
	b.next++
	b.stats.Emitted++
	return e
}

func (b *Buffer) restart(u core.PayloadUnit) {
	b.stats.Restarts++
	for i := range b.ring {
		b.ring[i] = slot{}
	}
	b.next = u.Seq
	b.primed = false
	b.count = 1
	b.gapSince = time.Time{}
	b.insert(u)
}

// adaptDepth steers the playout depth toward a multiple of the jitter
// estimate. Growth applies immediately; shrinking is rate-limited to one
// frame per ShrinkInterval to avoid oscillation.
func (b *Buffer) adaptDepth(now time.Time) {
	target := int(4*b.est.Jitter()/b.cfg.FrameDuration) + b.cfg.MinDepth
	if target < b.cfg.MinDepth {
		target = b.cfg.MinDepth
	}
	if target > b.cfg.MaxDepth {
		target = b.cfg.MaxDepth
	}

	switch {
	case target > b.depth:
		b.depth = target
	case target < b.depth:
		if b.lastShrink.IsZero() || now.Sub(b.lastShrink) >= b.cfg.ShrinkInterval {
			b.depth--
			b.lastShrink = now
		}
	}
}
