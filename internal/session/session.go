// Package session owns per-stream reconstruction state: one Session per
// StreamKey, holding the jitter buffer, the selected decoder, and the emit
// loop that turns reordered payload units into a steady stream of decoded
// PCM blocks. The Table maps stream keys to sessions and evicts idle ones.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"firestige.xyz/auris/internal/codec"
	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/jitter"
	"firestige.xyz/auris/internal/log"
	"firestige.xyz/auris/internal/metrics"
)

// degradedThreshold is how many consecutive decode failures mark a session
// degraded. A degraded session keeps running on silence fill; it recovers as
// soon as one unit decodes.
const degradedThreshold = 3

// Session reconstructs one audio stream. Units enter through Push from the
// capture goroutine; decoded blocks leave through Out toward the playback
// mixer. The emit loop is the only goroutine touching the jitter buffer and
// the decoder.
type Session struct {
	Key core.StreamKey

	buf *jitter.Buffer
	dec codec.Decoder

	in  chan core.PayloadUnit
	out chan core.DecodedBlock

	frameDur time.Duration
	pts      time.Time

	lastActivity atomic.Int64 // unix nanos
	degraded     atomic.Bool
	consecFails  int

	prevStats jitter.Stats

	cancel context.CancelFunc
	done   chan struct{}

	logger log.Logger
}

func newSession(key core.StreamKey, dec codec.Decoder, jcfg config.JitterConfig, queueDepth int) (*Session, error) {
	buf, err := jitter.New(jitter.Config{
		Window:         jcfg.Window,
		MinDepth:       jcfg.MinDepth,
		MaxDepth:       jcfg.MaxDepth,
		MaxGapWait:     jcfg.MaxGapWait,
		ShrinkInterval: jcfg.ShrinkInterval,
		FrameDuration:  jcfg.FrameDuration,
		ClockRate:      dec.SampleRate(),
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		Key:      key,
		buf:      buf,
		dec:      dec,
		in:       make(chan core.PayloadUnit, queueDepth),
		out:      make(chan core.DecodedBlock, queueDepth),
		frameDur: jcfg.FrameDuration,
		done:     make(chan struct{}),
		logger:   log.GetLogger().WithField("stream", key.String()),
	}
	s.touch()
	return s, nil
}

func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

/// Push hands one unit to the session. Never blocks: when the session queue
// is full the unit is dropped and counted, so a stalled session cannot back
// up the capture path.
func (s *Session) Push(u core.PayloadUnit) {
	s.touch()
	select {
	case s.in <- u:
	default:
		metrics.FramesDroppedTotal.WithLabelValues("session_queue").Inc()
	}
}

// Out is the session's decoded block stream, closed when the session stops.
func (s *Session) Out() <-chan core.DecodedBlock { return s.out }

// Degraded reports whether the session is currently failing to decode.
func (s *Session) Degraded() bool { return s.degraded.Load() }

// Idle reports whether no unit has arrived within d.
func (s *Session) Idle(d time.Duration, now time.Time) bool {
	return now.Sub(time.Unix(0, s.lastActivity.Load())) > d
}

// Stats returns the jitter buffer counters.
func (s *Session) Stats() jitter.Stats { return s.buf.Stats() }

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) stop() {
	s.cancel()
	<-s.done
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	defer s.dec.Close()

	ticker := time.NewTicker(s.frameDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.in:
			s.buf.Push(u)
		case now := <-ticker.C:
			// Drain anything queued since the last tick before emitting,
			// so reordered units landing in a burst are all considered.
			for {
				select {
				case u := <-s.in:
					s.buf.Push(u)
					continue
				default:
				}
				break
			}
			for _, e := range s.buf.Pop(now) {
				s.emit(e, now)
			}
			s.syncStats()
		}
	}
}

func (s *Session) emit(e jitter.Emission, now time.Time) {
	if s.pts.IsZero() {
		s.pts = now
	}

	var block core.DecodedBlock
	if e.Gap {
		block = core.Silence(s.dec.SampleRate(), s.frameDur, s.pts)
	} else {
		decoded, err := s.dec.Decode(e.Unit)
		if err != nil {
			metrics.DecodeFailuresTotal.WithLabelValues(s.dec.Name()).Inc()
			metrics.SilenceFillsTotal.Inc()
			s.consecFails++
			if s.consecFails == degradedThreshold {
				s.degraded.Store(true)
				metrics.SessionsDegraded.Inc()
				s.logger.Warnf("session degraded after %d consecutive decode failures", s.consecFails)
			}
			block = core.Silence(s.dec.SampleRate(), s.frameDur, s.pts)
		} else {
			if s.degraded.CompareAndSwap(true, false) {
				metrics.SessionsDegraded.Dec()
				s.logger.Info("session recovered from degraded state")
			}
			s.consecFails = 0
			decoded.PTS = s.pts
			block = decoded
		}
	}
	s.pts = s.pts.Add(block.Duration)

	// Bounded output: when the mixer is behind, the oldest block gives way
	// so playback stays near live rather than drifting into the past.
	select {
	case s.out <- block:
	default:
		select {
		case <-s.out:
			metrics.OutputBlocksDroppedTotal.Inc()
		default:
		}
		select {
		case s.out <- block:
		default:
		}
	}
}

// syncStats forwards jitter buffer counter deltas to the metrics registry.
func (s *Session) syncStats() {
	cur := s.buf.Stats()
	if d := cur.LateDrops - s.prevStats.LateDrops; d > 0 {
		metrics.JitterLateDropsTotal.Add(float64(d))
	}
	if d := cur.GapFills - s.prevStats.GapFills; d > 0 {
		metrics.SilenceFillsTotal.Add(float64(d))
	}
	s.prevStats = cur
}
