package session

import (
	"context"
	"sync"
	"time"

	"firestige.xyz/auris/internal/codec"
	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/flow"
	"firestige.xyz/auris/internal/log"
	"firestige.xyz/auris/internal/metrics"
)

// Table maps stream keys to sessions. Dispatch is called for every admitted
// audio unit from the single capture goroutine; the read path is lock-shared
// so the common case (existing session) never contends with the sweep.
type Table struct {
	mu       sync.RWMutex
	sessions map[core.StreamKey]*Session
	// rejected remembers keys whose codec could not be resolved, so one
	// unsupported stream does not retry decoder selection per packet.
	rejected map[core.StreamKey]struct{}

	jcfg config.JitterConfig
	scfg config.SessionConfig

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	logger log.Logger
}

// NewTable creates a session table. Start must be called before Dispatch.
func NewTable(jcfg config.JitterConfig, scfg config.SessionConfig) *Table {
	return &Table{
		sessions: make(map[core.StreamKey]*Session),
		rejected: make(map[core.StreamKey]struct{}),
		jcfg:     jcfg,
		scfg:     scfg,
		done:     make(chan struct{}),
		logger:   log.GetLogger(),
	}
}

// Start launches the idle sweep goroutine.
func (t *Table) Start(ctx context.Context) {
	t.ctx, t.cancel = context.WithCancel(ctx)
	go t.sweep()
}

// Dispatch routes one admitted unit to its session, creating the session on
// first sight. mediaFlow carries signaling context when signed is true.
func (t *Table) Dispatch(key core.StreamKey, u core.PayloadUnit, mediaFlow flow.MediaFlow, signed bool) {
	t.mu.RLock()
	s, ok := t.sessions[key]
	t.mu.RUnlock()
	if ok {
		s.Push(u)
		return
	}

	t.mu.Lock()
	// Re-check under the write lock: a concurrent Dispatch may have created
	// the session between the two lock acquisitions.
	if s, ok = t.sessions[key]; ok {
		t.mu.Unlock()
		s.Push(u)
		return
	}
	if _, bad := t.rejected[key]; bad {
		t.mu.Unlock()
		metrics.FramesDroppedTotal.WithLabelValues("codec").Inc()
		return
	}

	codecName := ""
	if signed {
		codecName = mediaFlow.Codec
	}
	dec, err := codec.Select(u.PayloadType, codecName, t.jcfg.FrameDuration)
	if err != nil {
		t.rejected[key] = struct{}{}
		t.mu.Unlock()
		metrics.FramesDroppedTotal.WithLabelValues("codec").Inc()
		t.logger.Warnf("no decoder for stream %s: %v", key, err)
		return
	}

	s, err = newSession(key, dec, t.jcfg, t.scfg.QueueDepth)
	if err != nil {
		t.mu.Unlock()
		t.logger.Errorf("failed to create session %s: %v", key, err)
		return
	}
	t.sessions[key] = s
	t.mu.Unlock()

	s.start(t.ctx)
	metrics.SessionsActive.Inc()
	t.logger.Infof("new session %s codec=%s", key, dec.Name())

	s.Push(u)
}

// Sessions returns a snapshot of the live sessions for the playback mixer.
func (t *Table) Sessions() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Stop tears down the sweep and every live session.
func (t *Table) Stop() {
	t.cancel()
	<-t.done

	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[core.StreamKey]*Session)
	t.mu.Unlock()

	for key, s := range sessions {
		s.stop()
		metrics.SessionsActive.Dec()
		t.logStats(key, s)
	}
}

func (t *Table) sweep() {
	defer close(t.done)

	ticker := time.NewTicker(t.scfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case now := <-ticker.C:
			t.evictIdle(now)
		}
	}
}

func (t *Table) evictIdle(now time.Time) {
	t.mu.Lock()
	var idle []*Session
	for key, s := range t.sessions {
		if s.Idle(t.scfg.IdleTimeout, now) {
			idle = append(idle, s)
			delete(t.sessions, key)
		}
	}
	// The rejected set follows the same lifecycle: a stream that renegotiates
	// its codec deserves a fresh attempt after the idle window.
	if len(t.rejected) > 0 {
		t.rejected = make(map[core.StreamKey]struct{})
	}
	t.mu.Unlock()

	for _, s := range idle {
		s.stop()
		metrics.SessionsActive.Dec()
		metrics.SessionsEvictedTotal.Inc()
		t.logStats(s.Key, s)
	}
}

func (t *Table) logStats(key core.StreamKey, s *Session) {
	st := s.Stats()
	t.logger.Infof("session %s closed: received=%d emitted=%d late=%d dup=%d gaps=%d restarts=%d",
		key, st.Received, st.Emitted, st.LateDrops, st.DupDrops, st.GapFills, st.Restarts)
}
