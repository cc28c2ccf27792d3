package sink

import (
	"context"
	"time"

	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/log"
)

// Watcher polls the backend's device enumeration and converts the diff
// between consecutive snapshots into hot-plug events. Polling is the only
// portable mechanism across audio backends; the interval bounds detection
// latency. Delivery is at-least-once, consumers treat duplicates as
// idempotent.
type Watcher struct {
	be       Backend
	interval time.Duration
	events   chan core.DeviceEvent
	known    map[string]string // id -> name
	logger   log.Logger
}

// NewWatcher creates a device watcher over the given backend.
func NewWatcher(be Backend, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{
		be:       be,
		interval: interval,
		events:   make(chan core.DeviceEvent, 16),
		known:    make(map[string]string),
		logger:   log.GetLogger(),
	}
}

// Events is the hot-plug notification stream, closed when Run returns.
func (w *Watcher) Events() <-chan core.DeviceEvent { return w.events }

// Run polls until the context is cancelled. The first enumeration seeds the
// known set without emitting events; devices present at startup are not
// arrivals.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	if infos, err := w.be.Playbacks(); err == nil {
		for _, info := range infos {
			w.known[info.ID] = info.Name
		}
	} else {
		w.logger.Warnf("initial device enumeration failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	infos, err := w.be.Playbacks()
	if err != nil {
		// Transient enumeration failures happen while the audio server
		// restarts; keep the known set and retry next tick.
		w.logger.Debugf("device enumeration failed: %v", err)
		return
	}

	current := make(map[string]string, len(infos))
	for _, info := range infos {
		current[info.ID] = info.Name
		if _, ok := w.known[info.ID]; !ok {
			w.emit(ctx, core.DeviceEvent{Kind: core.DeviceAdded, ID: info.ID, Name: info.Name})
		}
	}
	for id, name := range w.known {
		if _, ok := current[id]; !ok {
			w.emit(ctx, core.DeviceEvent{Kind: core.DeviceRemoved, ID: id, Name: name})
		}
	}
	w.known = current
}

func (w *Watcher) emit(ctx context.Context, ev core.DeviceEvent) {
	w.logger.Infof("audio device %s: %s", ev.Kind, ev.Name)
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
