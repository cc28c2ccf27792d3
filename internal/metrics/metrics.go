// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSeenTotal counts raw frames delivered by the packet source.
	FramesSeenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auris_frames_seen_total",
			Help: "Total number of raw frames read from the packet source",
		},
	)

	// FramesDroppedTotal counts frames discarded by the classifier, by reason.
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auris_frames_dropped_total",
			Help: "Total number of frames discarded during classification",
		},
		[]string{"reason"},
	)

	// SessionsActive tracks the number of live reconstruction sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auris_sessions_active",
			Help: "Number of currently active stream sessions",
		},
	)

	// SessionsEvictedTotal counts sessions torn down by the idle sweep.
	SessionsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auris_sessions_evicted_total",
			Help: "Total number of sessions evicted after idle timeout",
		},
	)

	// SessionsDegraded tracks sessions currently flagged as degraded.
	SessionsDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auris_sessions_degraded",
			Help: "Number of sessions flagged degraded by consecutive decode failures",
		},
	)

	// JitterLateDropsTotal counts units that arrived after their slot was emitted.
	JitterLateDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auris_jitter_late_drops_total",
			Help: "Total number of payload units dropped as late or duplicate",
		},
	)

	// SilenceFillsTotal counts silence blocks emitted for lost or bad units.
	SilenceFillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auris_silence_fills_total",
			Help: "Total number of silence-fill blocks emitted",
		},
	)

	// DecodeFailuresTotal counts per-unit decoder errors.
	DecodeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auris_decode_failures_total",
			Help: "Total number of payload decode failures",
		},
		[]string{"codec"},
	)

	// FlowRegistrySize tracks flows registered by the signaling watcher.
	FlowRegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auris_flow_registry_size",
			Help: "Current number of media flows registered from signaling",
		},
	)

	// DeviceEventsTotal counts hot-plug notifications by kind.
	DeviceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auris_device_events_total",
			Help: "Total number of audio device hot-plug events",
		},
		[]string{"kind"},
	)

	// OutputState tracks the sink state (0=playing, 1=buffering, 2=unavailable).
	OutputState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auris_output_state",
			Help: "Current output sink state (0=playing, 1=buffering, 2=unavailable)",
		},
	)

	// OutputBlocksDroppedTotal counts blocks discarded while the device was gone.
	OutputBlocksDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auris_output_blocks_dropped_total",
			Help: "Total number of decoded blocks dropped due to output unavailability",
		},
	)
)

// Output sink state gauge values.
const (
	OutputStatePlaying     = 0
	OutputStateBuffering   = 1
	OutputStateUnavailable = 2
)
