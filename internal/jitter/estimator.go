package jitter

import (
	"time"
)

// estimator keeps the RFC 3550 §6.4.1 exponentially weighted inter-arrival
// jitter estimate: J += (|D| - J) / 16, where D compares the spacing of two
// packets at the receiver with their spacing in the sender's media clock.
type estimator struct {
	clockRate int

	havePrev    bool
	prevArrival time.Time
	prevTS      uint32

	jitter time.Duration
}

func newEstimator(clockRate int) *estimator {
	return &estimator{clockRate: clockRate}
}

// Observe feeds one arrival into the estimate. Talk-spurt starts (marker
// bit) are skipped: the sender clock legitimately jumps across silence.
func (e *estimator) Observe(arrival time.Time, ts uint32, marker bool) {
	if marker || !e.havePrev {
		e.havePrev = true
		e.prevArrival = arrival
		e.prevTS = ts
		return
	}

	arrivalDelta := arrival.Sub(e.prevArrival)
	// int32 conversion handles sender timestamp wraparound.
	tsDelta := time.Duration(int32(ts-e.prevTS)) * time.Second / time.Duration(e.clockRate)

	d := arrivalDelta - tsDelta
	if d < 0 {
		d = -d
	}
	e.jitter += (d - e.jitter) / 16

	e.prevArrival = arrival
	e.prevTS = ts
}

// Jitter returns the current smoothed estimate.
func (e *estimator) Jitter() time.Duration {
	return e.jitter
}
