// Package core defines core data structures with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// RawFrame is one captured link-layer frame, zero-copy reference to the
// capture ring where the source allows it.
type RawFrame struct {
	Data       []byte    // Raw frame data
	Timestamp  time.Time // Capture timestamp (kernel timestamp preferred)
	CaptureLen uint32    // Actual captured length
	OrigLen    uint32    // Original frame length
}

// StreamKey uniquely identifies one audio stream reconstruction session.
// The SSRC disambiguates multiple streams multiplexed on one 5-tuple.
type StreamKey struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	SSRC    uint32
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d/0x%08X", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort, k.SSRC)
}

// PayloadUnit is one encoded audio unit extracted from an RTP datagram.
// Immutable once extracted.
type PayloadUnit struct {
	Seq         uint16 // RTP sequence number, wraps at 65535
	Timestamp   uint32 // Sender media clock timestamp
	PayloadType uint8
	Marker      bool // Start of talk spurt
	Payload     []byte
	ArrivedAt   time.Time // Local capture time, used for jitter estimation
}

// DecodedBlock is a fixed-duration block of linear PCM produced by a decoder
// and consumed exactly once by the output sink.
type DecodedBlock struct {
	PCM        []int16
	SampleRate int
	Duration   time.Duration
	PTS        time.Time // Presentation timestamp in the local clock domain
	Gap        bool      // True when this block is silence standing in for lost data
}

// Silence returns a silence-fill block of the given duration at the given rate.
func Silence(rate int, d time.Duration, pts time.Time) DecodedBlock {
	n := int(int64(rate) * int64(d) / int64(time.Second))
	return DecodedBlock{
		PCM:        make([]int16, n),
		SampleRate: rate,
		Duration:   d,
		PTS:        pts,
		Gap:        true,
	}
}

// DeviceEventKind discriminates device watcher notifications.
type DeviceEventKind int

const (
	DeviceAdded DeviceEventKind = iota
	DeviceRemoved
)

// DeviceEvent is one hot-plug notification for an audio output device.
// Delivery is at-least-once; duplicate adds must be treated as idempotent.
type DeviceEvent struct {
	Kind DeviceEventKind
	ID   string
	Name string
}

func (k DeviceEventKind) String() string {
	switch k {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	default:
		return "unknown"
	}
}
