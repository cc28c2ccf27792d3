// Package core defines sentinel errors.
package core

import "errors"

var (
	// Capture errors — fatal to the pipeline, capture cannot resume in-process.
	ErrCaptureFailed = errors.New("auris: capture failed")

	// Decode errors — absorbed per unit, converted to silence-fill.
	ErrDecodeFailed     = errors.New("auris: payload decode failed")
	ErrUnsupportedCodec = errors.New("auris: unsupported codec")

	// Session errors
	ErrSessionClosed = errors.New("auris: session closed")

	// Output errors — surfaced as a status condition, not a pipeline halt.
	ErrOutputUnavailable = errors.New("auris: output device unavailable")
	ErrNoDevice          = errors.New("auris: no playback device found")

	// Configuration errors
	ErrConfigInvalid = errors.New("auris: invalid configuration")
)
