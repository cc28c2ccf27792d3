// Package codec implements payload decoders for reconstructed audio units.
//
// One Decoder is selected per session at creation time, either from the RTP
// payload type (static assignments) or from the codec name the signaling
// watcher learned from SDP. Decode failures are per-unit and recoverable;
// callers substitute silence of equal duration.
package codec

import (
	"fmt"
	"strings"
	"time"

	"firestige.xyz/auris/internal/core"
)

// Decoder converts encoded payload units into linear PCM blocks.
type Decoder interface {
	Name() string
	// SampleRate is the output PCM rate of this decoder.
	SampleRate() int
	Decode(u core.PayloadUnit) (core.DecodedBlock, error)
	Close() error
}

// Select picks a decoder for a session. codecName is the SDP rtpmap name
// when signaling context exists, empty otherwise; frameDuration is the
// nominal unit duration used for silence substitution.
func Select(payloadType uint8, codecName string, frameDuration time.Duration) (Decoder, error) {
	switch payloadType {
	case 0:
		return newG711(muLaw), nil
	case 8:
		return newG711(aLaw), nil
	}

	switch strings.ToUpper(codecName) {
	case "PCMU":
		return newG711(muLaw), nil
	case "PCMA":
		return newG711(aLaw), nil
	case "OPUS":
		return newOpus(frameDuration), nil
	}

	return nil, fmt.Errorf("%w: payload type %d (%q)", core.ErrUnsupportedCodec, payloadType, codecName)
}
