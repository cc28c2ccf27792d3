// Package source implements packet sources for live and offline capture.
package source

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/auris/internal/config"
)

// Source yields a lazy sequence of raw frames. Live sources are single-pass;
// only file-backed sources can be restarted by constructing a new Source.
type Source interface {
	Start(ctx context.Context) error
	// ReadPacket returns the next frame. io.EOF signals normal exhaustion
	// of a file source; any other error is fatal to the pipeline.
	ReadPacket() (data []byte, info gopacket.CaptureInfo, err error)
	LinkType() layers.LinkType
	Stop() error
}

// New constructs the source selected by the capture configuration.
func New(cfg config.CaptureConfig) (Source, error) {
	switch cfg.Type {
	case "file":
		return newFileSource(cfg)
	case "live":
		return newLiveSource(cfg)
	case "afpacket":
		return newAfpacketSource(cfg)
	default:
		return nil, fmt.Errorf("unsupported capture type: %s", cfg.Type)
	}
}
