package source

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/auris/internal/config"
)

// liveOptions carries pcap-specific tuning decoded from capture.options.
type liveOptions struct {
	Promiscuous bool `mapstructure:"promiscuous"`
	TimeoutMs   int  `mapstructure:"timeout_ms"`
}

// liveSource captures from a network interface via libpcap.
type liveSource struct {
	device  string
	snapLen int
	bpf     string
	opts    liveOptions

	handle *pcap.Handle
}

func newLiveSource(cfg config.CaptureConfig) (Source, error) {
	opts := liveOptions{Promiscuous: true, TimeoutMs: 100}
	if cfg.Options != nil {
		if err := mapstructure.Decode(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid live capture options: %w", err)
		}
	}

	return &liveSource{
		device:  cfg.Device,
		snapLen: cfg.SnapLen,
		bpf:     cfg.BPF,
		opts:    opts,
	}, nil
}

func (ls *liveSource) Start(ctx context.Context) error {
	if ls.device == "" {
		dev, err := defaultDevice()
		if err != nil {
			return err
		}
		ls.device = dev
	}

	timeout := time.Duration(ls.opts.TimeoutMs) * time.Millisecond
	handle, err := pcap.OpenLive(ls.device, int32(ls.snapLen), ls.opts.Promiscuous, timeout)
	if err != nil {
		return fmt.Errorf("failed to open device %s: %w", ls.device, err)
	}
	if ls.bpf != "" {
		if err := handle.SetBPFFilter(ls.bpf); err != nil {
			handle.Close()
			return fmt.Errorf("failed to set BPF filter %q: %w", ls.bpf, err)
		}
	}
	ls.handle = handle
	return nil
}

func (ls *liveSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if ls.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("live source not started")
	}
	return ls.handle.ReadPacketData()
}

func (ls *liveSource) LinkType() layers.LinkType {
	if ls.handle == nil {
		return layers.LinkTypeEthernet
	}
	return ls.handle.LinkType()
}

func (ls *liveSource) Stop() error {
	if ls.handle != nil {
		ls.handle.Close()
		ls.handle = nil
	}
	return nil
}
