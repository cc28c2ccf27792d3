package source

import (
	"context"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/bpf"

	"firestige.xyz/auris/internal/config"
)

// afpacketOptions carries AF_PACKET ring tuning decoded from capture.options.
type afpacketOptions struct {
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
}

// afpacketSource captures via the Linux AF_PACKET TPacket v3 ring.
type afpacketSource struct {
	handle *afpacket.TPacket

	device    string
	frameSize int
	blockSize int
	numBlocks int
	timeoutMs int
	fanoutID  uint16
	bpfFilter string
}

func newAfpacketSource(cfg config.CaptureConfig) (Source, error) {
	opts := afpacketOptions{BufferSizeMB: 16, TimeoutMs: 100}
	if cfg.Options != nil {
		if err := mapstructure.Decode(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid afpacket options: %w", err)
		}
	}

	pageSize := os.Getpagesize()
	frameSize, blockSize, numBlocks, err := recomputeSize(opts.BufferSizeMB, cfg.SnapLen, pageSize)
	if err != nil {
		return nil, err
	}
	return &afpacketSource{
		device:    cfg.Device,
		frameSize: frameSize,
		blockSize: blockSize,
		numBlocks: numBlocks,
		timeoutMs: opts.TimeoutMs,
		fanoutID:  opts.FanoutID,
		bpfFilter: cfg.BPF,
	}, nil
}

func (s *afpacketSource) Start(ctx context.Context) error {
	if s.device == "" {
		dev, err := defaultDevice()
		if err != nil {
			return err
		}
		s.device = dev
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.OptPollTimeout(s.timeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return err
	}

	if s.fanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, s.fanoutID); err != nil {
			tp.Close()
			return err
		}
	}

	if s.bpfFilter != "" {
		pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, s.frameSize, s.bpfFilter)
		if err != nil {
			tp.Close()
			return err
		}
		rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
		for i, inst := range pcapBPF {
			rawBPF[i] = bpf.RawInstruction{
				Op: inst.Code,
				Jt: inst.Jt,
				Jf: inst.Jf,
				K:  inst.K,
			}
		}
		if err := tp.SetBPF(rawBPF); err != nil {
			tp.Close()
			return err
		}
	}

	s.handle = tp
	return nil
}

func (s *afpacketSource) ReadPacket() (data []byte, info gopacket.CaptureInfo, err error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("afpacket source not started")
	}
	return s.handle.ReadPacketData()
}

func (s *afpacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *afpacketSource) Stop() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
