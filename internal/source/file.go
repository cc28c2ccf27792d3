package source

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/auris/internal/config"
)

// fileSource replays a recorded pcap file.
type fileSource struct {
	path   string
	handle *pcap.Handle
	bpf    string
}

func newFileSource(cfg config.CaptureConfig) (Source, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	return &fileSource{
		path: cfg.FilePath,
		bpf:  cfg.BPF,
	}, nil
}

func (fs *fileSource) Start(ctx context.Context) error {
	handle, err := pcap.OpenOffline(fs.path)
	if err != nil {
		return fmt.Errorf("failed to open pcap file %s: %w", fs.path, err)
	}
	if fs.bpf != "" {
		if err := handle.SetBPFFilter(fs.bpf); err != nil {
			handle.Close()
			return fmt.Errorf("failed to set BPF filter %q: %w", fs.bpf, err)
		}
	}
	fs.handle = handle
	return nil
}

func (fs *fileSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if fs.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("file source not started")
	}

	data, ci, err := fs.handle.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}

	return data, ci, nil
}

func (fs *fileSource) LinkType() layers.LinkType {
	if fs.handle == nil {
		return layers.LinkTypeEthernet // default
	}
	return fs.handle.LinkType()
}

func (fs *fileSource) Stop() error {
	if fs.handle != nil {
		fs.handle.Close()
		fs.handle = nil
	}
	return nil
}
