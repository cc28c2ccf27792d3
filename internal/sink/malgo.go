package sink

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"

	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/log"
)

// MalgoBackend drives real audio hardware through the miniaudio bindings.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initialises the audio context.
func NewMalgoBackend() (*MalgoBackend, error) {
	logger := log.GetLogger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugf("miniaudio: %s", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: audio context init: %v", core.ErrNoDevice, err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

// Playbacks enumerates attached playback devices.
func (b *MalgoBackend) Playbacks() ([]DeviceInfo, error) {
	infos, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{
			ID:   info.ID.String(),
			Name: info.Name(),
		})
	}
	return out, nil
}

// Open starts playback on the device whose name contains the given
// substring; an empty name selects the system default.
func (b *MalgoBackend) Open(device string, sampleRate, channels int, onData func(out []int16)) (PlaybackHandle, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	if device != "" {
		infos, err := b.ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, fmt.Errorf("device enumeration failed: %w", err)
		}
		found := false
		for _, info := range infos {
			if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(device)) {
				id := info.ID
				cfg.Playback.DeviceID = id.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: no playback device matching %q", core.ErrNoDevice, device)
		}
	}

	var scratch []int16
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, framecount uint32) {
			samples := int(framecount) * channels
			if cap(scratch) < samples {
				scratch = make([]int16, samples)
			}
			scratch = scratch[:samples]
			onData(scratch)
			for i, v := range scratch {
				binary.LittleEndian.PutUint16(pOutput[i*2:], uint16(v))
			}
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: device init: %v", core.ErrNoDevice, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("%w: device start: %v", core.ErrNoDevice, err)
	}

	return &malgoHandle{dev: dev}, nil
}

// Close releases the audio context.
func (b *MalgoBackend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return err
	}
	b.ctx.Free()
	return nil
}

type malgoHandle struct {
	dev *malgo.Device
}

func (h *malgoHandle) Close() error {
	h.dev.Uninit()
	return nil
}
