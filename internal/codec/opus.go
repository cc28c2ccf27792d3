package codec

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pion/opus"

	"firestige.xyz/auris/internal/core"
)

// Opus output is always produced at fullband rate.
const opusRate = 48000

type opusDecoder struct {
	dec      opus.Decoder
	frameDur time.Duration
	out      []byte // reused S16LE scratch buffer
}

func newOpus(frameDuration time.Duration) Decoder {
	if frameDuration <= 0 {
		frameDuration = 20 * time.Millisecond
	}
	samples := int(frameDuration * opusRate / time.Second)
	return &opusDecoder{
		dec:      opus.NewDecoder(),
		frameDur: frameDuration,
		// Twice the frame size leaves room for a stereo packet.
		out: make([]byte, samples*2*2),
	}
}

func (d *opusDecoder) Name() string    { return "opus" }
func (d *opusDecoder) SampleRate() int { return opusRate }
func (d *opusDecoder) Close() error    { return nil }

func (d *opusDecoder) Decode(u core.PayloadUnit) (core.DecodedBlock, error) {
	if len(u.Payload) == 0 {
		return core.DecodedBlock{}, fmt.Errorf("%w: empty opus payload", core.ErrDecodeFailed)
	}

	_, isStereo, err := d.dec.Decode(u.Payload, d.out)
	if err != nil {
		return core.DecodedBlock{}, fmt.Errorf("%w: opus: %v", core.ErrDecodeFailed, err)
	}

	samples := int(d.frameDur * opusRate / time.Second)
	if isStereo {
		// Downmix to mono: the sink renders a single channel.
		pcm := make([]int16, samples)
		for i := 0; i < samples; i++ {
			l := int16(binary.LittleEndian.Uint16(d.out[i*4:]))
			r := int16(binary.LittleEndian.Uint16(d.out[i*4+2:]))
			pcm[i] = int16((int32(l) + int32(r)) / 2)
		}
		return core.DecodedBlock{PCM: pcm, SampleRate: opusRate, Duration: d.frameDur}, nil
	}

	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(d.out[i*2:]))
	}
	return core.DecodedBlock{PCM: pcm, SampleRate: opusRate, Duration: d.frameDur}, nil
}
