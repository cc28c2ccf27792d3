package codec

import (
	"fmt"
	"time"

	"firestige.xyz/auris/internal/core"
)

// G.711 runs at 8 kHz, one byte per sample.
const g711Rate = 8000

type g711Law int

const (
	muLaw g711Law = iota
	aLaw
)

var (
	muLawTable [256]int16
	aLawTable  [256]int16
)

func init() {
	for i := 0; i < 256; i++ {
		muLawTable[i] = muLawToLinear(byte(i))
		aLawTable[i] = aLawToLinear(byte(i))
	}
}

// muLawToLinear expands one µ-law byte (ITU-T G.711).
func muLawToLinear(u byte) int16 {
	u = ^u
	t := (int16(u&0x0F) << 3) + 0x84
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return 0x84 - t
	}
	return t - 0x84
}

// aLawToLinear expands one A-law byte (ITU-T G.711).
func aLawToLinear(a byte) int16 {
	a ^= 0x55
	t := int16(a&0x0F) << 4
	seg := (a & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return t
	}
	return -t
}

type g711Decoder struct {
	table *[256]int16
	name  string
}

func newG711(law g711Law) Decoder {
	if law == muLaw {
		return &g711Decoder{table: &muLawTable, name: "pcmu"}
	}
	return &g711Decoder{table: &aLawTable, name: "pcma"}
}

func (d *g711Decoder) Name() string    { return d.name }
func (d *g711Decoder) SampleRate() int { return g711Rate }
func (d *g711Decoder) Close() error    { return nil }

func (d *g711Decoder) Decode(u core.PayloadUnit) (core.DecodedBlock, error) {
	if len(u.Payload) == 0 {
		return core.DecodedBlock{}, fmt.Errorf("%w: empty G.711 payload", core.ErrDecodeFailed)
	}

	pcm := make([]int16, len(u.Payload))
	for i, b := range u.Payload {
		pcm[i] = d.table[b]
	}

	return core.DecodedBlock{
		PCM:        pcm,
		SampleRate: g711Rate,
		Duration:   time.Duration(len(pcm)) * time.Second / g711Rate,
	}, nil
}
