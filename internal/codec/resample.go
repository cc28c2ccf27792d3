package codec

// Resample converts mono PCM between sample rates by linear interpolation.
// Quality is adequate for telephony audio; a session at 8 kHz feeding a
// 48 kHz output device goes through here once per block.
func Resample(pcm []int16, from, to int) []int16 {
	if from == to || len(pcm) == 0 || from <= 0 || to <= 0 {
		return pcm
	}

	n := len(pcm) * to / from
	if n == 0 {
		return nil
	}
	out := make([]int16, n)

	// Fixed-point 16.16 stepping avoids float drift over long streams.
	step := (int64(from) << 16) / int64(to)
	pos := int64(0)
	for i := range out {
		idx := int(pos >> 16)
		if idx >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
		} else {
			frac := pos & 0xFFFF
			a := int64(pcm[idx])
			b := int64(pcm[idx+1])
			out[i] = int16(a + ((b-a)*frac)>>16)
		}
		pos += step
	}
	return out
}
