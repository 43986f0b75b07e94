package pitch

// LinearShift resamples src by the given ratio with linear interpolation: a
// ratio of 2.0 plays twice as fast one octave up, 0.5 half speed one octave
// down. It is a speed-style shift, the same tradeoff the engine uses when
// pitching in real time; a better algorithm can be injected via NewCache.
func LinearShift(src [][2]float32, ratio float32) [][2]float32 {
	if len(src) == 0 {
		return nil
	}
	if ratio <= 0 {
		ratio = 1
	}
	outLen := int(float64(len(src)) / float64(ratio))
	if outLen < 1 {
		outLen = 1
	}
	out := make([][2]float32, outLen)
	pos := float64(0)
	step := float64(ratio)
	for i := range out {
		idx := int(pos)
		if idx >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		a, b := src[idx], src[idx+1]
		out[i] = [2]float32{
			a[0] + (b[0]-a[0])*frac,
			a[1] + (b[1]-a[1])*frac,
		}
		pos += step
	}
	return out
}
