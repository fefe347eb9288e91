package audio

// ResampleFloat resamples mono float samples from srcRate to dstRate using
// linear interpolation. If the rates match or either is not positive, the
// input is returned unchanged.
func ResampleFloat(in []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := in[idx]
		s1 := s0
		if idx+1 < len(in) {
			s1 = in[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Downmix averages interleaved multi-channel float samples into mono.
// Trailing samples that do not form a whole frame are dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Interleave flattens planar channel data into one interleaved slice.
func Interleave(planar [][]float32) []float32 {
	if len(planar) == 0 {
		return nil
	}
	if len(planar) == 1 {
		return planar[0]
	}
	frames := len(planar[0])
	out := make([]float32, frames*len(planar))
	for i := range frames {
		for c, ch := range planar {
			out[i*len(planar)+c] = ch[i]
		}
	}
	return out
}
