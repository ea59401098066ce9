package common

import "math"

// InterleavedAt reads channel ch of an interleaved buffer at a fractional
// frame position using linear interpolation. Positions outside the buffer
// read as silence.
func InterleavedAt(data []float64, channels, ch int, frame float64) float64 {
	if channels <= 0 || frame < 0 || math.IsNaN(frame) {
		return 0.0
	}
	frames := len(data) / channels
	i := int(frame)
	if i >= frames {
		return 0.0
	}
	ch = min(ch, channels-1)

	s0 := data[i*channels+ch]
	frac := frame - float64(i)
	if frac == 0 {
		return s0
	}
	s1 := 0.0
	if i+1 < frames {
		s1 = data[(i+1)*channels+ch]
	}
	return s0 + frac*(s1-s0)
}
