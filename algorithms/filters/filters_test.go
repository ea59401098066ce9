package filters

import (
	"math"
	"testing"
)

func TestDCRemovalRemovesOffset(t *testing.T) {
	in := make([]float64, 44100)
	for i := range in {
		in[i] = 0.5
	}
	out := NewDCRemoval().ProcessBuffer(in)
	if tail := math.Abs(out[len(out)-1]); tail > 1e-3 {
		t.Errorf("residual DC = %v, want < 1e-3", tail)
	}
}

func steadyGain(bq *Biquad, freq float64, sr int) float64 {
	peak := 0.0
	for i := 0; i < sr; i++ {
		y := bq.Process(math.Sin(2 * math.Pi * freq * float64(i) / float64(sr)))
		if i > sr/2 {
			peak = math.Max(peak, math.Abs(y))
		}
	}
	return peak
}

func TestBiquadResponses(t *testing.T) {
	const sr = 44100
	tests := []struct {
		name string
		kind BiquadType
		freq float64
		pass bool
	}{
		{"lowpass passes lows", Lowpass, 100, true},
		{"lowpass blocks highs", Lowpass, 10000, false},
		{"highpass passes highs", Highpass, 10000, true},
		{"highpass blocks lows", Highpass, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := steadyGain(NewBiquad(tt.kind, sr, 1000, 0), tt.freq, sr)
			if tt.pass && g < 0.9 {
				t.Errorf("gain = %v, want >= 0.9", g)
			}
			if !tt.pass && g > 0.1 {
				t.Errorf("gain = %v, want <= 0.1", g)
			}
		})
	}
}
