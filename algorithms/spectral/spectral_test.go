package spectral

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-splice/algorithms/windowing"
)

func TestSTFTPeakBin(t *testing.T) {
	const (
		sr   = 8000
		size = 256
		hop  = 128
	)
	// 1000 Hz lands exactly on bin 32 at 8000/256 Hz per bin
	signal := make([]float64, sr)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * 1000 * float64(i) / sr)
	}

	res, err := NewSTFT().ComputeWithWindow(signal, size, hop, sr, windowing.NewHann(size))
	if err != nil {
		t.Fatalf("ComputeWithWindow: %v", err)
	}
	if res.TimeFrames != (sr-size)/hop+1 {
		t.Errorf("TimeFrames = %d, want %d", res.TimeFrames, (sr-size)/hop+1)
	}
	frame := res.Magnitude[res.TimeFrames/2]
	best := 0
	for i := range frame {
		if frame[i] > frame[best] {
			best = i
		}
	}
	if best != 32 {
		t.Errorf("peak bin = %d, want 32", best)
	}
}

func TestSTFTShortSignalPads(t *testing.T) {
	res, err := NewSTFT().ComputeWithWindow([]float64{1, 2, 3}, 16, 8, 8000, nil)
	if err != nil {
		t.Fatalf("ComputeWithWindow: %v", err)
	}
	if res.TimeFrames != 1 || res.FreqBins != 9 {
		t.Errorf("frames/bins = %d/%d, want 1/9", res.TimeFrames, res.FreqBins)
	}
}

func TestSpectralFlux(t *testing.T) {
	spec := [][]float64{{1, 1}, {1, 4}, {0, 0}}
	flux := NewSpectralFlux().Compute(spec)
	want := []float64{0, 3, 0}
	for i := range want {
		if math.Abs(flux[i]-want[i]) > 1e-12 {
			t.Errorf("flux[%d] = %v, want %v", i, flux[i], want[i])
		}
	}
}
