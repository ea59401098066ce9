package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real signal using mjibson/go-dsp
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// go-dsp handles non-power-of-2 sizes too
	return fft.FFTReal(x)
}

// Magnitudes returns |X[k]| for the non-negative frequency bins of x
func (f *FFT) Magnitudes(x []float64) []float64 {
	spectrum := f.Compute(x)
	bins := len(spectrum)/2 + 1
	bins = min(bins, len(spectrum))
	mags := make([]float64, bins)
	for i := 0; i < bins; i++ {
		mags[i] = cmplx.Abs(spectrum[i])
	}
	return mags
}
