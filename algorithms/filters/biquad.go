package filters

import (
	"math"
)

// BiquadType selects the response of a Biquad
type BiquadType int

const (
	Lowpass BiquadType = iota
	Highpass
	Bandpass
)

func (t BiquadType) String() string {
	switch t {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Bandpass:
		return "bandpass"
	default:
		return "unknown"
	}
}

// Biquad implements a second-order IIR section with coefficients from
// Robert Bristow-Johnson's "Cookbook formulae for audio EQ biquad filter
// coefficients". The cutoff may be changed between samples, which is how
// filter sweeps are rendered.
type Biquad struct {
	kind       BiquadType
	sampleRate int
	cutoff     float64
	qFactor    float64

	// normalized coefficients (a0 == 1)
	b0, b1, b2 float64
	a1, a2     float64

	// Direct Form I state
	x1, x2 float64
	y1, y2 float64
}

// NewBiquad creates a filter of the given type. q <= 0 selects 1/sqrt(2).
func NewBiquad(kind BiquadType, sampleRate int, cutoff, q float64) *Biquad {
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	bq := &Biquad{
		kind:       kind,
		sampleRate: sampleRate,
		qFactor:    q,
	}
	bq.SetCutoff(cutoff)
	return bq
}

// SetCutoff recomputes coefficients for a new cutoff/centre frequency in Hz.
// The filter state is kept so the response changes without clicks.
func (bq *Biquad) SetCutoff(cutoff float64) {
	nyquist := float64(bq.sampleRate) / 2
	cutoff = math.Max(1, math.Min(cutoff, nyquist*0.99))
	bq.cutoff = cutoff

	w0 := 2.0 * math.Pi * cutoff / float64(bq.sampleRate)
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2.0 * bq.qFactor)

	var b0, b1, b2 float64
	switch bq.kind {
	case Highpass:
		b0 = (1 + cosW0) / 2
		b1 = -(1 + cosW0)
		b2 = (1 + cosW0) / 2
	case Bandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	default:
		b0 = (1 - cosW0) / 2
		b1 = 1 - cosW0
		b2 = (1 - cosW0) / 2
	}
	a0 := 1 + alpha

	bq.b0 = b0 / a0
	bq.b1 = b1 / a0
	bq.b2 = b2 / a0
	bq.a1 = (-2 * cosW0) / a0
	bq.a2 = (1 - alpha) / a0
}

// Cutoff returns the current cutoff in Hz
func (bq *Biquad) Cutoff() float64 {
	return bq.cutoff
}

// Process filters one sample:
//
//	y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
func (bq *Biquad) Process(input float64) float64 {
	output := bq.b0*input + bq.b1*bq.x1 + bq.b2*bq.x2 - bq.a1*bq.y1 - bq.a2*bq.y2

	bq.x2 = bq.x1
	bq.x1 = input
	bq.y2 = bq.y1
	bq.y1 = output

	return output
}

// Reset clears the filter state
func (bq *Biquad) Reset() {
	bq.x1, bq.x2 = 0, 0
	bq.y1, bq.y2 = 0, 0
}
