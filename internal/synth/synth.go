// Package synth generates deterministic test signals.
package synth

import (
	"math"
	"math/rand"
)

// SampleRate is the rate used by the generators unless told otherwise
const SampleRate = 44100

// ClickTrack options
type ClickTrack struct {
	BPM        float64
	Duration   float64 // seconds
	SampleRate int
	Offset     float64 // time of the first click
	Amplitude  float64
	ClickFreq  float64 // Hz of the decaying burst
	ClickLen   float64 // seconds
	ToneFreq   float64 // optional sustained tone under the clicks, 0 = none
	ToneLevel  float64
}

// NewClickTrack returns click-track options with sensible defaults
func NewClickTrack(bpm, duration float64) ClickTrack {
	return ClickTrack{
		BPM:        bpm,
		Duration:   duration,
		SampleRate: SampleRate,
		Amplitude:  0.8,
		ClickFreq:  1000,
		ClickLen:   0.03,
	}
}

// Mono renders the click track as mono samples
func (c ClickTrack) Mono() []float64 {
	n := int(c.Duration * float64(c.SampleRate))
	out := make([]float64, n)
	sr := float64(c.SampleRate)

	if c.ToneFreq > 0 {
		for i := range out {
			out[i] = c.ToneLevel * math.Sin(2*math.Pi*c.ToneFreq*float64(i)/sr)
		}
	}

	period := 60.0 / c.BPM
	clickSamples := int(c.ClickLen * sr)
	for t := c.Offset; t < c.Duration; t += period {
		start := int(math.Round(t * sr))
		for j := 0; j < clickSamples && start+j < n; j++ {
			env := math.Exp(-float64(j) / (float64(clickSamples) / 5))
			out[start+j] += c.Amplitude * env * math.Sin(2*math.Pi*c.ClickFreq*float64(j)/sr)
		}
	}
	return out
}

// Stereo renders the click track duplicated into interleaved stereo
func (c ClickTrack) Stereo() []float64 {
	return Interleave(c.Mono(), 2)
}

// Interleave copies a mono signal into every channel of an interleaved buffer
func Interleave(mono []float64, channels int) []float64 {
	out := make([]float64, len(mono)*channels)
	for i, v := range mono {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = v
		}
	}
	return out
}

// Noise returns seeded uniform noise in [-amp, amp]
func Noise(n int, amp float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * (2*rng.Float64() - 1)
	}
	return out
}
