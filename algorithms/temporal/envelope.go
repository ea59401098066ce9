package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
)

// Envelope provides amplitude envelope extraction
type Envelope struct{}

// NewEnvelope creates a new envelope extractor
func NewEnvelope() *Envelope {
	return &Envelope{}
}

// ComputeRMS computes the RMS envelope with given frame and hop sizes.
// Frame i covers samples [i*hop, i*hop+frameSize). A signal shorter than
// one frame yields a single frame over the whole signal.
func (e *Envelope) ComputeRMS(signal []float64, frameSize, hopSize int) []float64 {
	if len(signal) == 0 || frameSize <= 0 || hopSize <= 0 {
		return []float64{}
	}

	if len(signal) < frameSize {
		return []float64{common.RMS(signal)}
	}

	numFrames := (len(signal)-frameSize)/hopSize + 1
	envelope := make([]float64, numFrames)

	for i := 0; i < numFrames; i++ {
		startIdx := i * hopSize
		sumSquares := 0.0
		for _, x := range signal[startIdx : startIdx+frameSize] {
			sumSquares += x * x
		}
		envelope[i] = math.Sqrt(sumSquares / float64(frameSize))
	}

	return envelope
}

// OnsetEnvelope returns the positive half-wave rectified first difference of
// rms, normalized to [0, 1]. Index 0 is always 0.
func (e *Envelope) OnsetEnvelope(rms []float64) []float64 {
	diff := make([]float64, len(rms))
	for i := 1; i < len(rms); i++ {
		if d := rms[i] - rms[i-1]; d > 0 {
			diff[i] = d
		}
	}
	return common.MaxNormalize(diff)
}
