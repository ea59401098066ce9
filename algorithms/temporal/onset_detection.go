package temporal

import (
	"github.com/RyanBlaney/sonido-splice/algorithms/common"
)

// DefaultOnsetThreshold is the minimum normalized envelope height of an onset
const DefaultOnsetThreshold = 0.15

// OnsetDetection picks onsets from a normalized onset envelope
type OnsetDetection struct {
	threshold float64
}

// NewOnsetDetection creates an onset picker with the default threshold
func NewOnsetDetection() *OnsetDetection {
	return &OnsetDetection{threshold: DefaultOnsetThreshold}
}

// NewOnsetDetectionWithThreshold creates an onset picker with a custom threshold
func NewOnsetDetectionWithThreshold(threshold float64) *OnsetDetection {
	return &OnsetDetection{threshold: threshold}
}

// Detect returns onset times in seconds: local maxima of envelope at or
// above the threshold, where frame i sits at i*hopSec.
func (od *OnsetDetection) Detect(envelope []float64, hopSec float64) []float64 {
	peaks := common.LocalMaxima(envelope, od.threshold)
	onsets := make([]float64, len(peaks))
	for i, p := range peaks {
		onsets[i] = float64(p) * hopSec
	}
	return onsets
}
