package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
)

// Tempo search bounds and the value used when the envelope carries no
// periodicity at all (silence, a single constant tone).
const (
	MinBPM     = 60.0
	MaxBPM     = 180.0
	DefaultBPM = 120.0

	// log-normal weighting on lags, centred on DefaultBPM, one octave wide
	DefaultPriorWidth = 1.0
)

// TempoEstimation estimates tempo by autocorrelating an onset envelope
type TempoEstimation struct {
	minBPM     float64
	maxBPM     float64
	priorWidth float64 // octaves, 0 disables the weighting
}

// NewTempoEstimation creates a tempo estimator over [60, 180] BPM
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{minBPM: MinBPM, maxBPM: MaxBPM, priorWidth: DefaultPriorWidth}
}

// NewTempoEstimationWithPrior creates an estimator with a custom prior width.
// A width of 0 picks the raw autocorrelation maximum.
func NewTempoEstimationWithPrior(priorWidth float64) *TempoEstimation {
	return &TempoEstimation{minBPM: MinBPM, maxBPM: MaxBPM, priorWidth: max(priorWidth, 0)}
}

// EstimateBPM autocorrelates the mean-centred envelope over the lags that
// imply minBPM..maxBPM, picks the lag with the largest sum, refines it with
// a parabola through its neighbours and clamps the result to the range.
//
// Sums are weighted by a log-normal prior around 120 BPM before the argmax.
// An impulse train whose period is not a whole number of frames otherwise
// correlates better at twice its period than at its period.
func (te *TempoEstimation) EstimateBPM(envelope []float64, hopSec float64) float64 {
	if len(envelope) < 3 || hopSec <= 0 {
		return DefaultBPM
	}

	mean := common.Mean(envelope)
	centred := make([]float64, len(envelope))
	energy := 0.0
	for i, v := range envelope {
		centred[i] = v - mean
		energy += centred[i] * centred[i]
	}
	if energy < 1e-12 {
		return DefaultBPM
	}

	minLag := max(1, int(math.Floor(60.0/(te.maxBPM*hopSec))))
	maxLag := int(math.Ceil(60.0 / (te.minBPM * hopSec)))
	maxLag = min(maxLag, len(centred)-1)
	if maxLag < minLag {
		return DefaultBPM
	}

	// one extra lag on each side for the parabolic fit
	lo := max(1, minLag-1)
	hi := min(len(centred)-1, maxLag+1)
	autocorr := make([]float64, hi+1)
	for lag := lo; lag <= hi; lag++ {
		autocorr[lag] = te.autocorrelation(centred, lag)
	}

	bestLag := minLag
	bestScore := math.Inf(-1)
	for lag := minLag; lag <= maxLag; lag++ {
		score := autocorr[lag] * te.weight(float64(lag), hopSec)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	refined := float64(bestLag)
	if bestLag-1 >= lo && bestLag+1 <= hi {
		prev, cur, next := autocorr[bestLag-1], autocorr[bestLag], autocorr[bestLag+1]
		denom := prev - 2*cur + next
		if denom < 0 {
			delta := 0.5 * (prev - next) / denom
			refined += common.Clamp(delta, -0.5, 0.5)
		}
	}

	bpm := 60.0 / (refined * hopSec)
	return common.Clamp(bpm, te.minBPM, te.maxBPM)
}

func (te *TempoEstimation) weight(lag, hopSec float64) float64 {
	if te.priorWidth <= 0 {
		return 1
	}
	octaves := math.Log2(60.0 / (lag * hopSec) / DefaultBPM)
	return math.Exp(-0.5 * (octaves / te.priorWidth) * (octaves / te.priorWidth))
}

func (te *TempoEstimation) autocorrelation(x []float64, lag int) float64 {
	sum := 0.0
	for i := 0; i+lag < len(x); i++ {
		sum += x[i] * x[i+lag]
	}
	return sum
}
