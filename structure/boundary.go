// Package structure finds segment boundaries and low-energy pockets in an
// analyzed track.
package structure

import (
	"math"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
)

// beatless tracks are segmented over RMS blocks of this many seconds
const fallbackBlock = 0.5

// Segmentation is the outcome of boundary detection
type Segmentation struct {
	Boundaries []float64 `json:"boundaries"` // seconds, ascending
	Novelty    []float64 `json:"novelty"`    // per feature step, [0,1]
	Times      []float64 `json:"times"`      // time of each feature step
	Feature    string    `json:"feature"`    // "rms" or "chroma"
}

// Detector runs checkerboard-kernel novelty over beat-synchronous features
type Detector struct {
	config config.StructureConfig
	logger logging.Logger
}

// NewDetector creates a detector
func NewDetector(cfg config.StructureConfig) *Detector {
	return &Detector{
		config: cfg,
		logger: logging.WithFields(logging.Fields{
			"component": "boundary_detector",
		}),
	}
}

// Detect returns ordered boundary times for res. Features are per-beat
// chroma when configured and present, else per-beat mean RMS normalized by
// the track maximum; a track without beats falls back to mean RMS over
// half-second blocks.
func (d *Detector) Detect(res *analysis.Result) *Segmentation {
	features, times, kind := d.features(res)
	seg := &Segmentation{Times: times, Feature: kind}
	if len(features) < 3 {
		return seg
	}

	sim := selfSimilarity(features)
	seg.Novelty = d.novelty(sim)

	for _, p := range common.LocalMaxima(seg.Novelty, d.config.PeakThreshold) {
		// the first and last steps have no context on one side
		if p == 0 || p == len(seg.Novelty)-1 {
			continue
		}
		seg.Boundaries = append(seg.Boundaries, times[p])
	}

	d.logger.Debug("Boundaries detected", logging.Fields{
		"feature":    kind,
		"steps":      len(features),
		"boundaries": len(seg.Boundaries),
	})

	return seg
}

func (d *Detector) features(res *analysis.Result) ([][]float64, []float64, string) {
	if len(res.Beats) == 0 {
		block := 1
		if res.HopSec > 0 {
			block = max(1, int(math.Round(fallbackBlock/res.HopSec)))
		}
		means := make([]float64, 0, len(res.RMS)/block+1)
		var times []float64
		for lo := 0; lo < len(res.RMS); lo += block {
			means = append(means, common.MeanRange(res.RMS, lo, lo+block))
			times = append(times, res.FrameTime(lo))
		}
		norm := common.MaxNormalize(means)
		features := make([][]float64, len(norm))
		for i, v := range norm {
			features[i] = []float64{v}
		}
		return features, times, "rms"
	}

	times := append([]float64(nil), res.Beats...)

	if d.config.UseChroma && len(res.Chroma) == len(res.Beats) {
		return res.Chroma, times, "chroma"
	}

	peak := res.MaxRMS()
	features := make([][]float64, len(res.Beats))
	for i, start := range res.Beats {
		end := res.Duration
		if i+1 < len(res.Beats) {
			end = res.Beats[i+1]
		}
		v := res.MeanRMS(start, end)
		if peak > 0 {
			v /= peak
		}
		features[i] = []float64{v}
	}
	return features, times, "rms"
}

// selfSimilarity uses cosine similarity for vectors and 1-|a-b| for scalars
func selfSimilarity(features [][]float64) [][]float64 {
	n := len(features)
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			if len(features[i]) == 1 {
				s = 1 - math.Abs(features[i][0]-features[j][0])
			} else {
				s = common.CosineSimilarity(features[i], features[j])
			}
			sim[i][j] = s
			sim[j][i] = s
		}
	}
	return sim
}

// novelty correlates a Gaussian-tapered checkerboard kernel along the
// diagonal. Cells outside the matrix are skipped and the sum is divided by
// the kernel mass that was in range, so edges are not biased toward zero.
// Negative values are clipped and the curve is scaled to [0,1].
func (d *Detector) novelty(sim [][]float64) []float64 {
	n := len(sim)
	half := max(1, d.config.KernelHalfWidth)
	sigma := float64(half) / 2

	kernel := make([][]float64, 2*half)
	for a := range kernel {
		kernel[a] = make([]float64, 2*half)
		u := float64(a-half) + 0.5
		for b := range kernel[a] {
			v := float64(b-half) + 0.5
			sign := 1.0
			if (a < half) != (b < half) {
				sign = -1.0
			}
			kernel[a][b] = sign * math.Exp(-(u*u+v*v)/(2*sigma*sigma))
		}
	}

	curve := make([]float64, n)
	for i := 0; i < n; i++ {
		sum, mass := 0.0, 0.0
		for a := range kernel {
			x := i + a - half
			if x < 0 || x >= n {
				continue
			}
			for b := range kernel[a] {
				y := i + b - half
				if y < 0 || y >= n {
					continue
				}
				sum += kernel[a][b] * sim[x][y]
				mass += math.Abs(kernel[a][b])
			}
		}
		if mass > 0 {
			curve[i] = math.Max(0, sum/mass)
		}
	}
	return common.MaxNormalize(curve)
}

// IsValley reports whether the RMS at t is below ValleyRatio times the mean
// RMS over a ValleyWindow wide window centred on t.
func (d *Detector) IsValley(res *analysis.Result, t float64) bool {
	half := d.config.ValleyWindow / 2
	mean := res.MeanRMS(t-half, t+half)
	if mean <= 0 {
		return false
	}
	return res.RMSAt(t) < d.config.ValleyRatio*mean
}
