package splice

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
)

// clashOnsets is the onset count at which the clash ratio saturates
const clashOnsets = 4.0

// Scorer weighs candidates and ranks them
type Scorer struct {
	weights config.Weights
	search  config.SearchConfig
	logger  logging.Logger
}

// NewScorer creates a scorer
func NewScorer(weights config.Weights, search config.SearchConfig) *Scorer {
	return &Scorer{
		weights: weights,
		search:  search,
		logger: logging.WithFields(logging.Fields{
			"component": "scorer",
		}),
	}
}

// Score computes every candidate's subscores and weighted score and returns
// them sorted by descending score. Ties keep generator order.
func (s *Scorer) Score(a, b *Track, cands []Candidate, crossfade float64) []ScoredCandidate {
	clash := s.search.ClashWindow
	if clash <= 0 {
		clash = crossfade
	}
	tempo := TempoScore(a.Result.BPM, b.Result.BPM)
	peakA := a.Result.MaxRMS()
	peakB := b.Result.MaxRMS()
	w := s.search.EnergyWindow

	out := make([]ScoredCandidate, len(cands))
	for i, c := range cands {
		var sub Subscores
		if c.IsDownbeatA && c.IsDownbeatB {
			sub.Downbeat = 1
		}

		if peakA > 0 {
			sub.EnergyDropA = (a.Result.MeanRMS(c.TA-w, c.TA) - a.Result.MeanRMS(c.TA, c.TA+w)) / peakA
		}
		if peakB > 0 {
			sub.EnergyRiseB = (b.Result.MeanRMS(c.TB, c.TB+w) - b.Result.MeanRMS(c.TB-w, c.TB)) / peakB
		}
		sub.Energy = 0.5 * (sub.EnergyDropA + sub.EnergyRiseB)
		sub.Tempo = tempo
		sub.Valley = 0.5 * (indicator(c.IsValleyA) + indicator(c.IsValleyB))
		sub.Boundary = 0.5 * (indicator(c.FromBoundaryA) + indicator(c.FromBoundaryB))

		onsets := a.Result.OnsetsBetween(c.TA-clash, c.TA+clash) + b.Result.OnsetsBetween(c.TB-clash, c.TB+clash)
		sub.OnsetClash = math.Min(1, float64(onsets)/clashOnsets)

		sub.EdgePenalty = math.Max(
			s.edgePenalty(c.TA, a.Duration()),
			s.edgePenalty(c.TB, b.Duration()),
		)

		out[i] = ScoredCandidate{
			Candidate: c,
			Subscores: sub,
			Score:     s.combine(sub),
		}
	}

	SortCandidates(out)

	if len(out) > 0 {
		s.logger.Debug("Candidates scored", logging.Fields{
			"candidates": len(out),
			"top_score":  out[0].Score,
			"top_t_a":    out[0].TA,
			"top_t_b":    out[0].TB,
		})
	}
	return out
}

func (s *Scorer) combine(sub Subscores) float64 {
	w := s.weights
	return w.Downbeat*sub.Downbeat +
		w.Energy*sub.Energy +
		w.Tempo*sub.Tempo +
		w.Valley*sub.Valley +
		w.Boundary*sub.Boundary -
		w.OnsetClash*sub.OnsetClash -
		w.EdgePenalty*sub.EdgePenalty
}

// edgePenalty is 1 within EdgeInner seconds of either end of the track,
// falls linearly to 0 at EdgeOuter and stays 0 beyond.
func (s *Scorer) edgePenalty(t, duration float64) float64 {
	d := math.Min(t, duration-t)
	inner, outer := s.search.EdgeInner, s.search.EdgeOuter
	switch {
	case d <= inner:
		return 1
	case d >= outer:
		return 0
	default:
		return (outer - d) / (outer - inner)
	}
}

// TempoScore is 1 - |bpmA - bpmB| / bpmA clamped to [0, 1]
func TempoScore(bpmA, bpmB float64) float64 {
	if bpmA <= 0 {
		return 0
	}
	return common.Clamp(1-math.Abs(bpmA-bpmB)/bpmA, 0, 1)
}

// SortCandidates orders by descending score, stable on ties
func SortCandidates(cands []ScoredCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
