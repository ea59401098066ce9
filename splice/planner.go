package splice

import (
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/structure"
)

// Strategy names accepted by NewPlanner
const (
	StrategyRanked    = "ranked"
	StrategyGuardrail = "guardrail"
)

// Request carries the per-call planning inputs
type Request struct {
	Crossfade float64 // seconds, already clamped by the caller

	// Optional search windows. Nil means "exclude EdgeExclusion seconds at
	// both ends", relaxed when that leaves nothing.
	RangeA *analysis.TimeRange
	RangeB *analysis.TimeRange
}

// Planner picks one splice for a pair of tracks
type Planner interface {
	Name() string
	Plan(a, b *Track, req Request) (*Decision, error)
}

// NewPlanner returns the planner registered under name. An empty name
// selects the ranked planner.
func NewPlanner(name string, cfg config.Config, detector *structure.Detector) (Planner, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyRanked:
		return NewRankedPlanner(cfg, detector), nil
	case StrategyGuardrail:
		return NewGuardrailPlanner(cfg.Planner), nil
	default:
		return nil, fmt.Errorf("unknown planner strategy: %s", name)
	}
}

// RankedPlanner generates and scores candidates and takes the best one
type RankedPlanner struct {
	search    config.SearchConfig
	planner   config.PlannerConfig
	generator *Generator
	scorer    *Scorer
	logger    logging.Logger
}

// NewRankedPlanner creates the generator+scorer planner
func NewRankedPlanner(cfg config.Config, detector *structure.Detector) *RankedPlanner {
	return &RankedPlanner{
		search:    cfg.Search,
		planner:   cfg.Planner,
		generator: NewGenerator(cfg.Search, detector),
		scorer:    NewScorer(cfg.Weights, cfg.Search),
		logger: logging.WithFields(logging.Fields{
			"component": "ranked_planner",
		}),
	}
}

// Name implements Planner
func (p *RankedPlanner) Name() string { return StrategyRanked }

// Plan tries the configured edge exclusion, then halves it twice, then
// searches the whole track. When every attempt is empty it falls back to a
// short fade near the end of A.
func (p *RankedPlanner) Plan(a, b *Track, req Request) (*Decision, error) {
	if err := checkTracks(a, b); err != nil {
		return nil, err
	}
	logger := p.logger.WithFields(logging.Fields{
		"function":  "Plan",
		"crossfade": req.Crossfade,
	})

	xf := math.Max(0, req.Crossfade)
	margin := p.search.EdgeExclusion
	margins := []float64{margin, margin / 2, margin / 4, 0}
	if req.RangeA != nil && req.RangeB != nil {
		margins = []float64{0}
	}

	for _, m := range margins {
		rangeA := searchRange(req.RangeA, a.Duration(), m)
		rangeB := searchRange(req.RangeB, b.Duration(), m)

		cands := p.generator.Generate(a, b, rangeA, rangeB, xf)
		if len(cands) == 0 {
			logger.Debug("No candidates, relaxing search windows", logging.Fields{
				"margin": m,
			})
			continue
		}

		ranked := p.scorer.Score(a, b, cands, xf)
		top := ranked[0]
		d := &Decision{
			Plan: Plan{
				FadeStart:    top.TA,
				FadeDur:      xf,
				EntryOffsetB: top.TB,
			},
			Strategy: StrategyRanked,
			Margin:   m,
			Ranked:   ranked,
		}
		logger.Info("Splice planned", logging.Fields{
			"t_a":        top.TA,
			"t_b":        top.TB,
			"score":      top.Score,
			"candidates": len(ranked),
			"margin":     m,
		})
		return d, nil
	}

	plan, err := fallbackPlan(a, b, xf, p.planner.FallbackFade)
	if err != nil {
		return nil, err
	}
	logger.Warn("No candidates in any window, using fixed fade near the end of A", logging.Fields{
		"fade_start": plan.FadeStart,
		"fade_dur":   plan.FadeDur,
	})
	return &Decision{Plan: plan, Strategy: StrategyRanked, Fallback: true}, nil
}

func searchRange(explicit *analysis.TimeRange, duration, margin float64) analysis.TimeRange {
	if explicit != nil {
		return explicit.Clamp(duration)
	}
	return analysis.EdgeRange(duration, margin)
}

func checkTracks(a, b *Track) error {
	if a == nil || a.Result == nil || b == nil || b.Result == nil {
		return fmt.Errorf("%w: missing analysis", ErrNoCandidates)
	}
	return nil
}

// fallbackPlan fades over min(crossfade, fallbackFade) seconds ending at
// the end of A and enters B on its first beat.
func fallbackPlan(a, b *Track, crossfade, fallbackFade float64) (Plan, error) {
	durA, durB := a.Duration(), b.Duration()
	if !common.IsFinite(durA) || !common.IsFinite(durB) || durA < 0 || durB < 0 {
		return Plan{}, fmt.Errorf("%w: invalid durations %v and %v", ErrNoCandidates, durA, durB)
	}
	fade := math.Min(crossfade, durA)
	if fallbackFade > 0 {
		fade = math.Min(fade, fallbackFade)
	}
	fade = math.Max(0, fade)

	entry := 0.0
	if len(b.Result.Beats) > 0 {
		entry = common.Clamp(b.Result.Beats[0], 0, durB)
	}
	return Plan{
		FadeStart:    durA - fade,
		FadeDur:      fade,
		EntryOffsetB: entry,
	}, nil
}
