package splice

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/algorithms/stats"
	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
)

// GuardrailPlanner produces a single splice from A's structure without
// ranking: a safe window, the last boundary in it, an RMS-minimum refinement
// and a chroma-aligned entry into B.
type GuardrailPlanner struct {
	config config.PlannerConfig
	dtw    *stats.DTWAlignment
	logger logging.Logger
}

// NewGuardrailPlanner creates the single-answer planner
func NewGuardrailPlanner(cfg config.PlannerConfig) *GuardrailPlanner {
	return &GuardrailPlanner{
		config: cfg,
		dtw:    stats.NewDTWAlignment(),
		logger: logging.WithFields(logging.Fields{
			"component": "guardrail_planner",
		}),
	}
}

// Name implements Planner
func (p *GuardrailPlanner) Name() string { return StrategyGuardrail }

// Plan implements Planner. Request ranges are ignored.
func (p *GuardrailPlanner) Plan(a, b *Track, req Request) (*Decision, error) {
	if err := checkTracks(a, b); err != nil {
		return nil, err
	}
	logger := p.logger.WithFields(logging.Fields{
		"function":  "Plan",
		"crossfade": req.Crossfade,
	})

	xf := math.Max(0, req.Crossfade)
	resA := a.Result
	durA, durB := a.Duration(), b.Duration()

	if durA <= 0 || durA < xf {
		return p.fallback(a, b, xf, logger, "track A shorter than the crossfade")
	}

	window := p.safeWindow(durA, xf)
	t := p.pick(a, window)
	t = p.refine(resA, t, window)
	t = p.avoidFluxSpike(resA, t)

	fadeDur := math.Min(xf, durA-t)
	if fadeDur <= 0 || !common.IsFinite(t) {
		return p.fallback(a, b, xf, logger, "degenerate fade")
	}

	entry, offset := p.entry(a, b, t)
	plan := Plan{
		FadeStart:    common.Clamp(t, 0, durA),
		FadeDur:      fadeDur,
		EntryOffsetB: common.Clamp(entry, 0, durB),
	}

	logger.Info("Splice planned", logging.Fields{
		"fade_start":  plan.FadeStart,
		"fade_dur":    plan.FadeDur,
		"entry_b":     plan.EntryOffsetB,
		"beat_offset": offset,
		"window":      []float64{window.Start, window.End},
	})
	return &Decision{Plan: plan, Strategy: StrategyGuardrail}, nil
}

func (p *GuardrailPlanner) fallback(a, b *Track, xf float64, logger logging.Logger, reason string) (*Decision, error) {
	plan, err := fallbackPlan(a, b, xf, p.config.FallbackFade)
	if err != nil {
		return nil, err
	}
	logger.Warn("Using fixed fade near the end of A", logging.Fields{
		"reason":     reason,
		"fade_start": plan.FadeStart,
		"fade_dur":   plan.FadeDur,
	})
	return &Decision{Plan: plan, Strategy: StrategyGuardrail, Fallback: true}, nil
}

// safeWindow starts MinIntro seconds in and ends where a full crossfade
// still leaves MinOutro seconds of A. A track too short for both collapses
// the window to a single point that splits the spare time in the
// MinIntro:MinOutro ratio.
func (p *GuardrailPlanner) safeWindow(durA, xf float64) analysis.TimeRange {
	start := p.config.MinIntro
	end := durA - p.config.MinOutro - xf
	if end >= start {
		return analysis.TimeRange{Start: start, End: end}
	}
	spare := math.Max(0, durA-xf)
	frac := 0.5
	if total := p.config.MinIntro + p.config.MinOutro; total > 0 {
		frac = p.config.MinIntro / total
	}
	at := spare * frac
	return analysis.TimeRange{Start: at, End: at}
}

// pick returns the last boundary in the window, else the last beat in it,
// else the window end.
func (p *GuardrailPlanner) pick(a *Track, window analysis.TimeRange) float64 {
	if t, ok := lastWithin(a.Boundaries, window); ok {
		return t
	}
	if t, ok := lastWithin(a.Result.Beats, window); ok {
		return t
	}
	return window.End
}

// refine moves t to the quietest frame within RefineBeats beats of it,
// never past window.End.
func (p *GuardrailPlanner) refine(res *analysis.Result, t float64, window analysis.TimeRange) float64 {
	span := float64(p.config.RefineBeats) * res.BeatPeriod()
	if span <= 0 || len(res.RMS) == 0 {
		return t
	}
	lo := math.Max(0, t-span)
	hi := math.Min(window.End, t+span)
	if hi < lo {
		return t
	}
	first := int(math.Ceil(lo / res.HopSec))
	last := min(int(math.Floor(hi/res.HopSec)), len(res.RMS)-1)

	best := res.Frame(t)
	bestRMS := res.RMS[best]
	for i := first; i <= last; i++ {
		if res.RMS[i] < bestRMS {
			best, bestRMS = i, res.RMS[i]
		}
	}
	if best == res.Frame(t) {
		return t
	}
	return res.FrameTime(best)
}

// avoidFluxSpike steps back one beat when t sits on a spectral-flux value
// above FluxSpikeRatio times the mean flux.
func (p *GuardrailPlanner) avoidFluxSpike(res *analysis.Result, t float64) float64 {
	if len(res.SpectralFlux) == 0 || p.config.FluxSpikeRatio <= 0 {
		return t
	}
	mean := common.Mean(res.SpectralFlux)
	f := res.Frame(t)
	if f >= len(res.SpectralFlux) || mean <= 0 {
		return t
	}
	if res.SpectralFlux[f] > p.config.FluxSpikeRatio*mean {
		return math.Max(0, t-res.BeatPeriod())
	}
	return t
}

// entry anchors B on its first boundary (else its first beat) and shifts it
// by the DTW offset between A's last K beats of chroma before t and B's
// beats from the anchor on. It returns the entry time and the beat offset.
func (p *GuardrailPlanner) entry(a, b *Track, t float64) (float64, int) {
	resB := b.Result
	if len(resB.Beats) == 0 {
		if len(b.Boundaries) > 0 {
			return b.Boundaries[0], 0
		}
		return 0, 0
	}

	anchor := 0
	if len(b.Boundaries) > 0 {
		anchor = max(0, resB.NearestBeat(b.Boundaries[0]))
	}

	k := p.config.DTWBeats
	resA := a.Result
	if k <= 0 || len(resA.Chroma) != len(resA.Beats) || len(resB.Chroma) != len(resB.Beats) {
		return resB.Beats[anchor], 0
	}

	// beats strictly before the fade start
	endA := sort.SearchFloat64s(resA.Beats, t)
	if endA < k {
		return resB.Beats[anchor], 0
	}
	query := resA.Chroma[endA-k : endA]
	reference := resB.Chroma[anchor:min(len(resB.Chroma), anchor+2*k)]
	if len(reference) == 0 {
		return resB.Beats[anchor], 0
	}

	res, err := p.dtw.PrefixAlign(query, reference)
	if err != nil {
		p.logger.Debug("Chroma alignment skipped", logging.Fields{"error": err.Error()})
		return resB.Beats[anchor], 0
	}
	idx := max(0, min(anchor+res.Offset, len(resB.Beats)-1))
	return resB.Beats[idx], res.Offset
}

// lastWithin returns the largest value of the ascending slice inside tr
func lastWithin(values []float64, tr analysis.TimeRange) (float64, bool) {
	i := sort.Search(len(values), func(i int) bool { return values[i] > tr.End })
	if i == 0 || values[i-1] < tr.Start {
		return 0, false
	}
	return values[i-1], true
}
