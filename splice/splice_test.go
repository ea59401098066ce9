package splice

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/internal/synth"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/structure"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

func init() {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
}

const hop = 512.0 / 44100.0

// gridResult builds an analysis with beats every 60/bpm seconds from 0,
// an onset on each beat and an RMS envelope that spikes on beats.
func gridResult(bpm, duration float64) *analysis.Result {
	period := 60 / bpm
	res := &analysis.Result{
		BPM:        bpm,
		HopSec:     hop,
		SampleRate: 44100,
		Duration:   duration,
		Source:     "test",
	}
	for t := 0.0; t < duration; t += period {
		res.Beats = append(res.Beats, t)
		res.Onsets = append(res.Onsets, t)
	}
	frames := int(duration/hop) + 1
	res.RMS = make([]float64, frames)
	res.OnsetEnvelope = make([]float64, frames)
	for i := range res.RMS {
		t := float64(i) * hop
		since := math.Mod(t, period)
		res.RMS[i] = 0.1 + 0.5*math.Exp(-since/0.05)
	}
	for _, t := range res.Beats {
		res.OnsetEnvelope[res.Frame(t)] = 1
	}
	return res
}

func withChroma(res *analysis.Result, seed int64) *analysis.Result {
	rng := rand.New(rand.NewSource(seed))
	res.Chroma = make([][]float64, len(res.Beats))
	for i := range res.Chroma {
		v := make([]float64, 12)
		v[rng.Intn(12)] = 1
		v[rng.Intn(12)] += 0.5
		res.Chroma[i] = v
	}
	return res
}

func onGrid(t float64, beats []float64) bool {
	for _, b := range beats {
		if math.Abs(b-t) < 1e-9 {
			return true
		}
	}
	return false
}

func defaultPlanners(t *testing.T) []Planner {
	t.Helper()
	cfg := config.Default()
	detector := structure.NewDetector(cfg.Structure)
	var out []Planner
	for _, name := range []string{StrategyRanked, StrategyGuardrail} {
		p, err := NewPlanner(name, cfg, detector)
		if err != nil {
			t.Fatalf("NewPlanner(%q): %v", name, err)
		}
		out = append(out, p)
	}
	return out
}

func TestGenerateRespectsRanges(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg.Search, structure.NewDetector(cfg.Structure))
	a := &Track{Result: gridResult(120, 180), Boundaries: []float64{40.1, 95.3}}
	b := &Track{Result: gridResult(124, 150), Boundaries: []float64{32}}

	tests := []struct {
		name      string
		rangeA    analysis.TimeRange
		rangeB    analysis.TimeRange
		crossfade float64
	}{
		{"default margins", analysis.EdgeRange(180, 15), analysis.EdgeRange(150, 15), 8},
		{"narrow", analysis.TimeRange{Start: 50, End: 62}, analysis.TimeRange{Start: 20, End: 30}, 8},
		{"long fade", analysis.EdgeRange(180, 15), analysis.EdgeRange(150, 15), 24},
		{"short fade", analysis.TimeRange{Start: 0, End: 180}, analysis.TimeRange{Start: 100, End: 104}, 3},
		{"too narrow", analysis.TimeRange{Start: 50, End: 55}, analysis.TimeRange{Start: 20, End: 30}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := gen.Generate(a, b, tt.rangeA, tt.rangeB, tt.crossfade)
			if len(cands) > cfg.Search.MaxCandidates {
				t.Errorf("len = %d, want <= %d", len(cands), cfg.Search.MaxCandidates)
			}
			seen := make(map[key]bool)
			for _, c := range cands {
				if !tt.rangeA.ContainsSpan(c.TA, tt.crossfade) {
					t.Errorf("TA %v + %v outside %+v", c.TA, tt.crossfade, tt.rangeA)
				}
				if !tt.rangeB.ContainsSpan(c.TB, tt.crossfade) {
					t.Errorf("TB %v + %v outside %+v", c.TB, tt.crossfade, tt.rangeB)
				}
				k := keyOf(c.TA, c.TB)
				if seen[k] {
					t.Errorf("duplicate candidate (%v, %v)", c.TA, c.TB)
				}
				seen[k] = true
			}
			if tt.name == "too narrow" && len(cands) != 0 {
				t.Errorf("len = %d, want 0", len(cands))
			}
		})
	}
}

func TestGeneratePriorityOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Search.MaxCandidates = 1000
	gen := NewGenerator(cfg.Search, nil)
	a := &Track{Result: gridResult(120, 120), Boundaries: []float64{60.2}}
	b := &Track{Result: gridResult(120, 120)}

	cands := gen.Generate(a, b, analysis.EdgeRange(120, 15), analysis.EdgeRange(120, 15), 8)
	if len(cands) == 0 {
		t.Fatal("no candidates")
	}
	rank := map[string]int{PhaseDownbeat: 0, PhaseBoundary: 1, PhaseBeat: 2}
	for i := 1; i < len(cands); i++ {
		if rank[cands[i].Phase] < rank[cands[i-1].Phase] {
			t.Fatalf("phase %q after %q at %d", cands[i].Phase, cands[i-1].Phase, i)
		}
	}
	if !cands[0].IsDownbeatA || !cands[0].IsDownbeatB {
		t.Errorf("first candidate %+v, want downbeat pair", cands[0])
	}

	var fromBoundary bool
	for _, c := range cands {
		if c.Phase == PhaseBoundary {
			if !c.FromBoundaryA || math.Abs(c.TA-60) > 1e-9 || math.Abs(c.TB-60) > 1e-9 {
				t.Errorf("boundary candidate = %+v, want (60, 60) flagged from boundary", c)
			}
			fromBoundary = true
		}
	}
	if !fromBoundary {
		t.Error("no candidate from the boundary phase")
	}
}

func TestGenerateCoversWholeRange(t *testing.T) {
	cfg := config.Default()
	detector := structure.NewDetector(cfg.Structure)
	a := &Track{Result: gridResult(124, 240), Boundaries: []float64{64, 128, 192}}
	b := &Track{Result: gridResult(124, 240)}

	d, err := NewRankedPlanner(cfg, detector).Plan(a, b, Request{Crossfade: 8})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if n := len(d.Ranked); n < cfg.Search.MaxCandidates*3/4 || n > cfg.Search.MaxCandidates {
		t.Errorf("candidates = %d, want close to %d", n, cfg.Search.MaxCandidates)
	}

	phases := make(map[string]int)
	minTA, maxTA := math.Inf(1), math.Inf(-1)
	boundaries := make(map[float64]bool)
	for _, c := range d.Ranked {
		phases[c.Phase]++
		minTA = math.Min(minTA, c.TA)
		maxTA = math.Max(maxTA, c.TA)
		if c.Phase == PhaseBoundary {
			boundaries[math.Round(c.TA)] = true
		}
	}
	for _, p := range []string{PhaseDownbeat, PhaseBoundary, PhaseBeat} {
		if phases[p] == 0 {
			t.Errorf("no %s candidates, phases = %v", p, phases)
		}
	}
	if len(boundaries) != 3 {
		t.Errorf("boundary candidates at %v, want one per boundary", boundaries)
	}
	if minTA > 20 || maxTA < 200 {
		t.Errorf("tA spans [%.2f, %.2f], want about [15, 217]", minTA, maxTA)
	}

	var middle int
	for _, c := range d.Ranked {
		if c.TA > 80 && c.TA < 160 {
			middle++
		}
	}
	if middle == 0 {
		t.Error("no candidates in the middle of the range")
	}
}

func TestGenerateStrongOnset(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg.Search, nil)
	res := gridResult(120, 60)

	if !gen.strongOnset(res, 20) {
		t.Error("strongOnset(20) = false, want true")
	}
	if gen.strongOnset(res, 20.25) {
		t.Error("strongOnset(20.25) = true, want false")
	}

	res.OnsetEnvelope = make([]float64, len(res.RMS))
	if gen.strongOnset(res, 20) {
		t.Error("strongOnset with flat envelope = true, want false")
	}
}

func TestScoreSortedAndIdempotent(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg.Search, structure.NewDetector(cfg.Structure))
	scorer := NewScorer(cfg.Weights, cfg.Search)
	a := &Track{Result: gridResult(126, 200), Boundaries: []float64{64, 130}}
	b := &Track{Result: gridResult(122, 200), Boundaries: []float64{40}}

	cands := gen.Generate(a, b, analysis.EdgeRange(200, 15), analysis.EdgeRange(200, 15), 8)
	ranked := scorer.Score(a, b, cands, 8)
	if len(ranked) != len(cands) {
		t.Fatalf("len = %d, want %d", len(ranked), len(cands))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatalf("not sorted at %d: %v > %v", i, ranked[i].Score, ranked[i-1].Score)
		}
	}

	again := append([]ScoredCandidate(nil), ranked...)
	SortCandidates(again)
	for i := range ranked {
		if again[i].TA != ranked[i].TA || again[i].TB != ranked[i].TB || again[i].Score != ranked[i].Score {
			t.Fatalf("re-sort moved index %d: (%v, %v) -> (%v, %v)", i, ranked[i].TA, ranked[i].TB, again[i].TA, again[i].TB)
		}
	}
}

func TestScoreFormula(t *testing.T) {
	cfg := config.Default()
	scorer := NewScorer(cfg.Weights, cfg.Search)
	a := &Track{Result: gridResult(120, 120)}
	b := &Track{Result: gridResult(120, 120)}

	c := Candidate{TA: 60, TB: 40, IsDownbeatA: true, IsDownbeatB: true, IsValleyA: true, FromBoundaryB: true}
	got := scorer.Score(a, b, []Candidate{c}, 8)[0]

	if got.Subscores.Downbeat != 1 {
		t.Errorf("Downbeat = %v, want 1", got.Subscores.Downbeat)
	}
	if got.Subscores.Valley != 0.5 {
		t.Errorf("Valley = %v, want 0.5", got.Subscores.Valley)
	}
	if got.Subscores.Boundary != 0.5 {
		t.Errorf("Boundary = %v, want 0.5", got.Subscores.Boundary)
	}
	if got.Subscores.Tempo != 1 {
		t.Errorf("Tempo = %v, want 1", got.Subscores.Tempo)
	}
	if got.Subscores.OnsetClash != 1 {
		t.Errorf("OnsetClash = %v, want 1", got.Subscores.OnsetClash)
	}
	if got.Subscores.EdgePenalty != 0 {
		t.Errorf("EdgePenalty = %v, want 0", got.Subscores.EdgePenalty)
	}

	w := cfg.Weights
	sub := got.Subscores
	want := w.Downbeat + w.Energy*sub.Energy + w.Tempo + w.Valley*0.5 + w.Boundary*0.5 - w.OnsetClash
	if math.Abs(got.Score-want) > 1e-12 {
		t.Errorf("Score = %v, want %v", got.Score, want)
	}
}

func TestEdgePenalty(t *testing.T) {
	cfg := config.Default()
	s := NewScorer(cfg.Weights, cfg.Search)

	tests := []struct {
		t, duration float64
		want        float64
	}{
		{5, 200, 1},
		{15, 200, 1},
		{22.5, 200, 0.5},
		{30, 200, 0},
		{100, 200, 0},
		{190, 200, 1},
		{177.5, 200, 0.5},
	}
	for _, tt := range tests {
		if got := s.edgePenalty(tt.t, tt.duration); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("edgePenalty(%v, %v) = %v, want %v", tt.t, tt.duration, got, tt.want)
		}
	}
}

func TestTempoScore(t *testing.T) {
	tests := []struct {
		a, b float64
		want float64
	}{
		{120, 120, 1},
		{120, 90, 0.75},
		{90, 128, 1 - 38.0/90},
		{60, 180, 0},
		{0, 120, 0},
	}
	for _, tt := range tests {
		if got := TempoScore(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("TempoScore(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIdenticalClickTracks(t *testing.T) {
	cfg := config.Default()
	audio := transcode.NewAudioData(synth.NewClickTrack(120, 30).Stereo(), synth.SampleRate, 2)
	res, err := analysis.NewBasicExtractor(cfg.Analysis).Analyze(context.Background(), audio)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	detector := structure.NewDetector(cfg.Structure)
	a := NewTrack(res, detector.Detect(res))
	b := NewTrack(res, detector.Detect(res))

	d, err := NewRankedPlanner(cfg, detector).Plan(a, b, Request{Crossfade: 8})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	top := d.Top()
	if top == nil {
		t.Fatalf("no ranked candidates, decision %+v", d)
	}
	if !top.IsDownbeatA || !top.IsDownbeatB {
		t.Errorf("top candidate downbeats = (%v, %v), want (true, true)", top.IsDownbeatA, top.IsDownbeatB)
	}
	if math.Abs(top.Subscores.Tempo-1) > 1e-9 {
		t.Errorf("Tempo = %v, want 1", top.Subscores.Tempo)
	}
}

func TestMismatchedTempoStaysOnGrid(t *testing.T) {
	cfg := config.Default()
	detector := structure.NewDetector(cfg.Structure)
	a := &Track{Result: gridResult(90, 120)}
	b := &Track{Result: gridResult(128, 120)}

	d, err := NewRankedPlanner(cfg, detector).Plan(a, b, Request{Crossfade: 8})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(d.Ranked) == 0 {
		t.Fatal("no ranked candidates")
	}
	for _, c := range d.Ranked {
		if !onGrid(c.TA, a.Result.Beats) {
			t.Errorf("TA %v not on the 90 BPM grid", c.TA)
		}
		if !onGrid(c.TB, b.Result.Beats) {
			t.Errorf("TB %v not on the 128 BPM grid", c.TB)
		}
		if c.Subscores.Tempo >= 1 {
			t.Errorf("Tempo = %v, want < 1", c.Subscores.Tempo)
		}
	}
}

func TestPlanBounds(t *testing.T) {
	durations := []float64{2, 6, 12, 30, 45, 90, 240}
	crossfades := []float64{3, 8, 16, 24}

	for _, p := range defaultPlanners(t) {
		for _, durA := range durations {
			for _, durB := range durations {
				for _, xf := range crossfades {
					a := &Track{Result: withChroma(gridResult(118, durA), 1), Boundaries: []float64{durA * 0.6}}
					b := &Track{Result: withChroma(gridResult(125, durB), 2), Boundaries: []float64{durB * 0.3}}
					a.Result.SpectralFlux = a.Result.RMS

					d, err := p.Plan(a, b, Request{Crossfade: xf})
					if err != nil {
						t.Fatalf("%s Plan(%v, %v, %v): %v", p.Name(), durA, durB, xf, err)
					}
					plan := d.Plan
					if plan.FadeStart < 0 || plan.FadeStart > durA {
						t.Errorf("%s(%v, %v, %v): FadeStart = %v, want in [0, %v]", p.Name(), durA, durB, xf, plan.FadeStart, durA)
					}
					if plan.FadeDur < 0 || plan.FadeDur > xf {
						t.Errorf("%s(%v, %v, %v): FadeDur = %v, want in [0, %v]", p.Name(), durA, durB, xf, plan.FadeDur, xf)
					}
					if plan.EntryOffsetB < 0 || plan.EntryOffsetB > durB {
						t.Errorf("%s(%v, %v, %v): EntryOffsetB = %v, want in [0, %v]", p.Name(), durA, durB, xf, plan.EntryOffsetB, durB)
					}
					if d.Strategy != p.Name() {
						t.Errorf("Strategy = %q, want %q", d.Strategy, p.Name())
					}
				}
			}
		}
	}
}

func TestRankedPlannerRelaxesMargins(t *testing.T) {
	cfg := config.Default()
	p := NewRankedPlanner(cfg, nil)

	tests := []struct {
		name     string
		duration float64
		margin   float64
		fallback bool
	}{
		{"long tracks keep the margin", 120, 15, false},
		{"30 s tracks relax once", 30, 7.5, false},
		{"20 s tracks relax twice", 20, 3.75, false},
		{"6 s tracks fall back", 6, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Track{Result: gridResult(120, tt.duration)}
			b := &Track{Result: gridResult(120, tt.duration)}
			d, err := p.Plan(a, b, Request{Crossfade: 8})
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if d.Fallback != tt.fallback {
				t.Errorf("Fallback = %v, want %v", d.Fallback, tt.fallback)
			}
			if !tt.fallback && d.Margin != tt.margin {
				t.Errorf("Margin = %v, want %v", d.Margin, tt.margin)
			}
			if tt.fallback {
				want := math.Min(8, cfg.Planner.FallbackFade)
				if d.Plan.FadeDur != want || d.Plan.FadeStart != tt.duration-want {
					t.Errorf("Plan = %+v, want fade of %v ending at %v", d.Plan, want, tt.duration)
				}
			}
		})
	}
}

func TestRankedPlannerExplicitRanges(t *testing.T) {
	cfg := config.Default()
	p := NewRankedPlanner(cfg, nil)
	a := &Track{Result: gridResult(120, 120)}
	b := &Track{Result: gridResult(120, 120)}
	ra := analysis.TimeRange{Start: 70, End: 80}
	rb := analysis.TimeRange{Start: 10, End: 20}

	d, err := p.Plan(a, b, Request{Crossfade: 4, RangeA: &ra, RangeB: &rb})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !ra.ContainsSpan(d.Plan.FadeStart, 4) || !rb.ContainsSpan(d.Plan.EntryOffsetB, 4) {
		t.Errorf("Plan = %+v outside requested ranges", d.Plan)
	}
}

func TestGuardrailPlanner(t *testing.T) {
	cfg := config.Default()
	p := NewGuardrailPlanner(cfg.Planner)

	a := &Track{Result: withChroma(gridResult(120, 180), 3), Boundaries: []float64{64, 120, 170}}
	b := &Track{Result: withChroma(gridResult(120, 180), 4), Boundaries: []float64{32}}

	d, err := p.Plan(a, b, Request{Crossfade: 8})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if d.Fallback {
		t.Fatal("Fallback = true, want false")
	}
	// last boundary inside [30, 157] is 120, refined within two beats
	if math.Abs(d.Plan.FadeStart-120) > 1+1e-9 {
		t.Errorf("FadeStart = %v, want within 1 s of 120", d.Plan.FadeStart)
	}
	if d.Plan.FadeDur != 8 {
		t.Errorf("FadeDur = %v, want 8", d.Plan.FadeDur)
	}
	if !onGrid(d.Plan.EntryOffsetB, b.Result.Beats) {
		t.Errorf("EntryOffsetB = %v, want a beat of B", d.Plan.EntryOffsetB)
	}
	if math.Abs(d.Plan.EntryOffsetB-32) > 8*0.5+1e-9 {
		t.Errorf("EntryOffsetB = %v, want within 8 beats of 32", d.Plan.EntryOffsetB)
	}
}

func oneHot(bin int) []float64 {
	v := make([]float64, 12)
	v[bin] = 1
	return v
}

func TestGuardrailAlignsRepeatedChroma(t *testing.T) {
	cfg := config.Default()
	p := NewGuardrailPlanner(cfg.Planner)

	a := gridResult(120, 120)
	b := gridResult(120, 120)
	a.Chroma = make([][]float64, len(a.Beats))
	for i := range a.Chroma {
		a.Chroma[i] = oneHot(11)
	}
	b.Chroma = make([][]float64, len(b.Beats))
	for i := range b.Chroma {
		b.Chroma[i] = oneHot(11)
	}
	// A's eight beats before beat 100 step through bins 0..7. B holds the
	// first of them twice, then the whole phrase, starting at its anchor.
	for i := 0; i < 8; i++ {
		a.Chroma[92+i] = oneHot(i)
		b.Chroma[22+i] = oneHot(i)
	}
	b.Chroma[20] = oneHot(0)
	b.Chroma[21] = oneHot(0)

	ta := &Track{Result: a}
	tb := &Track{Result: b, Boundaries: []float64{b.Beats[20]}}

	entry, offset := p.entry(ta, tb, a.Beats[100])
	if offset != 2 {
		t.Errorf("offset = %d, want 2", offset)
	}
	if entry != b.Beats[22] {
		t.Errorf("entry = %v, want %v", entry, b.Beats[22])
	}
}

func TestGuardrailFluxSpike(t *testing.T) {
	cfg := config.Default()
	p := NewGuardrailPlanner(cfg.Planner)
	res := gridResult(120, 60)
	res.SpectralFlux = make([]float64, len(res.RMS))
	for i := range res.SpectralFlux {
		res.SpectralFlux[i] = 1
	}
	res.SpectralFlux[res.Frame(40)] = 50

	if got := p.avoidFluxSpike(res, 40); math.Abs(got-39.5) > 1e-9 {
		t.Errorf("avoidFluxSpike(40) = %v, want 39.5", got)
	}
	if got := p.avoidFluxSpike(res, 30); got != 30 {
		t.Errorf("avoidFluxSpike(30) = %v, want 30", got)
	}
}

func TestNewPlannerUnknown(t *testing.T) {
	if _, err := NewPlanner("random", config.Default(), nil); err == nil {
		t.Error("NewPlanner(random) error = nil, want error")
	}
	p, err := NewPlanner("", config.Default(), nil)
	if err != nil {
		t.Fatalf("NewPlanner(\"\"): %v", err)
	}
	if p.Name() != StrategyRanked {
		t.Errorf("Name = %q, want %q", p.Name(), StrategyRanked)
	}
}

func TestPlanMissingAnalysis(t *testing.T) {
	for _, p := range defaultPlanners(t) {
		if _, err := p.Plan(&Track{}, &Track{Result: gridResult(120, 60)}, Request{Crossfade: 8}); err == nil {
			t.Errorf("%s Plan without analysis error = nil, want error", p.Name())
		}
	}
}
