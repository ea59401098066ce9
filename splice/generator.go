package splice

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/structure"
)

// Generator phases, in priority order
const (
	PhaseDownbeat = "downbeat"
	PhaseBoundary = "boundary"
	PhaseBeat     = "beat"
)

// Generator enumerates beat-aligned splice candidates inside two search
// windows.
type Generator struct {
	config   config.SearchConfig
	detector *structure.Detector
	logger   logging.Logger
}

// NewGenerator creates a candidate generator. detector supplies the valley
// test and may be nil, in which case no candidate is flagged as a valley.
func NewGenerator(cfg config.SearchConfig, detector *structure.Detector) *Generator {
	return &Generator{
		config:   cfg,
		detector: detector,
		logger: logging.WithFields(logging.Fields{
			"component": "candidate_generator",
		}),
	}
}

// beatRef is a beat that can host a full crossfade inside its range
type beatRef struct {
	index int
	time  float64
}

// Generate returns deduplicated candidates in priority order: downbeat
// pairs, A boundaries against the nearest B beat, then dense beat pairs.
// Boundary pairs get a reserved share of MaxCandidates and downbeat pairs
// two thirds of the rest; the remainder goes to beat pairs. Phases that
// would overflow their share sample A's beats at an even stride.
// Every candidate satisfies rangeA.ContainsSpan(TA, crossfade) and
// rangeB.ContainsSpan(TB, crossfade). The list is capped at MaxCandidates.
func (g *Generator) Generate(a, b *Track, rangeA, rangeB analysis.TimeRange, crossfade float64) []Candidate {
	logger := g.logger.WithFields(logging.Fields{
		"function":  "Generate",
		"range_a":   []float64{rangeA.Start, rangeA.End},
		"range_b":   []float64{rangeB.Start, rangeB.End},
		"crossfade": crossfade,
	})

	limit := g.config.MaxCandidates
	if limit <= 0 {
		limit = 120
	}
	perBeat := max(1, g.config.PairsPerBeat)
	crossfade = math.Max(0, crossfade)

	admA := admissible(a.Result.Beats, rangeA, crossfade)
	admB := admissible(b.Result.Beats, rangeB, crossfade)
	if len(admA) == 0 || len(admB) == 0 {
		logger.Debug("No admissible beats", logging.Fields{
			"admissible_a": len(admA),
			"admissible_b": len(admB),
		})
		return nil
	}

	boundaryBeatsA := snapBoundaries(a)
	boundaryBeatsB := snapBoundaries(b)

	seen := make(map[key]struct{})
	var out []Candidate
	add := func(ra, rb beatRef, phase string) bool {
		if len(out) >= limit {
			return false
		}
		k := keyOf(ra.time, rb.time)
		if _, ok := seen[k]; ok {
			return true
		}
		seen[k] = struct{}{}
		out = append(out, g.candidate(a, b, ra, rb, boundaryBeatsA, boundaryBeatsB, phase))
		return true
	}

	// pairs adds up to budget as x bs pairs, bs cut to its first perBeat
	// entries and as sampled at an even stride so the whole range is covered
	pairs := func(as, bs []beatRef, budget int, phase string) {
		bs = firstN(bs, perBeat)
		if len(as) == 0 || len(bs) == 0 || budget <= 0 {
			return
		}
		stop := min(limit, len(out)+budget)
		rows := (budget + len(bs) - 1) / len(bs)
		for _, ra := range spread(as, rows) {
			for _, rb := range bs {
				if len(out) >= stop {
					return
				}
				add(ra, rb, phase)
			}
		}
	}

	boundaryRefs := boundaryBeats(a, admA)
	reserved := min(len(boundaryRefs), limit/4)

	// downbeat x downbeat
	pairs(g.downbeats(admA), g.downbeats(admB), max(1, (limit-reserved)*2/3), PhaseDownbeat)

	// boundary in A x nearest B beat
	for _, ra := range boundaryRefs {
		if !add(ra, nearest(admB, ra.time), PhaseBoundary) {
			break
		}
	}

	// beat x beat
	pairs(admA, admB, limit-len(out), PhaseBeat)

	logger.Debug("Candidates generated", logging.Fields{
		"candidates":   len(out),
		"admissible_a": len(admA),
		"admissible_b": len(admB),
	})

	return out
}

func (g *Generator) candidate(a, b *Track, ra, rb beatRef, boundaryA, boundaryB map[int]bool, phase string) Candidate {
	c := Candidate{
		TA:             ra.time,
		TB:             rb.time,
		IsDownbeatA:    isDownbeat(ra.index, g.config.BeatsPerBar),
		IsDownbeatB:    isDownbeat(rb.index, g.config.BeatsPerBar),
		IsStrongOnsetA: g.strongOnset(a.Result, ra.time),
		IsStrongOnsetB: g.strongOnset(b.Result, rb.time),
		FromBoundaryA:  boundaryA[ra.index],
		FromBoundaryB:  boundaryB[rb.index],
		Phase:          phase,
	}
	if g.detector != nil {
		c.IsValleyA = g.detector.IsValley(a.Result, ra.time)
		c.IsValleyB = g.detector.IsValley(b.Result, rb.time)
	}
	return c
}

// strongOnset reports an onset within StrongOnsetWindow of t whose envelope
// value reaches StrongOnsetLevel. Without an envelope any onset counts.
func (g *Generator) strongOnset(res *analysis.Result, t float64) bool {
	w := g.config.StrongOnsetWindow
	lo := sort.SearchFloat64s(res.Onsets, t-w)
	for i := lo; i < len(res.Onsets) && res.Onsets[i] <= t+w; i++ {
		if len(res.OnsetEnvelope) == 0 {
			return true
		}
		f := res.Frame(res.Onsets[i])
		if f < len(res.OnsetEnvelope) && res.OnsetEnvelope[f] >= g.config.StrongOnsetLevel {
			return true
		}
	}
	return false
}

func (g *Generator) downbeats(refs []beatRef) []beatRef {
	var out []beatRef
	for _, r := range refs {
		if isDownbeat(r.index, g.config.BeatsPerBar) {
			out = append(out, r)
		}
	}
	return out
}

// admissible returns the beats whose crossfade window fits inside tr
func admissible(beats []float64, tr analysis.TimeRange, crossfade float64) []beatRef {
	var out []beatRef
	for i, t := range beats {
		if tr.ContainsSpan(t, crossfade) {
			out = append(out, beatRef{index: i, time: t})
		}
	}
	return out
}

// snapBoundaries maps each boundary to the index of its nearest beat
func snapBoundaries(t *Track) map[int]bool {
	out := make(map[int]bool, len(t.Boundaries))
	for _, b := range t.Boundaries {
		if i := t.Result.NearestBeat(b); i >= 0 {
			out[i] = true
		}
	}
	return out
}

// boundaryBeats returns the admissible beats nearest to t's boundaries, in
// boundary order without repeats
func boundaryBeats(t *Track, adm []beatRef) []beatRef {
	var out []beatRef
	seen := make(map[int]bool)
	for _, b := range t.Boundaries {
		i := t.Result.NearestBeat(b)
		if i < 0 || seen[i] {
			continue
		}
		if r, ok := find(adm, i); ok {
			seen[i] = true
			out = append(out, r)
		}
	}
	return out
}

// spread picks n refs at an even stride, keeping the first and the last
func spread(refs []beatRef, n int) []beatRef {
	if n >= len(refs) {
		return refs
	}
	if n <= 1 {
		return refs[:1]
	}
	out := make([]beatRef, n)
	last := float64(len(refs) - 1)
	for k := 0; k < n; k++ {
		out[k] = refs[int(math.Round(float64(k)*last/float64(n-1)))]
	}
	return out
}

func find(refs []beatRef, index int) (beatRef, bool) {
	i := sort.Search(len(refs), func(i int) bool { return refs[i].index >= index })
	if i < len(refs) && refs[i].index == index {
		return refs[i], true
	}
	return beatRef{}, false
}

// nearest returns the ref closest in time to t, earlier on ties
func nearest(refs []beatRef, t float64) beatRef {
	best := refs[0]
	for _, r := range refs[1:] {
		if math.Abs(r.time-t) < math.Abs(best.time-t) {
			best = r
		}
	}
	return best
}

func firstN(refs []beatRef, n int) []beatRef {
	if len(refs) > n {
		return refs[:n]
	}
	return refs
}
