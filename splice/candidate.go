// Package splice decides where track A is left and track B is entered.
package splice

import (
	"errors"
	"math"

	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/structure"
)

// ErrNoCandidates is returned when no admissible splice exists and the
// fallback cannot produce a non-negative fade either.
var ErrNoCandidates = errors.New("no splice candidates")

// Track bundles one track's analysis with its detected boundaries
type Track struct {
	Result     *analysis.Result
	Boundaries []float64
}

// NewTrack builds a Track from an analysis and an optional segmentation
func NewTrack(res *analysis.Result, seg *structure.Segmentation) *Track {
	t := &Track{Result: res}
	if seg != nil {
		t.Boundaries = seg.Boundaries
	}
	return t
}

// Duration of the underlying track
func (t *Track) Duration() float64 {
	if t == nil || t.Result == nil {
		return 0
	}
	return t.Result.Duration
}

// isDownbeat reports whether beat i opens a bar
func isDownbeat(i, beatsPerBar int) bool {
	if beatsPerBar <= 1 {
		return true
	}
	return i%beatsPerBar == 0
}

// Candidate is one (tA, tB) splice point with the flags the scorer reads
type Candidate struct {
	TA             float64 `json:"t_a"`
	TB             float64 `json:"t_b"`
	IsDownbeatA    bool    `json:"is_downbeat_a"`
	IsDownbeatB    bool    `json:"is_downbeat_b"`
	IsStrongOnsetA bool    `json:"is_strong_onset_a"`
	IsStrongOnsetB bool    `json:"is_strong_onset_b"`
	IsValleyA      bool    `json:"is_valley_a"`
	IsValleyB      bool    `json:"is_valley_b"`
	FromBoundaryA  bool    `json:"from_boundary_a"`
	FromBoundaryB  bool    `json:"from_boundary_b"`
	Phase          string  `json:"phase"` // generator pass that produced it
}

// Subscores are the raw terms of the score before weighting
type Subscores struct {
	Downbeat    float64 `json:"downbeat"`
	EnergyDropA float64 `json:"energy_drop_a"`
	EnergyRiseB float64 `json:"energy_rise_b"`
	Energy      float64 `json:"energy"`
	Tempo       float64 `json:"tempo"`
	Valley      float64 `json:"valley"`
	Boundary    float64 `json:"boundary"`
	OnsetClash  float64 `json:"onset_clash"`
	EdgePenalty float64 `json:"edge_penalty"`
}

// ScoredCandidate pairs a candidate with its score
type ScoredCandidate struct {
	Candidate
	Score     float64   `json:"score"`
	Subscores Subscores `json:"subscores"`
}

// key identifies a candidate by its millisecond-rounded times
type key struct {
	a, b int64
}

func keyOf(tA, tB float64) key {
	return key{a: int64(math.Round(tA * 1000)), b: int64(math.Round(tB * 1000))}
}

// Plan is the chosen splice
type Plan struct {
	FadeStart    float64 `json:"fade_start"`     // seconds into A
	FadeDur      float64 `json:"fade_dur"`       // seconds
	EntryOffsetB float64 `json:"entry_offset_b"` // seconds into B at FadeStart
}

// Decision is what a Planner returns
type Decision struct {
	Plan     Plan              `json:"plan"`
	Strategy string            `json:"strategy"`
	Fallback bool              `json:"fallback"`         // fixed fade near the end of A was used
	Margin   float64           `json:"margin,omitempty"` // edge exclusion that produced the candidates
	Ranked   []ScoredCandidate `json:"ranked,omitempty"`
}

// Top returns the best candidate, nil when there is no ranking
func (d *Decision) Top() *ScoredCandidate {
	if d == nil || len(d.Ranked) == 0 {
		return nil
	}
	return &d.Ranked[0]
}
