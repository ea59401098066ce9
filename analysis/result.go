// Package analysis turns decoded audio into tempo, beat grid, onsets,
// per-frame energy and optional chroma.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
)

// Result is the per-track analysis consumed by every downstream component.
// It is produced once and never modified afterwards.
type Result struct {
	BPM        float64     `json:"bpm"`
	Beats      []float64   `json:"beats"`           // seconds, ascending
	Onsets     []float64   `json:"onsets"`          // seconds, ascending
	RMS        []float64   `json:"rms"`             // per frame
	HopSec     float64     `json:"hop_sec"`         // frame i sits at i*HopSec
	Chroma     [][]float64 `json:"chroma,omitempty"` // per beat, 12 bins, unit L2 norm
	SampleRate int         `json:"sample_rate"`
	Duration   float64     `json:"duration"`

	OnsetEnvelope []float64 `json:"onset_envelope,omitempty"` // per frame, [0,1]
	SpectralFlux  []float64 `json:"spectral_flux,omitempty"`  // per frame
	Source        string    `json:"source"`                   // extractor that produced it
}

// Minimum and maximum tempo any extractor may report
const (
	MinBPM = 60.0
	MaxBPM = 180.0
)

// Validate checks the contract every extractor must honor
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	if !common.IsFinite(r.BPM) || r.BPM < MinBPM || r.BPM > MaxBPM {
		return fmt.Errorf("bpm %v outside [%v, %v]", r.BPM, MinBPM, MaxBPM)
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", r.SampleRate)
	}
	if !common.IsFinite(r.Duration) || r.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", r.Duration)
	}
	if !common.IsFinite(r.HopSec) || r.HopSec <= 0 {
		return fmt.Errorf("hop must be positive, got %v", r.HopSec)
	}
	if len(r.RMS) == 0 {
		return fmt.Errorf("empty rms envelope")
	}
	if err := checkTimes("beat", r.Beats, r.Duration); err != nil {
		return err
	}
	if err := checkTimes("onset", r.Onsets, r.Duration); err != nil {
		return err
	}
	if r.Chroma != nil {
		if len(r.Chroma) != len(r.Beats) {
			return fmt.Errorf("chroma has %d vectors for %d beats", len(r.Chroma), len(r.Beats))
		}
		for i, v := range r.Chroma {
			if len(v) != 12 {
				return fmt.Errorf("chroma vector %d has %d bins", i, len(v))
			}
		}
	}
	return nil
}

func checkTimes(kind string, times []float64, duration float64) error {
	for i, t := range times {
		if !common.IsFinite(t) || t < 0 || t > duration {
			return fmt.Errorf("%s %d at %v outside [0, %v]", kind, i, t, duration)
		}
		if i > 0 && t < times[i-1] {
			return fmt.Errorf("%s times not ascending at index %d", kind, i)
		}
	}
	return nil
}

// Frame returns the frame index nearest to t, clamped to the RMS envelope
func (r *Result) Frame(t float64) int {
	if len(r.RMS) == 0 {
		return 0
	}
	i := int(math.Round(t / r.HopSec))
	return max(0, min(i, len(r.RMS)-1))
}

// FrameTime returns the time of frame i
func (r *Result) FrameTime(i int) float64 {
	return float64(i) * r.HopSec
}

// RMSAt returns the RMS of the frame nearest to t
func (r *Result) RMSAt(t float64) float64 {
	if len(r.RMS) == 0 {
		return 0
	}
	return r.RMS[r.Frame(t)]
}

// MeanRMS returns the mean RMS of frames whose time lies in [from, to]
func (r *Result) MeanRMS(from, to float64) float64 {
	if len(r.RMS) == 0 || to < from {
		return 0
	}
	lo := int(math.Ceil(from/r.HopSec - 1e-9))
	hi := int(math.Floor(to/r.HopSec+1e-9)) + 1
	if hi <= max(lo, 0) || lo >= len(r.RMS) {
		return r.RMSAt((from + to) / 2)
	}
	return common.MeanRange(r.RMS, lo, hi)
}

// MaxRMS returns the loudest frame's RMS
func (r *Result) MaxRMS() float64 {
	return common.PeakAbs(r.RMS)
}

// OnsetsBetween counts onsets in [from, to]
func (r *Result) OnsetsBetween(from, to float64) int {
	lo := sort.SearchFloat64s(r.Onsets, from)
	hi := sort.Search(len(r.Onsets), func(i int) bool { return r.Onsets[i] > to })
	return max(0, hi-lo)
}

// NearestBeat returns the index of the beat closest to t, -1 without beats
func (r *Result) NearestBeat(t float64) int {
	if len(r.Beats) == 0 {
		return -1
	}
	i := sort.SearchFloat64s(r.Beats, t)
	switch {
	case i == 0:
		return 0
	case i == len(r.Beats):
		return len(r.Beats) - 1
	case t-r.Beats[i-1] <= r.Beats[i]-t:
		return i - 1
	default:
		return i
	}
}

// BeatPeriod returns 60/BPM
func (r *Result) BeatPeriod() float64 {
	if r.BPM <= 0 {
		return 0
	}
	return 60.0 / r.BPM
}

// TimeRange is a search window inside one track. A valid range satisfies
// 0 <= Start <= End <= duration.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// EdgeRange excludes margin seconds at both ends. Tracks shorter than two
// margins collapse to an empty range at their midpoint.
func EdgeRange(duration, margin float64) TimeRange {
	duration = math.Max(0, duration)
	margin = math.Max(0, margin)
	if 2*margin > duration {
		mid := duration / 2
		return TimeRange{Start: mid, End: mid}
	}
	return TimeRange{Start: margin, End: duration - margin}
}

// Valid reports whether the range is ordered and lies within [0, duration]
func (tr TimeRange) Valid(duration float64) bool {
	return tr.Start >= 0 && tr.Start <= tr.End && tr.End <= duration
}

// Contains reports whether t lies in the closed range
func (tr TimeRange) Contains(t float64) bool {
	return t >= tr.Start && t <= tr.End
}

// ContainsSpan reports whether [t, t+length] lies inside the range
func (tr TimeRange) ContainsSpan(t, length float64) bool {
	return t >= tr.Start && t+length <= tr.End
}

// Clamp returns the range intersected with [0, duration], kept ordered
func (tr TimeRange) Clamp(duration float64) TimeRange {
	start := common.Clamp(tr.Start, 0, math.Max(0, duration))
	end := common.Clamp(tr.End, start, math.Max(start, duration))
	return TimeRange{Start: start, End: end}
}

// Length returns End - Start
func (tr TimeRange) Length() float64 {
	return tr.End - tr.Start
}
