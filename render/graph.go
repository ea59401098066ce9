// Package render builds and executes the offline mix of two tracks.
package render

import (
	"fmt"

	"github.com/RyanBlaney/sonido-splice/algorithms/filters"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// Source names
const (
	SourceA = "a"
	SourceB = "b"
)

// ProcessorKind enumerates the processors a source chain may carry
type ProcessorKind int

const (
	FilterProcessor ProcessorKind = iota
	DelayProcessor
	GainProcessor
	WidthProcessor
)

func (k ProcessorKind) String() string {
	switch k {
	case FilterProcessor:
		return "filter"
	case DelayProcessor:
		return "delay"
	case GainProcessor:
		return "gain"
	case WidthProcessor:
		return "width"
	default:
		return "unknown"
	}
}

// Processor is a spec for one stage after the blend gain. Which fields are
// read depends on Kind:
//
//	FilterProcessor: Filter, Q, Lane (cutoff in Hz)
//	DelayProcessor:  DelayTime, Feedback, Lane (wet level)
//	GainProcessor:   Lane (linear gain)
//	WidthProcessor:  Lane (0 = mono, 1 = unchanged stereo)
type Processor struct {
	Kind      ProcessorKind      `json:"kind"`
	Filter    filters.BiquadType `json:"filter,omitempty"`
	Q         float64            `json:"q,omitempty"`
	DelayTime float64            `json:"delay_time,omitempty"` // seconds
	Feedback  float64            `json:"feedback,omitempty"`
	Lane      *Automation        `json:"lane"`
}

// Retrigger replays a Slice-long piece of the source over and over while
// the timeline is inside [From, To).
type Retrigger struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Slice float64 `json:"slice"`
}

// Source is one track placed on the timeline. At timeline time Start it is
// Offset seconds into its buffer and advances Rate buffer seconds per
// timeline second, or RateLane when set.
type Source struct {
	Name       string               `json:"name"`
	Audio      *transcode.AudioData `json:"-"`
	Start      float64              `json:"start"`
	Offset     float64              `json:"offset"`
	Rate       float64              `json:"rate"`
	RateLane   *Automation          `json:"rate_lane,omitempty"`
	Gain       *Automation          `json:"gain"` // blend envelope, effects leave it alone
	Processors []Processor          `json:"processors,omitempty"`
	Retrigger  *Retrigger           `json:"retrigger,omitempty"`
}

// AddProcessor appends a stage to the source chain
func (s *Source) AddProcessor(p Processor) {
	s.Processors = append(s.Processors, p)
}

// Graph is one render: the sources, their automation and the timeline
// window to render. It is owned by a single render call.
type Graph struct {
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	Start      float64   `json:"start"` // timeline seconds
	End        float64   `json:"end"`
	Sources    []*Source `json:"sources"`
}

// Source returns the named source, nil when absent
func (g *Graph) Source(name string) *Source {
	for _, s := range g.Sources {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Frames returns the number of output frames the graph renders
func (g *Graph) Frames() int {
	return framesFor(g.End-g.Start, g.SampleRate)
}

// Validate checks that the graph can be scheduled
func (g *Graph) Validate() error {
	if g.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", g.SampleRate)
	}
	if g.Channels != 1 && g.Channels != 2 {
		return fmt.Errorf("unsupported channel count %d", g.Channels)
	}
	if !(g.End > g.Start) {
		return fmt.Errorf("empty render window [%v, %v]", g.Start, g.End)
	}
	for _, s := range g.Sources {
		if s.Audio == nil || s.Audio.SampleRate <= 0 || s.Audio.Channels <= 0 {
			return fmt.Errorf("source %s has no audio", s.Name)
		}
		if s.Rate <= 0 && s.RateLane == nil {
			return fmt.Errorf("source %s has non-positive rate %v", s.Name, s.Rate)
		}
		if s.Gain == nil {
			return fmt.Errorf("source %s has no gain lane", s.Name)
		}
		for _, p := range s.Processors {
			if p.Lane == nil {
				return fmt.Errorf("source %s: %s processor without automation", s.Name, p.Kind)
			}
			if p.Kind == DelayProcessor && p.DelayTime <= 0 {
				return fmt.Errorf("source %s: delay time must be positive", s.Name)
			}
		}
		if r := s.Retrigger; r != nil && (r.Slice <= 0 || r.To < r.From) {
			return fmt.Errorf("source %s: invalid retrigger %+v", s.Name, *r)
		}
	}
	return nil
}
