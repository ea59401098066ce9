package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RyanBlaney/sonido-splice/algorithms/filters"
)

// Effect names a transition effect layered on top of the blend
type Effect string

const (
	EffectNone          Effect = "none"
	EffectFilterSweep   Effect = "filter_sweep"
	EffectEchoOut       Effect = "echo_out"
	EffectStutter       Effect = "stutter"
	EffectBrake         Effect = "brake"
	EffectSidechainDuck Effect = "sidechain_duck"
	EffectStereoWiden   Effect = "stereo_widen"
	EffectDropCut       Effect = "drop_cut"
)

// Transform is an effect: an additive change to a built graph. Transforms
// add processors, rate lanes or retriggers; they never edit gain lanes.
type Transform interface {
	Effect() Effect
	Apply(g *Graph, sc SpliceContext) error
}

var registry = map[Effect]Transform{
	EffectNone:          noEffect{},
	EffectFilterSweep:   filterSweep{from: 20, to: 2500, q: 0.707},
	EffectEchoOut:       echoOut{beats: 0.75, feedback: 0.45, wet: 0.6},
	EffectStutter:       stutter{slice: 0.25},
	EffectBrake:         brake{floor: 0.02},
	EffectSidechainDuck: sidechainDuck{depth: 0.35, release: 0.6},
	EffectStereoWiden:   stereoWiden{},
	EffectDropCut:       dropCut{gap: 0.25},
}

// Effects lists the registered effects in a stable order
func Effects() []Effect {
	out := make([]Effect, 0, len(registry))
	for e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseEffect maps a name to an Effect. Hyphens and case are ignored and an
// empty name selects EffectNone.
func ParseEffect(name string) (Effect, error) {
	n := Effect(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if n == "" {
		return EffectNone, nil
	}
	if _, ok := registry[n]; !ok {
		return "", fmt.Errorf("unknown effect: %s", name)
	}
	return n, nil
}

// Lookup returns the transform registered for e
func Lookup(e Effect) (Transform, error) {
	t, ok := registry[e]
	if !ok {
		return nil, fmt.Errorf("unknown effect: %s", e)
	}
	return t, nil
}

// ApplyEffect looks up e and applies it to g
func ApplyEffect(g *Graph, e Effect, sc SpliceContext) error {
	t, err := Lookup(e)
	if err != nil {
		return &RenderError{Stage: "effect", Err: err}
	}
	if err := t.Apply(g, sc); err != nil {
		return &RenderError{Stage: "effect", Err: fmt.Errorf("%s: %w", e, err)}
	}
	return nil
}

func source(g *Graph, name string) (*Source, error) {
	s := g.Source(name)
	if s == nil {
		return nil, fmt.Errorf("graph has no source %q", name)
	}
	return s, nil
}

type noEffect struct{}

func (noEffect) Effect() Effect { return EffectNone }
func (noEffect) Apply(g *Graph, sc SpliceContext) error { return nil }

// filterSweep raises a high-pass on A from `from` to `to` Hz across the fade
type filterSweep struct {
	from, to, q float64
}

func (filterSweep) Effect() Effect { return EffectFilterSweep }

func (f filterSweep) Apply(g *Graph, sc SpliceContext) error {
	a, err := source(g, SourceA)
	if err != nil {
		return err
	}
	lane := NewAutomation("cutoff_a", f.from).
		Set(sc.FadeStart, f.from).
		Add(sc.FadeEnd(), f.to, Exponential)
	a.AddProcessor(Processor{Kind: FilterProcessor, Filter: filters.Highpass, Q: f.q, Lane: lane})
	return nil
}

// echoOut feeds A into a delay of `beats` beats whose wet level rises to
// `wet` over the fade and stays there so the tail rings out.
type echoOut struct {
	beats, feedback, wet float64
}

func (echoOut) Effect() Effect { return EffectEchoOut }

func (e echoOut) Apply(g *Graph, sc SpliceContext) error {
	a, err := source(g, SourceA)
	if err != nil {
		return err
	}
	lane := NewAutomation("echo_wet_a", 0).
		Set(sc.FadeStart, 0).
		RampTo(sc.FadeEnd(), e.wet)
	a.AddProcessor(Processor{
		Kind:      DelayProcessor,
		DelayTime: e.beats * sc.BeatPeriod(),
		Feedback:  e.feedback,
		Lane:      lane,
	})
	return nil
}

// stutter loops `slice`-beat pieces of A over the last beat before the
// fade ends.
type stutter struct {
	slice float64
}

func (stutter) Effect() Effect { return EffectStutter }

func (s stutter) Apply(g *Graph, sc SpliceContext) error {
	a, err := source(g, SourceA)
	if err != nil {
		return err
	}
	period := sc.BeatPeriod()
	to := sc.FadeEnd()
	from := math.Max(sc.FadeStart, to-period)
	if to <= from {
		return nil
	}
	a.Retrigger = &Retrigger{From: from, To: to, Slice: s.slice * period}
	return nil
}

// brake slows A toward `floor` times its speed over the second half of the
// fade.
type brake struct {
	floor float64
}

func (brake) Effect() Effect { return EffectBrake }

func (b brake) Apply(g *Graph, sc SpliceContext) error {
	a, err := source(g, SourceA)
	if err != nil {
		return err
	}
	from := sc.FadeStart + sc.FadeDur/2
	a.RateLane = NewAutomation("rate_a", a.Rate).
		Set(from, a.Rate).
		RampTo(sc.FadeEnd(), b.floor*a.Rate)
	return nil
}

// sidechainDuck dips B to `depth` on each of A's beats in the fade and
// releases it over `release` of a beat.
type sidechainDuck struct {
	depth, release float64
}

func (sidechainDuck) Effect() Effect { return EffectSidechainDuck }

func (d sidechainDuck) Apply(g *Graph, sc SpliceContext) error {
	b, err := source(g, SourceB)
	if err != nil {
		return err
	}
	period := sc.BeatPeriod()
	beats := sc.BeatsA
	if len(beats) == 0 {
		for t := sc.FadeStart; t < sc.FadeEnd(); t += period {
			beats = append(beats, t)
		}
	}

	lane := NewAutomation("duck_b", 1)
	attack := math.Min(0.01, period/10)
	for _, t := range beats {
		if t < sc.FadeStart || t >= sc.FadeEnd() {
			continue
		}
		lane.Set(t, 1).
			RampTo(t+attack, d.depth).
			RampTo(t+d.release*period, 1)
	}
	b.AddProcessor(Processor{Kind: GainProcessor, Lane: lane})
	return nil
}

// stereoWiden opens B from mono to its full stereo image across the fade
type stereoWiden struct{}

func (stereoWiden) Effect() Effect { return EffectStereoWiden }

func (stereoWiden) Apply(g *Graph, sc SpliceContext) error {
	b, err := source(g, SourceB)
	if err != nil {
		return err
	}
	lane := NewAutomation("width_b", 0).
		Set(sc.FadeStart, 0).
		RampTo(sc.FadeEnd(), 1)
	b.AddProcessor(Processor{Kind: WidthProcessor, Lane: lane})
	return nil
}

// dropCut mutes A `gap` beats before the fade end and holds B silent until
// the fade end, so B lands on the drop.
type dropCut struct {
	gap float64
}

func (dropCut) Effect() Effect { return EffectDropCut }

func (d dropCut) Apply(g *Graph, sc SpliceContext) error {
	a, err := source(g, SourceA)
	if err != nil {
		return err
	}
	b, err := source(g, SourceB)
	if err != nil {
		return err
	}
	drop := sc.FadeEnd()
	mute := math.Max(sc.FadeStart, drop-d.gap*sc.BeatPeriod())
	a.AddProcessor(Processor{Kind: GainProcessor, Lane: NewAutomation("gate_a", 1).Set(mute, 0)})
	b.AddProcessor(Processor{Kind: GainProcessor, Lane: NewAutomation("gate_b", 0).Set(drop, 1)})
	return nil
}
