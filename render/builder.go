package render

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/blend"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/splice"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// SpliceContext is what effects see of the chosen splice
type SpliceContext struct {
	FadeStart    float64   `json:"fade_start"`
	FadeDur      float64   `json:"fade_dur"`
	EntryOffsetB float64   `json:"entry_offset_b"`
	BPMA         float64   `json:"bpm_a"`
	BPMB         float64   `json:"bpm_b"`
	Rate         float64   `json:"rate"` // B playback rate
	BeatsA       []float64 `json:"beats_a,omitempty"`
	SampleRate   int       `json:"sample_rate"`
}

// FadeEnd is the timeline time at which the fade completes
func (sc SpliceContext) FadeEnd() float64 {
	return sc.FadeStart + sc.FadeDur
}

// BeatPeriod is A's beat length in seconds, 0.5 s when the tempo is unknown
func (sc SpliceContext) BeatPeriod() float64 {
	if sc.BPMA <= 0 {
		return 0.5
	}
	return 60 / sc.BPMA
}

// Options select what Build produces
type Options struct {
	Preview bool
	Blend   blend.Mode
	BPMA    float64
	BPMB    float64
	BeatsA  []float64
}

// Builder lays both tracks on a timeline and materializes the blend
// envelope as gain automation.
type Builder struct {
	config config.RenderConfig
	logger logging.Logger
}

// NewBuilder creates a graph builder
func NewBuilder(cfg config.RenderConfig) *Builder {
	return &Builder{
		config: cfg,
		logger: logging.WithFields(logging.Fields{
			"component": "graph_builder",
		}),
	}
}

// TempoRatio returns B's playback rate bpmA/bpmB clamped to
// [MinRate, MaxRate]. Unknown tempos play B at its own speed.
func (b *Builder) TempoRatio(bpmA, bpmB float64) float64 {
	if bpmA <= 0 || bpmB <= 0 || !common.IsFinite(bpmA/bpmB) {
		return 1
	}
	return common.Clamp(bpmA/bpmB, b.config.MinRate, b.config.MaxRate)
}

// Window returns the timeline span to render. A preview is PreviewPre
// seconds before the fade start to PreviewPost after it. A full render
// ends FullTail seconds after the fade or where B runs out, and starts no
// more than FullCap seconds before that.
func (b *Builder) Window(plan splice.Plan, durB, rate float64, preview bool) (float64, float64) {
	if preview {
		return plan.FadeStart - b.config.PreviewPre, plan.FadeStart + b.config.PreviewPost
	}
	fadeEnd := plan.FadeStart + plan.FadeDur
	start := math.Max(0, fadeEnd+b.config.FullTail-b.config.FullCap)
	bEnd := plan.FadeStart + math.Max(0, durB-plan.EntryOffsetB)/rate
	end := math.Min(math.Max(bEnd, fadeEnd), start+b.config.FullCap)
	if end <= start {
		end = start + math.Max(plan.FadeDur, 1)
	}
	return start, end
}

// Build creates the graph for one render. Effects are applied afterwards
// with ApplyEffect.
func (b *Builder) Build(trackA, trackB *transcode.AudioData, plan splice.Plan, opts Options) (*Graph, SpliceContext, error) {
	if trackA == nil || trackB == nil {
		return nil, SpliceContext{}, &RenderError{Stage: "build", Err: fmt.Errorf("missing source audio")}
	}
	if !common.IsFinite(plan.FadeStart) || !common.IsFinite(plan.FadeDur) || !common.IsFinite(plan.EntryOffsetB) || plan.FadeDur < 0 {
		return nil, SpliceContext{}, &RenderError{Stage: "build", Err: fmt.Errorf("invalid plan %+v", plan)}
	}

	mode, err := blend.ParseMode(string(opts.Blend))
	if err != nil {
		return nil, SpliceContext{}, &RenderError{Stage: "build", Err: err}
	}
	env, err := blend.New(mode)
	if err != nil {
		return nil, SpliceContext{}, &RenderError{Stage: "build", Err: err}
	}

	rate := b.TempoRatio(opts.BPMA, opts.BPMB)
	start, end := b.Window(plan, trackB.Seconds(), rate, opts.Preview)

	interp := Linear
	if env.Mode == blend.Cut {
		interp = Step
	}
	points := max(2, b.config.AutomationPoints)

	gainA := NewAutomation("gain_a", env.A(0))
	gainB := NewAutomation("gain_b", env.B(0))
	if plan.FadeDur > 0 {
		gainA.Curve(plan.FadeStart, plan.FadeDur, points, interp, env.A)
		gainB.Curve(plan.FadeStart, plan.FadeDur, points, interp, env.B)
	} else {
		gainA.Set(plan.FadeStart, env.A(1))
		gainB.Set(plan.FadeStart, env.B(1))
	}

	g := &Graph{
		SampleRate: trackA.SampleRate,
		Channels:   2,
		Start:      start,
		End:        end,
		Sources: []*Source{
			{
				Name:  SourceA,
				Audio: trackA,
				Rate:  1,
				Gain:  gainA,
			},
			{
				Name:   SourceB,
				Audio:  trackB,
				Start:  plan.FadeStart,
				Offset: plan.EntryOffsetB,
				Rate:   rate,
				Gain:   gainB,
			},
		},
	}

	sc := SpliceContext{
		FadeStart:    plan.FadeStart,
		FadeDur:      plan.FadeDur,
		EntryOffsetB: plan.EntryOffsetB,
		BPMA:         opts.BPMA,
		BPMB:         opts.BPMB,
		Rate:         rate,
		BeatsA:       opts.BeatsA,
		SampleRate:   trackA.SampleRate,
	}

	b.logger.Debug("Graph built", logging.Fields{
		"preview":    opts.Preview,
		"blend":      string(env.Mode),
		"rate":       rate,
		"window":     []float64{start, end},
		"fade_start": plan.FadeStart,
		"fade_dur":   plan.FadeDur,
	})

	return g, sc, nil
}
