package render

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/algorithms/filters"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// quantization margin subtracted from the ceiling so 16-bit rounding cannot
// push the encoded peak over it
const quantizationMargin = 2.0 / 32768.0

// MinPeakDB is reported for a silent render
const MinPeakDB = -120.0

// samples between filter coefficient updates during a sweep
const controlInterval = 32

// rate lanes are integrated at this step when seeking
const integrationStep = 1e-3

// RenderError reports a failed build, effect or render
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Output is a finished render
type Output struct {
	Audio        *transcode.AudioData
	PeakDB       float64 // after headroom
	HeadroomGain float64 // 1 when no reduction was needed
	Seconds      float64
}

// Renderer executes graphs offline
type Renderer struct {
	config config.RenderConfig
	logger logging.Logger
}

// NewRenderer creates a renderer
func NewRenderer(cfg config.RenderConfig) *Renderer {
	return &Renderer{
		config: cfg,
		logger: logging.WithFields(logging.Fields{
			"component": "renderer",
		}),
	}
}

// Ceiling returns the linear peak ceiling including the quantization margin
func (r *Renderer) Ceiling() float64 {
	return common.DBToAmplitude(r.config.CeilingDB) - quantizationMargin
}

// Render mixes g into a new buffer. Nothing is returned on failure; a panic
// inside the mix loop is reported as a RenderError.
func (r *Renderer) Render(ctx context.Context, g *Graph) (out *Output, err error) {
	logger := r.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Render",
	})
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &RenderError{Stage: "render", Err: fmt.Errorf("panic: %v", rec)}
			logger.Error(err, "Render panicked")
		}
	}()

	if err := g.Validate(); err != nil {
		return nil, &RenderError{Stage: "schedule", Err: err}
	}

	started := time.Now()
	frames := g.Frames()
	mix := make([]float64, frames*g.Channels)

	voices := make([]*voice, len(g.Sources))
	for i, s := range g.Sources {
		voices[i] = newVoice(s, g)
	}

	sr := float64(g.SampleRate)
	for i := 0; i < frames; i++ {
		if i%g.SampleRate == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &RenderError{Stage: "render", Err: err}
			}
		}
		t := g.Start + float64(i)/sr
		var outL, outR float64
		for _, v := range voices {
			l, rr, ok := v.next(t, i)
			if !ok {
				continue
			}
			outL += l
			outR += rr
		}
		if g.Channels == 1 {
			mix[i] = sanitize((outL + outR) / 2)
		} else {
			mix[2*i] = sanitize(outL)
			mix[2*i+1] = sanitize(outR)
		}
	}

	gain := common.LimitPeak(mix, r.Ceiling())
	peak := common.PeakAbs(mix)

	out = &Output{
		Audio:        transcode.NewAudioData(mix, g.SampleRate, g.Channels),
		PeakDB:       math.Max(MinPeakDB, common.AmplitudeToDB(peak)),
		HeadroomGain: gain,
		Seconds:      float64(frames) / sr,
	}

	logger.Info("Render complete", logging.Fields{
		"seconds":       out.Seconds,
		"peak_db":       out.PeakDB,
		"headroom_gain": gain,
		"elapsed_ms":    time.Since(started).Milliseconds(),
	})
	return out, nil
}

func framesFor(seconds float64, sampleRate int) int {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(sampleRate)))
}

func sanitize(v float64) float64 {
	if !common.IsFinite(v) {
		return 0
	}
	return v
}

// voice is the per-render state of one source
type voice struct {
	src      *Source
	outRate  float64
	srcRate  float64
	channels int

	started bool
	pos     float64 // buffer seconds, used with a rate lane
	trigPos float64 // buffer seconds at Retrigger.From

	biquads [][2]*filters.Biquad
	delays  [][2]*common.DelayLine
}

func newVoice(s *Source, g *Graph) *voice {
	v := &voice{
		src:      s,
		outRate:  float64(g.SampleRate),
		srcRate:  float64(s.Audio.SampleRate),
		channels: s.Audio.Channels,
		biquads:  make([][2]*filters.Biquad, len(s.Processors)),
		delays:   make([][2]*common.DelayLine, len(s.Processors)),
	}
	for i, p := range s.Processors {
		switch p.Kind {
		case FilterProcessor:
			cutoff := v.cutoff(p.Lane.ValueAt(g.Start))
			for ch := 0; ch < 2; ch++ {
				v.biquads[i][ch] = filters.NewBiquad(p.Filter, g.SampleRate, cutoff, p.Q)
			}
		case DelayProcessor:
			size := int(math.Ceil(p.DelayTime*v.outRate)) + 2
			for ch := 0; ch < 2; ch++ {
				v.delays[i][ch] = common.NewDelayLine(size)
			}
		}
	}
	if r := s.Retrigger; r != nil {
		v.trigPos = v.positionAt(r.From)
	}
	if s.RateLane != nil && g.Start > s.Start {
		v.pos = v.positionAt(g.Start)
		v.started = true
	}
	return v
}

// positionAt returns the buffer position at timeline time t, integrating
// the rate lane when there is one.
func (v *voice) positionAt(t float64) float64 {
	s := v.src
	if t <= s.Start {
		return s.Offset
	}
	if s.RateLane == nil {
		return s.Offset + (t-s.Start)*s.Rate
	}
	pos := s.Offset
	for x := s.Start; x < t; x += integrationStep {
		step := math.Min(integrationStep, t-x)
		pos += step * 0.5 * (s.RateLane.ValueAt(x) + s.RateLane.ValueAt(x+step))
	}
	return pos
}

func (v *voice) rateAt(t float64) float64 {
	if v.src.RateLane != nil {
		return v.src.RateLane.ValueAt(t)
	}
	return v.src.Rate
}

// position returns the buffer position for output sample time t
func (v *voice) position(t float64) float64 {
	s := v.src
	if r := s.Retrigger; r != nil && t >= r.From && t < r.To {
		local := math.Mod(t-r.From, r.Slice)
		return v.trigPos + local*v.rateAt(r.From)
	}
	if s.RateLane == nil {
		return s.Offset + (t-s.Start)*s.Rate
	}
	if !v.started {
		v.pos = s.Offset + (t-s.Start)*v.rateAt(s.Start)
		v.started = true
	}
	return v.pos
}

// next renders one stereo frame of this voice at timeline time t
func (v *voice) next(t float64, i int) (float64, float64, bool) {
	s := v.src
	if t < s.Start {
		return 0, 0, false
	}

	frame := v.position(t) * v.srcRate
	l := common.InterleavedAt(s.Audio.PCM, v.channels, 0, frame)
	r := common.InterleavedAt(s.Audio.PCM, v.channels, 1, frame)

	if s.RateLane != nil {
		v.pos += v.rateAt(t) / v.outRate
	}

	g := s.Gain.ValueAt(t)
	l *= g
	r *= g

	for k, p := range s.Processors {
		switch p.Kind {
		case FilterProcessor:
			if i%controlInterval == 0 {
				cutoff := v.cutoff(p.Lane.ValueAt(t))
				v.biquads[k][0].SetCutoff(cutoff)
				v.biquads[k][1].SetCutoff(cutoff)
			}
			l = v.biquads[k][0].Process(l)
			r = v.biquads[k][1].Process(r)
		case DelayProcessor:
			wet := p.Lane.ValueAt(t)
			delay := p.DelayTime * v.outRate
			dl, dr := v.delays[k][0].Read(delay), v.delays[k][1].Read(delay)
			v.delays[k][0].Write(l + p.Feedback*dl)
			v.delays[k][1].Write(r + p.Feedback*dr)
			l += wet * dl
			r += wet * dr
		case GainProcessor:
			gain := p.Lane.ValueAt(t)
			l *= gain
			r *= gain
		case WidthProcessor:
			w := common.Clamp(p.Lane.ValueAt(t), 0, 1)
			mid, side := (l+r)/2, (l-r)/2
			l, r = mid+w*side, mid-w*side
		}
	}
	return l, r, true
}

// cutoff keeps a swept frequency inside the usable band
func (v *voice) cutoff(hz float64) float64 {
	return common.Clamp(hz, 10, 0.45*v.outRate)
}
