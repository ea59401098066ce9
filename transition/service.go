// Package transition runs one two-track transition request end to end:
// decode, analyze, plan, render and encode.
package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/blend"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/render"
	"github.com/RyanBlaney/sonido-splice/splice"
	"github.com/RyanBlaney/sonido-splice/structure"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// ErrInvalidRequest wraps parameter errors found before any work is done
var ErrInvalidRequest = errors.New("invalid request")

// ErrDecoderUnavailable is returned for non-WAV input when ffmpeg or ffprobe
// could not be executed at startup
var ErrDecoderUnavailable = errors.New("ffmpeg decoder unavailable")

// decoderProbeTimeout bounds the startup ffmpeg/ffprobe check
const decoderProbeTimeout = 10 * time.Second

// DecodeError reports input that is not decodable audio
type DecodeError struct {
	Track string // "a" or "b"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode track %s: %v", e.Track, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Request is one transition between two encoded tracks
type Request struct {
	A, B        []byte
	PathA       string // read from disk when set, instead of A
	PathB       string // read from disk when set, instead of B
	Crossfade   float64 // seconds, 0 uses the configured default
	Effect      string
	Blend       string
	Preview     bool
	Planner     string // "ranked" or "guardrail", empty uses the configured strategy
	Diagnostics bool
}

// Metrics describe a finished render
type Metrics struct {
	RequestID       string  `json:"request_id"`
	BPMA            float64 `json:"bpm_a"`
	BPMB            float64 `json:"bpm_b"`
	PeakDB          float64 `json:"peak_db"`
	TA              float64 `json:"t_a"`
	TB              float64 `json:"t_b"`
	DurationA       float64 `json:"duration_a"`
	DurationB       float64 `json:"duration_b"`
	RenderedSeconds float64 `json:"rendered_seconds"`
	Crossfade       float64 `json:"crossfade"` // effective fade length
	Rate            float64 `json:"rate"`      // B playback rate
	Strategy        string  `json:"strategy"`
	Fallback        bool    `json:"fallback"`
	Effect          string  `json:"effect"`
	Blend           string  `json:"blend"`
	AnalysisA       string  `json:"analysis_a"` // extractor that produced A's analysis
	AnalysisB       string  `json:"analysis_b"`
}

// TrackDiagnostics is one track's detected grid
type TrackDiagnostics struct {
	BPM        float64   `json:"bpm"`
	Beats      []float64 `json:"beats"`
	Onsets     []float64 `json:"onsets"`
	Boundaries []float64 `json:"boundaries"`
	Source     string    `json:"source"`
}

// Diagnostics expose the ranked candidate list and both grids
type Diagnostics struct {
	Candidates []splice.ScoredCandidate `json:"candidates"`
	A          TrackDiagnostics         `json:"a"`
	B          TrackDiagnostics         `json:"b"`
}

// Result is the encoded transition plus metrics
type Result struct {
	WAV         []byte       `json:"-"`
	Metrics     Metrics      `json:"metrics"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Service owns the long-lived parts of the pipeline. It is safe for
// concurrent use; each request owns its buffers, analyses and graph.
type Service struct {
	config   config.Config
	decoder  *transcode.Decoder
	pipeline *analysis.Pipeline
	detector *structure.Detector
	builder  *render.Builder
	renderer *render.Renderer
	sem      *semaphore.Weighted
	logger   logging.Logger

	ffmpegErr error // non-nil when only native WAV input can be decoded
}

// NewService validates cfg and builds the pipeline
func NewService(cfg config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	decoderCfg := cfg.Decoder
	s := &Service{
		config:   cfg,
		decoder:  transcode.NewDecoder(&decoderCfg),
		pipeline: analysis.NewPipeline(cfg),
		detector: structure.NewDetector(cfg.Structure),
		builder:  render.NewBuilder(cfg.Render),
		renderer: render.NewRenderer(cfg.Render),
		sem:      semaphore.NewWeighted(int64(max(1, cfg.Service.MaxInFlight))),
		logger: logging.WithFields(logging.Fields{
			"component": "transition_service",
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), decoderProbeTimeout)
	defer cancel()
	if err := s.decoder.CheckFFmpegAvailability(ctx); err != nil {
		s.ffmpegErr = err
		s.logger.Warn("ffmpeg unavailable, only WAV input can be decoded", logging.Fields{
			"error": err.Error(),
		})
	}
	return s, nil
}

// Close releases the persistent analysis cache
func (s *Service) Close() error {
	return s.pipeline.Close()
}

// BackendStatus reports the analysis backend lifecycle state
func (s *Service) BackendStatus() analysis.BackendStatus {
	return s.pipeline.Managed.Status()
}

// ClampCrossfade bounds the requested crossfade. Zero or negative requests
// take the configured default.
func (s *Service) ClampCrossfade(seconds float64) float64 {
	rc := s.config.Render
	if seconds <= 0 || !common.IsFinite(seconds) {
		seconds = rc.Crossfade
	}
	return common.Clamp(seconds, rc.MinCrossfade, rc.MaxCrossfade)
}

// params are the validated request parameters
type params struct {
	crossfade float64
	effect    render.Effect
	blend     blend.Mode
	planner   splice.Planner
}

func (s *Service) params(req Request) (params, error) {
	effectName := req.Effect
	if effectName == "" {
		effectName = s.config.Render.Effect
	}
	effect, err := render.ParseEffect(effectName)
	if err != nil {
		return params{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	blendName := req.Blend
	if blendName == "" {
		blendName = s.config.Render.Blend
	}
	mode, err := blend.ParseMode(blendName)
	if err != nil {
		return params{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	strategy := req.Planner
	if strategy == "" {
		strategy = s.config.Planner.Strategy
	}
	planner, err := splice.NewPlanner(strategy, s.config, s.detector)
	if err != nil {
		return params{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return params{
		crossfade: s.ClampCrossfade(req.Crossfade),
		effect:    effect,
		blend:     mode,
		planner:   planner,
	}, nil
}

// Transition runs one request. It waits for an admission slot, so at most
// MaxInFlight requests render at once. On error no output is returned.
func (s *Service) Transition(ctx context.Context, req Request) (*Result, error) {
	p, err := s.params(req)
	if err != nil {
		return nil, err
	}

	if timeout := s.config.Service.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	ctx = logging.ContextWithFields(ctx, logging.Fields{"request_id": requestID})
	logger := s.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":  "Transition",
		"preview":   req.Preview,
		"effect":    string(p.effect),
		"blend":     string(p.blend),
		"planner":   p.planner.Name(),
		"crossfade": p.crossfade,
	})

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for render slot: %w", err)
	}
	defer s.sem.Release(1)

	started := time.Now()
	logger.Info("Transition started")

	audioA, audioB, err := s.decodePair(ctx, req)
	if err != nil {
		logger.Error(err, "Decode failed")
		return nil, err
	}

	resA, resB, err := s.analyzePair(ctx, audioA, audioB)
	if err != nil {
		logger.Error(err, "Analysis failed")
		return nil, err
	}

	segA := s.detector.Detect(resA)
	segB := s.detector.Detect(resB)
	trackA := splice.NewTrack(resA, segA)
	trackB := splice.NewTrack(resB, segB)

	decision, err := p.planner.Plan(trackA, trackB, splice.Request{Crossfade: p.crossfade})
	if err != nil {
		logger.Error(err, "Planning failed")
		return nil, err
	}

	graph, sc, err := s.builder.Build(audioA, audioB, decision.Plan, render.Options{
		Preview: req.Preview,
		Blend:   p.blend,
		BPMA:    resA.BPM,
		BPMB:    resB.BPM,
		BeatsA:  resA.Beats,
	})
	if err != nil {
		return nil, err
	}
	if err := render.ApplyEffect(graph, p.effect, sc); err != nil {
		return nil, err
	}

	out, err := s.renderer.Render(ctx, graph)
	if err != nil {
		logger.Error(err, "Render failed")
		return nil, err
	}

	wav, err := transcode.EncodeWAV(out.Audio)
	if err != nil {
		return nil, &render.RenderError{Stage: "encode", Err: err}
	}

	result := &Result{
		WAV: wav,
		Metrics: Metrics{
			RequestID:       requestID,
			BPMA:            resA.BPM,
			BPMB:            resB.BPM,
			PeakDB:          out.PeakDB,
			TA:              decision.Plan.FadeStart,
			TB:              decision.Plan.EntryOffsetB,
			DurationA:       resA.Duration,
			DurationB:       resB.Duration,
			RenderedSeconds: out.Seconds,
			Crossfade:       decision.Plan.FadeDur,
			Rate:            sc.Rate,
			Strategy:        decision.Strategy,
			Fallback:        decision.Fallback,
			Effect:          string(p.effect),
			Blend:           string(p.blend),
			AnalysisA:       resA.Source,
			AnalysisB:       resB.Source,
		},
	}
	if req.Diagnostics {
		result.Diagnostics = &Diagnostics{
			Candidates: decision.Ranked,
			A:          trackDiagnostics(resA, segA),
			B:          trackDiagnostics(resB, segB),
		}
	}

	logger.Info("Transition complete", logging.Fields{
		"t_a":         result.Metrics.TA,
		"t_b":         result.Metrics.TB,
		"bpm_a":       resA.BPM,
		"bpm_b":       resB.BPM,
		"peak_db":     out.PeakDB,
		"seconds":     out.Seconds,
		"wav_bytes":   len(wav),
		"fallback":    decision.Fallback,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	return result, nil
}

// Analyze decodes and analyzes a single track for diagnostics
func (s *Service) Analyze(ctx context.Context, data []byte) (*analysis.Result, *structure.Segmentation, error) {
	audio, err := s.decode(ctx, "a", data, "")
	if err != nil {
		return nil, nil, err
	}
	res, err := s.pipeline.Extractor.Analyze(ctx, audio)
	if err != nil {
		return nil, nil, err
	}
	return res, s.detector.Detect(res), nil
}

// decode reads path when set, otherwise data. Encoded bytes other than WAV
// are refused up front when the ffmpeg tools were missing at startup.
func (s *Service) decode(ctx context.Context, track string, data []byte, path string) (*transcode.AudioData, error) {
	var audio *transcode.AudioData
	var err error
	if path != "" {
		audio, err = s.decoder.DecodeFile(ctx, path)
	} else {
		if len(data) > 0 && !transcode.IsWAV(data) && s.ffmpegErr != nil {
			return nil, &DecodeError{Track: track, Err: fmt.Errorf("%w: %v", ErrDecoderUnavailable, s.ffmpegErr)}
		}
		audio, err = s.decoder.DecodeBytes(ctx, data)
	}
	if err != nil {
		return nil, &DecodeError{Track: track, Err: err}
	}
	return audio, nil
}

func (s *Service) decodePair(ctx context.Context, req Request) (*transcode.AudioData, *transcode.AudioData, error) {
	var audioA, audioB *transcode.AudioData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		audio, err := s.decode(gctx, "a", req.A, req.PathA)
		audioA = audio
		return err
	})
	g.Go(func() error {
		audio, err := s.decode(gctx, "b", req.B, req.PathB)
		audioB = audio
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return audioA, audioB, nil
}

func (s *Service) analyzePair(ctx context.Context, a, b *transcode.AudioData) (*analysis.Result, *analysis.Result, error) {
	var resA, resB *analysis.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.pipeline.Extractor.Analyze(gctx, a)
		if err != nil {
			return fmt.Errorf("analyze track a: %w", err)
		}
		resA = res
		return nil
	})
	g.Go(func() error {
		res, err := s.pipeline.Extractor.Analyze(gctx, b)
		if err != nil {
			return fmt.Errorf("analyze track b: %w", err)
		}
		resB = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return resA, resB, nil
}

func trackDiagnostics(res *analysis.Result, seg *structure.Segmentation) TrackDiagnostics {
	d := TrackDiagnostics{
		BPM:    res.BPM,
		Beats:  res.Beats,
		Onsets: res.Onsets,
		Source: res.Source,
	}
	if seg != nil {
		d.Boundaries = seg.Boundaries
	}
	return d
}
