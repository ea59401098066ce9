package analysis

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-splice/algorithms/chroma"
	"github.com/RyanBlaney/sonido-splice/algorithms/filters"
	"github.com/RyanBlaney/sonido-splice/algorithms/spectral"
	"github.com/RyanBlaney/sonido-splice/algorithms/temporal"
	"github.com/RyanBlaney/sonido-splice/algorithms/windowing"
	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// Extractor produces a Result from decoded audio
type Extractor interface {
	Analyze(ctx context.Context, audio *transcode.AudioData) (*Result, error)
}

// SourceBasic marks results from the built-in extractor
const SourceBasic = "basic"

// BasicExtractor is the deterministic built-in extractor. It has no
// external dependencies and is the fallback for every other backend.
type BasicExtractor struct {
	config config.AnalysisConfig

	envelope *temporal.Envelope
	onsets   *temporal.OnsetDetection
	tempo    *temporal.TempoEstimation
	grid     *temporal.BeatGrid
	stft     *spectral.STFT
	flux     *spectral.SpectralFlux

	logger logging.Logger
}

// NewBasicExtractor creates the built-in extractor
func NewBasicExtractor(cfg config.AnalysisConfig) *BasicExtractor {
	return &BasicExtractor{
		config:   cfg,
		envelope: temporal.NewEnvelope(),
		onsets:   temporal.NewOnsetDetectionWithThreshold(cfg.OnsetThreshold),
		tempo:    temporal.NewTempoEstimationWithPrior(cfg.TempoPriorWidth),
		grid:     temporal.NewBeatGridWithWindow(cfg.SeedWindow),
		stft:     spectral.NewSTFT(),
		flux:     spectral.NewSpectralFlux(),
		logger: logging.WithFields(logging.Fields{
			"component": "basic_extractor",
		}),
	}
}

// Analyze runs mono mixdown, DC removal, RMS framing, onset envelope,
// tempo, beat grid and onset picking, then chroma and spectral flux when
// enabled.
func (e *BasicExtractor) Analyze(ctx context.Context, audio *transcode.AudioData) (*Result, error) {
	return e.analyze(ctx, audio, nil)
}

// Grid is a tempo, beat grid and onset list supplied by another analyzer
type Grid struct {
	BPM    float64
	Beats  []float64
	Onsets []float64
}

// AnalyzeWithGrid computes energy, chroma and flux like Analyze but takes
// tempo, beats and onsets from grid.
func (e *BasicExtractor) AnalyzeWithGrid(ctx context.Context, audio *transcode.AudioData, grid Grid) (*Result, error) {
	return e.analyze(ctx, audio, &grid)
}

func (e *BasicExtractor) analyze(ctx context.Context, audio *transcode.AudioData, grid *Grid) (*Result, error) {
	if audio == nil || audio.SampleRate <= 0 || audio.Channels <= 0 {
		return nil, fmt.Errorf("invalid audio: missing sample rate or channels")
	}
	if audio.Frames() == 0 {
		return nil, fmt.Errorf("invalid audio: no samples")
	}

	logger := e.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":    "Analyze",
		"sample_rate": audio.SampleRate,
		"frames":      audio.Frames(),
	})

	mono := filters.NewDCRemoval().ProcessBuffer(audio.Mono())
	duration := audio.Seconds()
	hopSec := float64(e.config.HopSize) / float64(audio.SampleRate)

	rms := e.envelope.ComputeRMS(mono, e.config.FrameSize, e.config.HopSize)
	onsetEnv := e.envelope.OnsetEnvelope(rms)

	var bpm float64
	var beats, onsets []float64
	if grid != nil {
		bpm, beats, onsets = grid.BPM, grid.Beats, grid.Onsets
	} else {
		bpm = e.tempo.EstimateBPM(onsetEnv, hopSec)
		beats = e.grid.Build(bpm, e.grid.Seed(onsetEnv, hopSec), duration)
		onsets = e.onsets.Detect(onsetEnv, hopSec)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		BPM:           bpm,
		Beats:         beats,
		Onsets:        onsets,
		RMS:           rms,
		HopSec:        hopSec,
		SampleRate:    audio.SampleRate,
		Duration:      duration,
		OnsetEnvelope: onsetEnv,
		Source:        SourceBasic,
	}

	if e.config.Chroma {
		spec, err := e.stft.ComputeWithWindow(mono, e.config.FrameSize, e.config.HopSize, audio.SampleRate, windowing.NewHann(e.config.FrameSize))
		if err != nil {
			// chroma is optional; downstream handles its absence
			logger.Warn("Spectral analysis failed, continuing without chroma", logging.Fields{
				"error": err.Error(),
			})
		} else {
			cs := chroma.NewChromaSTFT(audio.SampleRate, e.config.TuningFreq)
			result.Chroma = cs.BeatSync(cs.FrameChroma(spec), beats, hopSec, duration)
			result.SpectralFlux = e.flux.Compute(spec.Magnitude)
		}
	}

	logger.Debug("Analysis complete", logging.Fields{
		"bpm":    bpm,
		"beats":  len(beats),
		"onsets": len(onsets),
		"chroma": result.Chroma != nil,
	})

	return result, nil
}
