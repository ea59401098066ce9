// Package config holds every tunable of the splice pipeline.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-splice/transcode"
)

// Config aggregates the per-component settings
type Config struct {
	LogLevel  string                  `yaml:"log_level"`
	Analysis  AnalysisConfig          `yaml:"analysis"`
	Structure StructureConfig         `yaml:"structure"`
	Search    SearchConfig            `yaml:"search"`
	Weights   Weights                 `yaml:"weights"`
	Planner   PlannerConfig           `yaml:"planner"`
	Render    RenderConfig            `yaml:"render"`
	Cache     CacheConfig             `yaml:"cache"`
	Service   ServiceConfig           `yaml:"service"`
	Decoder   transcode.DecoderConfig `yaml:"decoder"`
}

// AnalysisConfig controls feature extraction
type AnalysisConfig struct {
	FrameSize       int     `yaml:"frame_size"`
	HopSize         int     `yaml:"hop_size"`
	OnsetThreshold  float64 `yaml:"onset_threshold"`
	SeedWindow      float64 `yaml:"seed_window"` // seconds searched for the beat grid anchor
	TempoPriorWidth float64 `yaml:"tempo_prior_width"`
	Chroma          bool    `yaml:"chroma"`
	TuningFreq      float64 `yaml:"tuning_freq"`

	// Backend selects an optional external analyzer: "basic" or "aubio"
	Backend        string        `yaml:"backend"`
	AubioPath      string        `yaml:"aubio_path"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`
}

// StructureConfig controls boundary and valley detection
type StructureConfig struct {
	KernelHalfWidth int     `yaml:"kernel_half_width"` // in beats (frames when no beats)
	PeakThreshold   float64 `yaml:"peak_threshold"`
	UseChroma       bool    `yaml:"use_chroma"`
	ValleyRatio     float64 `yaml:"valley_ratio"`
	ValleyWindow    float64 `yaml:"valley_window"` // seconds, full width
}

// SearchConfig controls candidate generation and scoring windows
type SearchConfig struct {
	EdgeExclusion     float64 `yaml:"edge_exclusion"` // seconds trimmed from each end of both tracks
	MaxCandidates     int     `yaml:"max_candidates"`
	PairsPerBeat      int     `yaml:"pairs_per_beat"` // B beats tried for each A beat
	BeatsPerBar       int     `yaml:"beats_per_bar"`
	StrongOnsetWindow float64 `yaml:"strong_onset_window"`
	StrongOnsetLevel  float64 `yaml:"strong_onset_level"`
	EnergyWindow      float64 `yaml:"energy_window"`
	ClashWindow       float64 `yaml:"clash_window"` // 0 uses the crossfade length
	EdgeInner         float64 `yaml:"edge_inner"`   // full penalty inside this distance from an edge
	EdgeOuter         float64 `yaml:"edge_outer"`   // no penalty beyond this distance
}

// Weights are the scorer coefficients
type Weights struct {
	Downbeat    float64 `yaml:"downbeat" json:"downbeat"`
	Energy      float64 `yaml:"energy" json:"energy"`
	Tempo       float64 `yaml:"tempo" json:"tempo"`
	OnsetClash  float64 `yaml:"onset_clash" json:"onset_clash"`
	Valley      float64 `yaml:"valley" json:"valley"`
	Boundary    float64 `yaml:"boundary" json:"boundary"`
	EdgePenalty float64 `yaml:"edge_penalty" json:"edge_penalty"`
}

// PlannerConfig controls the guardrail planner and strategy selection
type PlannerConfig struct {
	Strategy       string  `yaml:"strategy"` // "ranked" or "guardrail"
	MinIntro       float64 `yaml:"min_intro"`
	MinOutro       float64 `yaml:"min_outro"`
	RefineBeats    int     `yaml:"refine_beats"`
	FluxSpikeRatio float64 `yaml:"flux_spike_ratio"`
	DTWBeats       int     `yaml:"dtw_beats"`
	FallbackFade   float64 `yaml:"fallback_fade"`
}

// RenderConfig controls graph building and the offline render
type RenderConfig struct {
	Crossfade        float64 `yaml:"crossfade"`
	MinCrossfade     float64 `yaml:"min_crossfade"`
	MaxCrossfade     float64 `yaml:"max_crossfade"`
	MinRate          float64 `yaml:"min_rate"`
	MaxRate          float64 `yaml:"max_rate"`
	PreviewPre       float64 `yaml:"preview_pre"`
	PreviewPost      float64 `yaml:"preview_post"`
	FullCap          float64 `yaml:"full_cap"`
	FullTail         float64 `yaml:"full_tail"` // seconds of B kept after the fade in a full render
	CeilingDB        float64 `yaml:"ceiling_db"`
	Blend            string  `yaml:"blend"`
	Effect           string  `yaml:"effect"`
	AutomationPoints int     `yaml:"automation_points"`
}

// CacheConfig controls analysis caching
type CacheConfig struct {
	MemoryEntries int    `yaml:"memory_entries"` // 0 disables the memory tier
	SQLitePath    string `yaml:"sqlite_path"`    // empty disables the persistent tier
}

// ServiceConfig controls request admission
type ServiceConfig struct {
	MaxInFlight    int           `yaml:"max_in_flight"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		LogLevel: "info",
		Analysis: AnalysisConfig{
			FrameSize:       2048,
			HopSize:         512,
			OnsetThreshold:  0.15,
			SeedWindow:      5.0,
			TempoPriorWidth: 1.0,
			Chroma:          true,
			TuningFreq:      440.0,
			Backend:         "basic",
			AubioPath:       "aubio",
			BackendTimeout:  60 * time.Second,
		},
		Structure: StructureConfig{
			KernelHalfWidth: 12,
			PeakThreshold:   0.3,
			UseChroma:       false,
			ValleyRatio:     0.85,
			ValleyWindow:    0.6,
		},
		Search: SearchConfig{
			EdgeExclusion:     15.0,
			MaxCandidates:     120,
			PairsPerBeat:      8,
			BeatsPerBar:       4,
			StrongOnsetWindow: 0.07,
			StrongOnsetLevel:  0.5,
			EnergyWindow:      2.0,
			ClashWindow:       0,
			EdgeInner:         15.0,
			EdgeOuter:         30.0,
		},
		Weights: DefaultWeights(),
		Planner: PlannerConfig{
			Strategy:       "ranked",
			MinIntro:       30.0,
			MinOutro:       15.0,
			RefineBeats:    2,
			FluxSpikeRatio: 2.0,
			DTWBeats:       8,
			FallbackFade:   4.0,
		},
		Render: RenderConfig{
			Crossfade:        8.0,
			MinCrossfade:     3.0,
			MaxCrossfade:     24.0,
			MinRate:          0.98,
			MaxRate:          1.02,
			PreviewPre:       15.0,
			PreviewPost:      15.0,
			FullCap:          180.0,
			FullTail:         30.0,
			CeilingDB:        -0.3,
			Blend:            "equal_power",
			Effect:           "none",
			AutomationPoints: 64,
		},
		Cache: CacheConfig{
			MemoryEntries: 32,
		},
		Service: ServiceConfig{
			MaxInFlight:    max(1, runtime.NumCPU()/2),
			RequestTimeout: 5 * time.Minute,
		},
		Decoder: *transcode.DefaultDecoderConfig(),
	}
}

// DefaultWeights returns the scorer's default coefficients
func DefaultWeights() Weights {
	return Weights{
		Downbeat:    1.0,
		Energy:      0.5,
		Tempo:       1.0,
		OnsetClash:  0.3,
		Valley:      0.3,
		Boundary:    0.5,
		EdgePenalty: 0.5,
	}
}

// LoadFile overlays a YAML file on the defaults. Keys missing from the file
// keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays SPLICE_* environment variables on cfg
func ApplyEnv(cfg *Config) {
	cfg.LogLevel = envStr("SPLICE_LOG_LEVEL", cfg.LogLevel)

	cfg.Analysis.Backend = envStr("SPLICE_ANALYSIS_BACKEND", cfg.Analysis.Backend)
	cfg.Analysis.AubioPath = envStr("SPLICE_AUBIO_PATH", cfg.Analysis.AubioPath)
	cfg.Analysis.Chroma = envBool("SPLICE_CHROMA", cfg.Analysis.Chroma)

	cfg.Search.MaxCandidates = envInt("SPLICE_MAX_CANDIDATES", cfg.Search.MaxCandidates)
	cfg.Search.EdgeExclusion = envFloat("SPLICE_EDGE_EXCLUSION", cfg.Search.EdgeExclusion)

	cfg.Planner.Strategy = envStr("SPLICE_PLANNER", cfg.Planner.Strategy)

	cfg.Render.Crossfade = envFloat("SPLICE_CROSSFADE", cfg.Render.Crossfade)
	cfg.Render.Blend = envStr("SPLICE_BLEND", cfg.Render.Blend)
	cfg.Render.Effect = envStr("SPLICE_EFFECT", cfg.Render.Effect)
	cfg.Render.PreviewPre = envFloat("SPLICE_PREVIEW_PRE", cfg.Render.PreviewPre)
	cfg.Render.PreviewPost = envFloat("SPLICE_PREVIEW_POST", cfg.Render.PreviewPost)

	cfg.Cache.MemoryEntries = envInt("SPLICE_CACHE_ENTRIES", cfg.Cache.MemoryEntries)
	cfg.Cache.SQLitePath = envStr("SPLICE_CACHE_PATH", cfg.Cache.SQLitePath)

	cfg.Service.MaxInFlight = envInt("SPLICE_MAX_IN_FLIGHT", cfg.Service.MaxInFlight)

	cfg.Decoder.FFmpegPath = envStr("SPLICE_FFMPEG_PATH", cfg.Decoder.FFmpegPath)
	cfg.Decoder.FFprobePath = envStr("SPLICE_FFPROBE_PATH", cfg.Decoder.FFprobePath)
}

// Load returns Default, overlaid with path (when non-empty) and the environment
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFile(path)
		if err != nil {
			return cfg, err
		}
	}
	ApplyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate checks ranges and returns every problem found
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, key, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %s", key, fmt.Sprintf(format, args...)))
		}
	}

	a := c.Analysis
	check(a.FrameSize > 0, "analysis.frame_size", "must be positive, got %d", a.FrameSize)
	check(a.HopSize > 0, "analysis.hop_size", "must be positive, got %d", a.HopSize)
	check(a.OnsetThreshold >= 0 && a.OnsetThreshold <= 1, "analysis.onset_threshold", "must be in [0,1], got %v", a.OnsetThreshold)
	check(a.SeedWindow >= 0, "analysis.seed_window", "must not be negative")
	check(a.TuningFreq > 0, "analysis.tuning_freq", "must be positive")
	check(a.Backend == "basic" || a.Backend == "aubio", "analysis.backend", "unknown backend %q", a.Backend)

	s := c.Structure
	check(s.KernelHalfWidth > 0, "structure.kernel_half_width", "must be positive")
	check(s.ValleyRatio > 0, "structure.valley_ratio", "must be positive")
	check(s.ValleyWindow > 0, "structure.valley_window", "must be positive")

	se := c.Search
	check(se.EdgeExclusion >= 0, "search.edge_exclusion", "must not be negative")
	check(se.MaxCandidates > 0, "search.max_candidates", "must be positive")
	check(se.PairsPerBeat > 0, "search.pairs_per_beat", "must be positive")
	check(se.BeatsPerBar > 0, "search.beats_per_bar", "must be positive")
	check(se.EnergyWindow > 0, "search.energy_window", "must be positive")
	check(se.ClashWindow >= 0, "search.clash_window", "must not be negative")
	check(se.EdgeOuter > se.EdgeInner && se.EdgeInner >= 0, "search.edge_outer", "must exceed edge_inner")

	w := c.Weights
	for name, v := range map[string]float64{
		"downbeat": w.Downbeat, "energy": w.Energy, "tempo": w.Tempo,
		"onset_clash": w.OnsetClash, "valley": w.Valley, "boundary": w.Boundary,
		"edge_penalty": w.EdgePenalty,
	} {
		check(!math.IsNaN(v) && !math.IsInf(v, 0), "weights."+name, "must be finite")
	}

	p := c.Planner
	check(p.Strategy == "ranked" || p.Strategy == "guardrail", "planner.strategy", "unknown strategy %q", p.Strategy)
	check(p.MinIntro >= 0 && p.MinOutro >= 0, "planner.min_intro", "intro and outro must not be negative")
	check(p.RefineBeats >= 0, "planner.refine_beats", "must not be negative")
	check(p.DTWBeats > 0, "planner.dtw_beats", "must be positive")
	check(p.FallbackFade > 0, "planner.fallback_fade", "must be positive")

	r := c.Render
	check(r.MinCrossfade > 0 && r.MinCrossfade <= r.MaxCrossfade, "render.min_crossfade", "must be positive and <= max_crossfade")
	check(r.MinRate > 0 && r.MinRate <= 1 && r.MaxRate >= 1, "render.min_rate", "rate bounds must bracket 1")
	check(r.PreviewPre >= 0 && r.PreviewPost >= 0 && r.PreviewPre+r.PreviewPost > 0, "render.preview_pre", "preview window must be positive")
	check(r.FullCap > 0, "render.full_cap", "must be positive")
	check(r.CeilingDB < 0, "render.ceiling_db", "must be below 0 dBFS")
	check(r.AutomationPoints >= 2, "render.automation_points", "must be at least 2")

	check(c.Cache.MemoryEntries >= 0, "cache.memory_entries", "must not be negative")
	check(c.Service.MaxInFlight > 0, "service.max_in_flight", "must be positive")

	if err := transcode.NewDecoder(&c.Decoder).ValidateConfig(); err != nil {
		errs = append(errs, fmt.Errorf("decoder: %w", err))
	}

	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
