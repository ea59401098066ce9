package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"frame size", cfg.Analysis.FrameSize, 2048},
		{"hop size", cfg.Analysis.HopSize, 512},
		{"onset threshold", cfg.Analysis.OnsetThreshold, 0.15},
		{"kernel half width", cfg.Structure.KernelHalfWidth, 12},
		{"valley ratio", cfg.Structure.ValleyRatio, 0.85},
		{"max candidates", cfg.Search.MaxCandidates, 120},
		{"min intro", cfg.Planner.MinIntro, 30.0},
		{"min outro", cfg.Planner.MinOutro, 15.0},
		{"rate floor", cfg.Render.MinRate, 0.98},
		{"rate ceiling", cfg.Render.MaxRate, 1.02},
		{"ceiling", cfg.Render.CeilingDB, -0.3},
		{"downbeat weight", cfg.Weights.Downbeat, 1.0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SPLICE_CROSSFADE", "12.5")
	t.Setenv("SPLICE_PLANNER", "guardrail")
	t.Setenv("SPLICE_MAX_IN_FLIGHT", "3")
	t.Setenv("SPLICE_CHROMA", "false")
	t.Setenv("SPLICE_CACHE_ENTRIES", "not-a-number")

	cfg := Default()
	ApplyEnv(&cfg)

	if cfg.Render.Crossfade != 12.5 {
		t.Errorf("Crossfade = %v, want 12.5", cfg.Render.Crossfade)
	}
	if cfg.Planner.Strategy != "guardrail" {
		t.Errorf("Strategy = %q, want guardrail", cfg.Planner.Strategy)
	}
	if cfg.Service.MaxInFlight != 3 {
		t.Errorf("MaxInFlight = %d, want 3", cfg.Service.MaxInFlight)
	}
	if cfg.Analysis.Chroma {
		t.Errorf("Chroma = true, want false")
	}
	if cfg.Cache.MemoryEntries != 32 {
		t.Errorf("MemoryEntries = %d, want fallback 32", cfg.Cache.MemoryEntries)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splice.yaml")
	body := `
log_level: debug
weights:
  downbeat: 2.5
render:
  effect: echo_out
  blend: s_curve
planner:
  strategy: guardrail
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Weights.Downbeat != 2.5 {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.Weights.Energy != 0.5 {
		t.Errorf("Energy = %v, want default 0.5", cfg.Weights.Energy)
	}
	if cfg.Render.Effect != "echo_out" || cfg.Render.Blend != "s_curve" {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Analysis.HopSize != 512 {
		t.Errorf("HopSize = %d, want 512", cfg.Analysis.HopSize)
	}
}

func TestValidateReportsKeys(t *testing.T) {
	cfg := Default()
	cfg.Search.MaxCandidates = 0
	cfg.Planner.Strategy = "magic"
	cfg.Render.MinRate = 1.5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, key := range []string{"search.max_candidates", "planner.strategy", "render.min_rate"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}
