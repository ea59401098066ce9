package structure

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-splice/analysis"
	"github.com/RyanBlaney/sonido-splice/config"
)

// stepTrack is 40 s of 120 BPM beats with a loudness jump at 20 s
func stepTrack() *analysis.Result {
	const hop = 0.05
	res := &analysis.Result{BPM: 120, HopSec: hop, SampleRate: 44100, Duration: 40}
	for i := 0; float64(i)*hop < 40; i++ {
		v := 0.1
		if float64(i)*hop >= 20 {
			v = 0.9
		}
		res.RMS = append(res.RMS, v)
	}
	for t := 0.0; t < 40; t += 0.5 {
		res.Beats = append(res.Beats, t)
	}
	return res
}

func TestDetectStepBoundary(t *testing.T) {
	seg := NewDetector(config.Default().Structure).Detect(stepTrack())
	if len(seg.Boundaries) != 1 {
		t.Fatalf("Boundaries = %v, want one near 20 s", seg.Boundaries)
	}
	if math.Abs(seg.Boundaries[0]-20) > 0.5 {
		t.Errorf("boundary = %v, want 20 ± 0.5", seg.Boundaries[0])
	}
	for i, v := range seg.Novelty {
		if v < 0 || v > 1 {
			t.Fatalf("novelty[%d] = %v outside [0,1]", i, v)
		}
	}
}

func TestDetectFlatTrackHasNoBoundaries(t *testing.T) {
	res := stepTrack()
	for i := range res.RMS {
		res.RMS[i] = 0.5
	}
	seg := NewDetector(config.Default().Structure).Detect(res)
	if len(seg.Boundaries) != 0 {
		t.Errorf("Boundaries = %v, want none", seg.Boundaries)
	}
}

func TestDetectChromaFeature(t *testing.T) {
	res := stepTrack()
	for i := range res.RMS {
		res.RMS[i] = 0.5
	}
	for _, b := range res.Beats {
		v := make([]float64, 12)
		if b < 20 {
			v[0] = 1
		} else {
			v[7] = 1
		}
		res.Chroma = append(res.Chroma, v)
	}

	cfg := config.Default().Structure
	cfg.UseChroma = true
	seg := NewDetector(cfg).Detect(res)
	if seg.Feature != "chroma" {
		t.Errorf("Feature = %q, want chroma", seg.Feature)
	}
	if len(seg.Boundaries) != 1 || math.Abs(seg.Boundaries[0]-20) > 0.5 {
		t.Errorf("Boundaries = %v, want [20]", seg.Boundaries)
	}
}

func TestDetectBeatlessTrackUsesBlocks(t *testing.T) {
	const hop = 512.0 / 44100.0
	const duration = 240.0
	res := &analysis.Result{BPM: 120, HopSec: hop, SampleRate: 44100, Duration: duration}
	// the jump sits on a block edge, 240 blocks of 43 frames in
	step := 240 * int(math.Round(fallbackBlock/hop))
	for i := 0; float64(i)*hop < duration; i++ {
		v := 0.1
		if i >= step {
			v = 0.9
		}
		res.RMS = append(res.RMS, v)
	}

	seg := NewDetector(config.Default().Structure).Detect(res)
	if limit := int(duration/fallbackBlock) + 1; len(seg.Times) > limit {
		t.Errorf("steps = %d, want <= %d for %d frames", len(seg.Times), limit, len(res.RMS))
	}
	if len(seg.Boundaries) != 1 || math.Abs(seg.Boundaries[0]-120) > 1 {
		t.Errorf("Boundaries = %v, want [~120]", seg.Boundaries)
	}
}

func TestIsValley(t *testing.T) {
	const hop = 0.01
	res := &analysis.Result{BPM: 120, HopSec: hop, SampleRate: 44100, Duration: 2}
	for i := 0; i < 200; i++ {
		res.RMS = append(res.RMS, 1.0)
	}
	// a 0.1 s dip at 1.0 s
	for i := 95; i <= 105; i++ {
		res.RMS[i] = 0.2
	}

	d := NewDetector(config.Default().Structure)
	if !d.IsValley(res, 1.0) {
		t.Errorf("IsValley(1.0) = false, want true")
	}
	if d.IsValley(res, 0.5) {
		t.Errorf("IsValley(0.5) = true, want false")
	}
}
