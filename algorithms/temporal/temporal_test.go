package temporal

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-splice/internal/synth"
)

const (
	frameSize = 2048
	hopSize   = 512
)

func estimate(signal []float64, sr int) (float64, []float64) {
	env := NewEnvelope()
	onsetEnv := env.OnsetEnvelope(env.ComputeRMS(signal, frameSize, hopSize))
	hopSec := float64(hopSize) / float64(sr)
	return NewTempoEstimation().EstimateBPM(onsetEnv, hopSec), onsetEnv
}

func TestEstimateBPMClickTracks(t *testing.T) {
	for _, bpm := range []float64{90, 120, 128} {
		signal := synth.NewClickTrack(bpm, 30).Mono()
		got, _ := estimate(signal, synth.SampleRate)
		if math.Abs(got-bpm) > 2 {
			t.Errorf("EstimateBPM(%v click) = %v, want within 2", bpm, got)
		}
	}
}

func TestEstimateBPMGainInvariant(t *testing.T) {
	signal := synth.NewClickTrack(110, 20).Mono()
	base, _ := estimate(signal, synth.SampleRate)

	for _, gain := range []float64{0.5, 2, 4} {
		scaled := make([]float64, len(signal))
		for i, v := range signal {
			scaled[i] = v * gain
		}
		got, _ := estimate(scaled, synth.SampleRate)
		if got != base {
			t.Errorf("gain %v: bpm = %v, want %v", gain, got, base)
		}
	}
}

func TestEstimateBPMSilence(t *testing.T) {
	got, env := estimate(make([]float64, synth.SampleRate*5), synth.SampleRate)
	if got != DefaultBPM {
		t.Errorf("silence bpm = %v, want %v", got, DefaultBPM)
	}
	for i, v := range env {
		if v != 0 {
			t.Fatalf("env[%d] = %v, want 0", i, v)
		}
	}
}

func TestOnsetEnvelopeRange(t *testing.T) {
	signal := synth.NewClickTrack(120, 10).Mono()
	_, env := estimate(signal, synth.SampleRate)
	maxV := 0.0
	for _, v := range env {
		if v < 0 || v > 1 {
			t.Fatalf("envelope value %v outside [0,1]", v)
		}
		maxV = math.Max(maxV, v)
	}
	if maxV != 1 {
		t.Errorf("envelope max = %v, want 1", maxV)
	}

	onsets := NewOnsetDetection().Detect(env, float64(hopSize)/synth.SampleRate)
	if len(onsets) < 15 {
		t.Errorf("found %d onsets in a 10 s 120 BPM click, want >= 15", len(onsets))
	}
}

func TestComputeRMSShortSignal(t *testing.T) {
	rms := NewEnvelope().ComputeRMS([]float64{1, -1, 1}, frameSize, hopSize)
	if len(rms) != 1 || rms[0] != 1 {
		t.Errorf("ComputeRMS short = %v, want [1]", rms)
	}
}

func TestBeatGridBuild(t *testing.T) {
	bg := NewBeatGrid()
	beats := bg.Build(120, 1.2, 5)
	want := []float64{0.2, 0.7, 1.2, 1.7, 2.2, 2.7, 3.2, 3.7, 4.2, 4.7}
	if len(beats) != len(want) {
		t.Fatalf("Build = %v, want %v", beats, want)
	}
	for i := range want {
		if math.Abs(beats[i]-want[i]) > 1e-9 {
			t.Errorf("beat[%d] = %v, want %v", i, beats[i], want[i])
		}
	}
}

func TestBeatGridSeed(t *testing.T) {
	env := []float64{0, 0.2, 1, 0.1, 0, 0.9}
	if got := NewBeatGrid().Seed(env, 0.5); got != 1.0 {
		t.Errorf("Seed = %v, want 1.0", got)
	}
	if got := NewBeatGrid().Seed(make([]float64, 4), 0.5); got != 0 {
		t.Errorf("Seed on flat = %v, want 0", got)
	}
	late := make([]float64, 20)
	late[15] = 1
	if got := NewBeatGrid().Seed(late, 0.5); got != 0 {
		t.Errorf("Seed with peak after window = %v, want 0", got)
	}
}
