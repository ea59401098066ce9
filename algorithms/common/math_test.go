package common

import (
	"math"
	"testing"
)

func TestLocalMaxima(t *testing.T) {
	data := []float64{0, 0.5, 0.2, 0.1, 0.9, 0.9, 0.3, 0.05, 0.2}
	got := LocalMaxima(data, 0.15)
	want := []int{1, 4, 8}
	if len(got) != len(want) {
		t.Fatalf("LocalMaxima = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LocalMaxima[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-12 {
		t.Errorf("orthogonal = %v, want 0", got)
	}
	if got := CosineSimilarity([]float64{1, 2}, []float64{2, 4}); math.Abs(got-1) > 1e-12 {
		t.Errorf("parallel = %v, want 1", got)
	}
	if got := CosineSimilarity([]float64{0, 0}, []float64{1, 1}); got != 0 {
		t.Errorf("zero vector = %v, want 0", got)
	}
}

func TestL2Normalize(t *testing.T) {
	v := []float64{3, 4}
	L2Normalize(v)
	if math.Abs(v[0]-0.6) > 1e-12 || math.Abs(v[1]-0.8) > 1e-12 {
		t.Errorf("L2Normalize = %v, want [0.6 0.8]", v)
	}
}

func TestLimitPeak(t *testing.T) {
	s := []float64{0.5, -2, 1}
	gain := LimitPeak(s, 1)
	if gain != 0.5 {
		t.Errorf("gain = %v, want 0.5", gain)
	}
	if PeakAbs(s) != 1 {
		t.Errorf("peak = %v, want 1", PeakAbs(s))
	}
}

func TestInterleavedAt(t *testing.T) {
	data := []float64{0, 10, 1, 20, 2, 30}
	if got := InterleavedAt(data, 2, 1, 0.5); got != 15 {
		t.Errorf("InterleavedAt = %v, want 15", got)
	}
	if got := InterleavedAt(data, 2, 0, 5); got != 0 {
		t.Errorf("past end = %v, want 0", got)
	}
}

func TestDelayLine(t *testing.T) {
	dl := NewDelayLine(8)
	for i := 1; i <= 4; i++ {
		dl.Write(float64(i))
	}
	if got := dl.Read(1); got != 4 {
		t.Errorf("Read(1) = %v, want 4", got)
	}
	if got := dl.Read(3); got != 2 {
		t.Errorf("Read(3) = %v, want 2", got)
	}
}
