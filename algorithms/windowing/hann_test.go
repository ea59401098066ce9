package windowing

import (
	"math"
	"testing"
)

func TestHannShape(t *testing.T) {
	h := NewHann(9)
	c := h.GetCoefficients()
	if math.Abs(c[0]) > 1e-12 {
		t.Errorf("c[0] = %v, want 0", c[0])
	}
	for i := range c {
		if c[i] > c[4]+1e-12 {
			t.Errorf("c[%d] = %v exceeds centre %v", i, c[i], c[4])
		}
	}
	if err := h.ApplyInPlace(make([]float64, 4)); err == nil {
		t.Errorf("expected size mismatch error")
	}
}
