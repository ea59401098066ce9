package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// MeanRange returns the mean of data[lo:hi] after clamping the bounds.
// An empty range yields 0.
func MeanRange(data []float64, lo, hi int) float64 {
	lo = max(lo, 0)
	hi = min(hi, len(data))
	if hi <= lo {
		return 0.0
	}
	return Mean(data[lo:hi])
}

// Median returns the median of data without modifying it
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2.0
	}
	return sorted[mid]
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// MaxNormalize divides non-negative data by its maximum so the result lies in [0, 1].
// All-zero input stays all zeros.
func MaxNormalize(data []float64) []float64 {
	normalized := make([]float64, len(data))
	if len(data) == 0 {
		return normalized
	}
	peak := floats.Max(data)
	if peak <= 0 {
		return normalized
	}
	for i, val := range data {
		normalized[i] = val / peak
	}
	return normalized
}

// MinMaxNormalize normalizes data to [0, 1] range
func MinMaxNormalize(data []float64) []float64 {
	if len(data) == 0 {
		return data
	}

	lo := floats.Min(data)
	hi := floats.Max(data)

	normalized := make([]float64, len(data))
	if math.Abs(hi-lo) < 1e-12 {
		return normalized
	}
	for i, val := range data {
		normalized[i] = (val - lo) / (hi - lo)
	}

	return normalized
}

// L2Normalize scales v in place to unit Euclidean norm. Zero vectors are left alone.
func L2Normalize(v []float64) {
	if len(v) == 0 {
		return
	}
	norm := floats.Norm(v, 2)
	if norm < 1e-12 {
		return
	}
	floats.Scale(1/norm, v)
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or a zero vector yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na < 1e-12 || nb < 1e-12 {
		return 0.0
	}
	return floats.Dot(a, b) / (na * nb)
}

// LocalMaxima returns indices i where data[i] >= threshold and data[i] is
// strictly greater than its left neighbour and not less than its right one.
// Edge samples count when they beat their only neighbour.
func LocalMaxima(data []float64, threshold float64) []int {
	var peaks []int
	n := len(data)
	for i := 0; i < n; i++ {
		if data[i] < threshold {
			continue
		}
		if i > 0 && data[i] <= data[i-1] {
			continue
		}
		if i < n-1 && data[i] < data[i+1] {
			continue
		}
		if n == 1 {
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}

// ArgMax returns the index of the largest value, -1 for empty input
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// Clamp constrains a value to a range
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Lerp performs linear interpolation between two values
func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
