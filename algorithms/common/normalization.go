package common

import "math"

// PeakAbs returns the largest absolute sample value
func PeakAbs(signal []float64) float64 {
	peak := 0.0
	for _, v := range signal {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// AmplitudeToDB converts a linear amplitude to dBFS. Silence maps to -Inf.
func AmplitudeToDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude)
}

// DBToAmplitude converts dBFS to a linear amplitude
func DBToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// LimitPeak scales signal in place so its peak does not exceed ceiling and
// returns the gain applied (1 when no change was needed).
func LimitPeak(signal []float64, ceiling float64) float64 {
	peak := PeakAbs(signal)
	if peak <= ceiling || peak == 0 {
		return 1.0
	}
	gain := ceiling / peak
	for i := range signal {
		signal[i] *= gain
	}
	return gain
}
