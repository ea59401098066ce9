package filters

// DCRemoval implements a one-pole DC blocking filter:
//
//	y[n] = x[n] - x[n-1] + R*y[n-1]
//
// Reference: Julius O. Smith III, "Introduction to Digital Filters with
// Audio Applications", DC Blocker.
type DCRemoval struct {
	poleLocation float64 // R parameter (0 < R < 1)

	x1 float64 // x[n-1]
	y1 float64 // y[n-1]
}

// NewDCRemoval creates a DC removal filter with pole 0.995, roughly an
// 8 Hz cutoff at 44.1 kHz.
func NewDCRemoval() *DCRemoval {
	return &DCRemoval{poleLocation: 0.995}
}

// NewDCRemovalWithPole creates a DC removal filter with an explicit pole.
// Values outside (0, 1) fall back to 0.995.
func NewDCRemovalWithPole(poleLocation float64) *DCRemoval {
	if poleLocation <= 0 || poleLocation >= 1 {
		poleLocation = 0.995
	}
	return &DCRemoval{poleLocation: poleLocation}
}

// Process filters a single sample
func (dc *DCRemoval) Process(input float64) float64 {
	output := input - dc.x1 + dc.poleLocation*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessBuffer filters a whole buffer into a new slice
func (dc *DCRemoval) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, x := range input {
		output[i] = dc.Process(x)
	}
	return output
}

// Reset clears the filter state
func (dc *DCRemoval) Reset() {
	dc.x1 = 0
	dc.y1 = 0
}
