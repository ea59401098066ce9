package common

// DelayLine implements a circular delay line for audio effects
type DelayLine struct {
	buffer   []float64
	size     int
	writePos int
}

// NewDelayLine creates a new delay line holding up to maxDelaySamples samples
func NewDelayLine(maxDelaySamples int) *DelayLine {
	size := max(maxDelaySamples, 2)
	return &DelayLine{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Read returns the sample written delaySamples writes ago, with linear
// interpolation for fractional delays. It does not advance the line.
func (dl *DelayLine) Read(delaySamples float64) float64 {
	if delaySamples < 1 {
		delaySamples = 1
	}
	if delaySamples > float64(dl.size-1) {
		delaySamples = float64(dl.size - 1)
	}

	intDelay := int(delaySamples)
	frac := delaySamples - float64(intDelay)

	pos1 := (dl.writePos - intDelay + dl.size) % dl.size
	pos2 := (dl.writePos - intDelay - 1 + dl.size) % dl.size

	return dl.buffer[pos1] + frac*(dl.buffer[pos2]-dl.buffer[pos1])
}

// Write pushes one sample and advances the line
func (dl *DelayLine) Write(input float64) {
	dl.buffer[dl.writePos] = input
	dl.writePos = (dl.writePos + 1) % dl.size
}

// Size returns the capacity in samples
func (dl *DelayLine) Size() int {
	return dl.size
}

// Clear empties the delay line
func (dl *DelayLine) Clear() {
	for i := range dl.buffer {
		dl.buffer[i] = 0.0
	}
	dl.writePos = 0
}
