package temporal

// DefaultSeedWindow bounds where the beat grid looks for its anchor onset
const DefaultSeedWindow = 5.0

// BeatGrid builds a uniform beat series from a tempo and an onset envelope
type BeatGrid struct {
	seedWindow float64
}

// NewBeatGrid creates a beat grid builder with a 5 s seed window
func NewBeatGrid() *BeatGrid {
	return &BeatGrid{seedWindow: DefaultSeedWindow}
}

// NewBeatGridWithWindow creates a builder with a custom seed window.
// Non-positive windows fall back to the default.
func NewBeatGridWithWindow(seedWindow float64) *BeatGrid {
	if seedWindow <= 0 {
		seedWindow = DefaultSeedWindow
	}
	return &BeatGrid{seedWindow: seedWindow}
}

// Seed returns the time of the strongest envelope frame inside the seed
// window, or 0 when that part of the envelope is flat zero.
func (bg *BeatGrid) Seed(envelope []float64, hopSec float64) float64 {
	best := -1
	for i, v := range envelope {
		if float64(i)*hopSec >= bg.seedWindow {
			break
		}
		if v > 0 && (best < 0 || v > envelope[best]) {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return float64(best) * hopSec
}

// Build lays beats at period 60/bpm through seed, extended backward to 0
// and forward up to (not including) duration. The result is ascending.
func (bg *BeatGrid) Build(bpm, seed, duration float64) []float64 {
	if bpm <= 0 || duration <= 0 {
		return []float64{}
	}
	period := 60.0 / bpm
	if seed < 0 || seed >= duration {
		seed = 0
	}

	k := 0
	for seed-float64(k+1)*period >= 0 {
		k++
	}
	first := seed - float64(k)*period

	var beats []float64
	for i := 0; ; i++ {
		t := first + float64(i)*period
		if t >= duration {
			break
		}
		beats = append(beats, t)
	}
	return beats
}
