package chroma

import (
	"math"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/algorithms/spectral"
)

// ChromaSTFT computes pitch-class energy from an STFT magnitude spectrogram
type ChromaSTFT struct {
	sampleRate int
	tuningFreq float64 // A4 frequency (default 440 Hz)
	chromaBins int     // Number of chroma bins (always 12)
	minFreq    float64 // Minimum frequency to consider
	maxFreq    float64 // Maximum frequency to consider
}

// NewChromaSTFT creates a new STFT-based chromagram calculator
func NewChromaSTFT(sampleRate int, tuningFreq float64) *ChromaSTFT {
	return &ChromaSTFT{
		sampleRate: sampleRate,
		tuningFreq: tuningFreq,
		chromaBins: 12,
		minFreq:    80.0,   // Approximate E2
		maxFreq:    8000.0, // High enough for harmonics
	}
}

// NewChromaSTFTDefault creates chromagram with standard A4=440Hz tuning
func NewChromaSTFTDefault(sampleRate int) *ChromaSTFT {
	return NewChromaSTFT(sampleRate, 440.0)
}

// FrameChroma converts a magnitude spectrogram into per-frame 12-bin
// energies (magnitude squared summed per pitch class, unnormalized).
func (cs *ChromaSTFT) FrameChroma(stftResult *spectral.STFTResult) [][]float64 {
	chromagram := make([][]float64, stftResult.TimeFrames)
	mapping := cs.calculateChromaMapping(stftResult.FreqBins, stftResult.FreqResolution)

	for t := 0; t < stftResult.TimeFrames; t++ {
		chromagram[t] = make([]float64, cs.chromaBins)
		for f, bin := range mapping {
			if bin < 0 {
				continue
			}
			magnitude := stftResult.Magnitude[t][f]
			chromagram[t][bin] += magnitude * magnitude
		}
	}

	return chromagram
}

// BeatSync sums frame chroma inside each beat window [beats[i], beats[i+1])
// (the last window runs to duration) and L2-normalizes each vector. Frame t
// sits at t*hopSec. Windows that contain no frame take the nearest frame.
func (cs *ChromaSTFT) BeatSync(frames [][]float64, beats []float64, hopSec, duration float64) [][]float64 {
	if len(frames) == 0 || len(beats) == 0 || hopSec <= 0 {
		return nil
	}

	out := make([][]float64, len(beats))
	for i, start := range beats {
		end := duration
		if i+1 < len(beats) {
			end = beats[i+1]
		}

		lo := int(math.Ceil(start/hopSec - 1e-9))
		hi := int(math.Ceil(end/hopSec - 1e-9))
		lo = max(0, min(lo, len(frames)-1))
		hi = max(lo+1, min(hi, len(frames)))

		vec := make([]float64, cs.chromaBins)
		for t := lo; t < hi; t++ {
			for b := range vec {
				vec[b] += frames[t][b]
			}
		}
		common.L2Normalize(vec)
		out[i] = vec
	}
	return out
}

// calculateChromaMapping maps FFT bins to chroma bins, -1 outside the range
func (cs *ChromaSTFT) calculateChromaMapping(freqBins int, freqResolution float64) []int {
	mapping := make([]int, freqBins)

	for f := 0; f < freqBins; f++ {
		frequency := float64(f) * freqResolution

		if frequency < cs.minFreq || frequency > cs.maxFreq {
			mapping[f] = -1
			continue
		}

		// C = 0 since MIDI 60 is middle C
		midiNote := cs.frequencyToMIDI(frequency)
		mapping[f] = ((int(math.Round(midiNote)) % 12) + 12) % 12
	}

	return mapping
}

// frequencyToMIDI converts frequency to MIDI note number
func (cs *ChromaSTFT) frequencyToMIDI(frequency float64) float64 {
	if frequency <= 0 {
		return 0
	}

	// A4 (tuningFreq) = MIDI note 69
	return 69.0 + 12.0*math.Log2(frequency/cs.tuningFreq)
}
