package transcode

import (
	"time"
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64       `json:"-"` // interleaved samples in [-1, 1]
	SampleRate int             `json:"sample_rate"`
	Channels   int             `json:"channels"`
	Duration   time.Duration   `json:"duration"`
	Metadata   *StreamMetadata `json:"metadata,omitempty"`
}

// StreamMetadata describes where decoded audio came from
type StreamMetadata struct {
	Format      string `json:"format"`
	Codec       string `json:"codec,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"` // source rate before conversion
	Channels    int    `json:"channels,omitempty"`    // source channels before conversion
	BitDepth    int    `json:"bit_depth,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// NewAudioData wraps interleaved samples and fills in Duration
func NewAudioData(pcm []float64, sampleRate, channels int) *AudioData {
	a := &AudioData{PCM: pcm, SampleRate: sampleRate, Channels: channels}
	a.Duration = time.Duration(a.Seconds() * float64(time.Second))
	return a
}

// Frames returns the number of sample frames (samples per channel)
func (a *AudioData) Frames() int {
	if a == nil || a.Channels <= 0 {
		return 0
	}
	return len(a.PCM) / a.Channels
}

// Seconds returns the length in seconds
func (a *AudioData) Seconds() float64 {
	if a == nil || a.SampleRate <= 0 {
		return 0
	}
	return float64(a.Frames()) / float64(a.SampleRate)
}

// Mono returns the channel average as a new slice
func (a *AudioData) Mono() []float64 {
	frames := a.Frames()
	if a.Channels == 1 {
		out := make([]float64, frames)
		copy(out, a.PCM)
		return out
	}
	out := make([]float64, frames)
	inv := 1.0 / float64(a.Channels)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < a.Channels; ch++ {
			sum += a.PCM[i*a.Channels+ch]
		}
		out[i] = sum * inv
	}
	return out
}

// WithChannels returns audio remixed to the requested channel count.
// Mono is duplicated up, and extra channels are averaged down.
func (a *AudioData) WithChannels(channels int) *AudioData {
	if channels <= 0 || channels == a.Channels {
		return a
	}
	frames := a.Frames()
	out := make([]float64, frames*channels)
	switch {
	case a.Channels == 1:
		for i := 0; i < frames; i++ {
			for ch := 0; ch < channels; ch++ {
				out[i*channels+ch] = a.PCM[i]
			}
		}
	case channels == 1:
		copy(out, a.Mono())
	default:
		// map channel ch onto ch % source channels
		for i := 0; i < frames; i++ {
			for ch := 0; ch < channels; ch++ {
				out[i*channels+ch] = a.PCM[i*a.Channels+ch%a.Channels]
			}
		}
	}
	res := NewAudioData(out, a.SampleRate, channels)
	res.Metadata = a.Metadata
	return res
}
