package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by DecodeWAV for data that is not a PCM RIFF/WAVE file
var ErrNotWAV = errors.New("not a PCM wav file")

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV decodes an integer PCM wav file. Samples are scaled by
// 1/(2^(bits-1)-1), the inverse of EncodeWAV, and clamped to [-1, 1].
func DecodeWAV(data []byte) (*AudioData, error) {
	if !IsWAV(data) {
		return nil, ErrNotWAV
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid header", ErrNotWAV)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: audio format %d", ErrNotWAV, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrNotWAV)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrNotWAV, bitDepth)
	}

	scale := 1.0 / (math.Pow(2, float64(bitDepth-1)) - 1)
	pcm := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		if bitDepth == 8 {
			// 8-bit wav is unsigned around 128
			v -= 128
		}
		pcm[i] = math.Max(-1, math.Min(1, float64(v)*scale))
	}

	// drop a trailing partial frame
	channels := buf.Format.NumChannels
	pcm = pcm[:len(pcm)-len(pcm)%channels]

	a := NewAudioData(pcm, buf.Format.SampleRate, channels)
	a.Metadata = &StreamMetadata{
		Format:      "wav",
		Codec:       fmt.Sprintf("pcm_s%dle", bitDepth),
		SampleRate:  buf.Format.SampleRate,
		Channels:    channels,
		BitDepth:    bitDepth,
		ContentType: "audio/wav",
	}
	return a, nil
}

// EncodeWAV writes canonical 16-bit PCM wav: RIFF/WAVE, a 16 byte "fmt "
// chunk with format 1, and one "data" chunk of interleaved little-endian
// samples. Samples are clamped to [-1, 1] and rounded to s*32767.
func EncodeWAV(a *AudioData) ([]byte, error) {
	if a == nil || a.Channels <= 0 || a.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid audio: channels and sample rate must be positive")
	}
	if len(a.PCM)%a.Channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of %d channels", len(a.PCM), a.Channels)
	}

	ints := make([]int, len(a.PCM))
	for i, s := range a.PCM {
		if math.IsNaN(s) {
			s = 0
		}
		s = math.Max(-1, math.Min(1, s))
		ints[i] = int(math.Round(s * 32767))
	}

	ws := &writeSeekBuffer{}
	enc := wav.NewEncoder(ws, a.SampleRate, 16, a.Channels, 1)
	err := enc.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: a.Channels,
			SampleRate:  a.SampleRate,
		},
		Data:           ints,
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav header: %w", err)
	}

	return ws.Bytes(), nil
}

// writeSeekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks
// back to patch chunk sizes on Close.
type writeSeekBuffer struct {
	buf []byte
	pos int
}

func (w *writeSeekBuffer) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, max(end, 2*cap(w.buf)))
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	w.pos = int(next)
	return next, nil
}

func (w *writeSeekBuffer) Bytes() []byte {
	return w.buf
}
