package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-splice/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `yaml:"target_sample_rate" json:"target_sample_rate"` // 0 keeps the source rate
	TargetChannels   int           `yaml:"target_channels" json:"target_channels"`       // 0 keeps the source layout
	MaxDuration      time.Duration `yaml:"max_duration" json:"max_duration"`
	ResampleQuality  string        `yaml:"resample_quality" json:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	FFprobePath      string        `yaml:"ffprobe_path" json:"ffprobe_path"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	// Normalization options, applied by ffmpeg only
	EnableNormalization bool    `yaml:"enable_normalization" json:"enable_normalization"`
	NormalizationMethod string  `yaml:"normalization_method" json:"normalization_method"` // "loudnorm", "dynaudnorm"
	TargetLUFS          float64 `yaml:"target_lufs" json:"target_lufs"`
	TargetPeak          float64 `yaml:"target_peak" json:"target_peak"`
	LoudnessRange       float64 `yaml:"loudness_range" json:"loudness_range"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate:    0,
		TargetChannels:      2, // the renderer mixes stereo
		ResampleQuality:     "medium",
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		Timeout:             60 * time.Second,
		EnableNormalization: false,
		NormalizationMethod: "loudnorm",
		TargetLUFS:          -14.0,
		TargetPeak:          -1.0,
		LoudnessRange:       8.0,
	}
}

// Decoder turns encoded audio bytes into interleaved float64 PCM. RIFF/WAVE
// input is decoded natively; anything else goes through ffprobe and ffmpeg.
type Decoder struct {
	config *DecoderConfig
}

// AudioMetadata is what ffprobe reports about the first audio stream
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a decoder; nil selects DefaultDecoderConfig
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile reads and decodes an audio file
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return d.DecodeBytes(ctx, data)
}

// DecodeBytes decodes audio from a byte slice
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeBytes",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data")
	}

	if IsWAV(data) {
		audioData, err := d.decodeNativeWAV(data)
		if err == nil {
			logger.Debug("Decoded wav natively", logging.Fields{
				"sample_rate": audioData.SampleRate,
				"channels":    audioData.Channels,
				"frames":      audioData.Frames(),
			})
			return audioData, nil
		}
		logger.Debug("Native wav decode not possible, using ffmpeg", logging.Fields{
			"reason": err.Error(),
		})
	}

	logger.Debug("Starting ffmpeg decode")

	metadata, err := d.probeAudioMetadata(ctx, data)
	if err != nil {
		logger.Error(err, "Failed to probe audio metadata")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	return d.decodeWithFFmpeg(ctx, data, metadata, logger)
}

var errNeedsResample = errors.New("sample rate conversion required")

// decodeNativeWAV handles PCM wav when no resampling or trimming is asked for
func (d *Decoder) decodeNativeWAV(data []byte) (*AudioData, error) {
	audioData, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if d.config.TargetSampleRate > 0 && d.config.TargetSampleRate != audioData.SampleRate {
		return nil, errNeedsResample
	}
	if d.config.EnableNormalization {
		return nil, errors.New("normalization requested")
	}
	if d.config.MaxDuration > 0 {
		maxFrames := int(d.config.MaxDuration.Seconds() * float64(audioData.SampleRate))
		if audioData.Frames() > maxFrames {
			trimmed := NewAudioData(audioData.PCM[:maxFrames*audioData.Channels], audioData.SampleRate, audioData.Channels)
			trimmed.Metadata = audioData.Metadata
			audioData = trimmed
		}
	}
	return audioData.WithChannels(d.config.TargetChannels), nil
}

func (d *Decoder) command(ctx context.Context, path string, args []string, stdin []byte) (*exec.Cmd, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if d.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	return cmd, cancel
}

// probeAudioMetadata uses ffprobe to get input audio information from bytes
func (d *Decoder) probeAudioMetadata(ctx context.Context, data []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0", // First audio stream only
		"pipe:0",
	}

	cmd, cancel := d.command(ctx, d.config.FFprobePath, args, data)
	defer cancel()

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return d.parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func (d *Decoder) parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil {
		sampleRate = 44100 // Fallback to common sample rate
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// decodeWithFFmpeg performs the actual audio decoding from bytes
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, data []byte, metadata *AudioMetadata, logger logging.Logger) (*AudioData, error) {
	sampleRate, channels := d.outputFormat(metadata)

	args := d.buildFFmpegArgs(metadata, sampleRate, channels)
	args = append([]string{"-i", "pipe:0"}, args...)
	args = append(args, "pipe:1")

	cmd, cancel := d.command(ctx, d.config.FFmpegPath, args, data)
	defer cancel()

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	samples = samples[:len(samples)-len(samples)%channels]
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	audioData := NewAudioData(samples, sampleRate, channels)
	audioData.Metadata = &StreamMetadata{
		Format:      metadata.Format,
		Codec:       metadata.Codec,
		SampleRate:  metadata.SampleRate,
		Channels:    metadata.Channels,
		ContentType: contentTypeFromCodec(metadata.Codec),
	}

	logger.Debug("FFmpeg decode completed successfully", logging.Fields{
		"output_samples":     len(samples),
		"output_sample_rate": sampleRate,
		"output_channels":    channels,
		"output_duration":    audioData.Seconds(),
	})

	return audioData, nil
}

func (d *Decoder) outputFormat(metadata *AudioMetadata) (int, int) {
	sampleRate := d.config.TargetSampleRate
	if sampleRate <= 0 {
		sampleRate = metadata.SampleRate
	}
	channels := d.config.TargetChannels
	if channels <= 0 {
		channels = metadata.Channels
	}
	return sampleRate, channels
}

// buildFFmpegArgs builds the ffmpeg arguments based on configuration and metadata
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata, sampleRate, channels int) []string {
	args := []string{
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
	}

	var filters []string
	if d.config.ResampleQuality != "" && metadata.SampleRate != sampleRate {
		switch d.config.ResampleQuality {
		case "fast":
			filters = append(filters, "aresample=resampler=soxr:precision=16")
		case "medium":
			filters = append(filters, "aresample=resampler=soxr:precision=20")
		case "high":
			filters = append(filters, "aresample=resampler=soxr:precision=28")
		}
	}

	if d.config.EnableNormalization {
		if norm := d.buildNormalizationFilter(); norm != "" {
			filters = append(filters, norm)
		}
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error")

	return args
}

// buildNormalizationFilter builds the ffmpeg loudness filter for the config
func (d *Decoder) buildNormalizationFilter() string {
	switch d.config.NormalizationMethod {
	case "loudnorm":
		// EBU R128 loudness normalization
		return fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f",
			d.config.TargetLUFS,
			d.config.TargetPeak,
			d.config.LoudnessRange)
	case "dynaudnorm":
		return "dynaudnorm=p=0.95:m=10:s=12"
	default:
		return ""
	}
}

// contentTypeFromCodec maps codec to content type
func contentTypeFromCodec(codec string) string {
	switch {
	case strings.HasPrefix(codec, "pcm_"):
		return "audio/wav"
	case codec == "aac":
		return "audio/aac"
	case codec == "mp3":
		return "audio/mpeg"
	case codec == "flac":
		return "audio/flac"
	case codec == "vorbis":
		return "audio/ogg"
	case codec == "opus":
		return "audio/opus"
	default:
		return "audio/unknown"
	}
}

// bytesToFloat64 converts raw float64 little-endian bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	data = data[:len(data)-len(data)%8]

	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must not be negative: %d", d.config.TargetSampleRate)
	}

	if d.config.TargetChannels < 0 || d.config.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 0 and 8: %d", d.config.TargetChannels)
	}

	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}

	return nil
}

// CheckFFmpegAvailability checks if ffmpeg and ffprobe can be executed
func (d *Decoder) CheckFFmpegAvailability(ctx context.Context) error {
	if err := exec.CommandContext(ctx, d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if err := exec.CommandContext(ctx, d.config.FFprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}
