package analysis

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-splice/algorithms/common"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// AubioBackend runs the aubio command line tools for beats and onsets and
// computes energy and chroma with the basic extractor on that grid.
type AubioBackend struct {
	path    string
	timeout time.Duration
	basic   *BasicExtractor
	logger  logging.Logger
}

// NewAubioBackend creates a backend around the aubio binary at path
func NewAubioBackend(path string, timeout time.Duration, basic *BasicExtractor) *AubioBackend {
	if path == "" {
		path = "aubio"
	}
	return &AubioBackend{
		path:    path,
		timeout: timeout,
		basic:   basic,
		logger: logging.WithFields(logging.Fields{
			"component": "aubio_backend",
		}),
	}
}

// Name implements Backend
func (a *AubioBackend) Name() string {
	return "aubio"
}

// Load checks that the binary can be found
func (a *AubioBackend) Load(ctx context.Context) error {
	resolved, err := exec.LookPath(a.path)
	if err != nil {
		return fmt.Errorf("aubio not found: %w", err)
	}
	a.logger.Debug("aubio located", logging.Fields{"path": resolved})
	return nil
}

// Analyze implements Backend
func (a *AubioBackend) Analyze(ctx context.Context, audio *transcode.AudioData) (*Result, error) {
	if audio == nil || audio.Frames() == 0 {
		return nil, fmt.Errorf("invalid audio: no samples")
	}

	dir, err := os.MkdirTemp("", "splice-aubio-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wavData, err := transcode.EncodeWAV(transcode.NewAudioData(audio.Mono(), audio.SampleRate, 1))
	if err != nil {
		return nil, err
	}
	input := filepath.Join(dir, "input.wav")
	if err := os.WriteFile(input, wavData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp wav: %w", err)
	}

	duration := audio.Seconds()
	beats, err := a.runTimes(ctx, "beat", input, duration)
	if err != nil {
		return nil, err
	}
	onsets, err := a.runTimes(ctx, "onset", input, duration)
	if err != nil {
		return nil, err
	}

	bpm, err := BPMFromBeats(beats)
	if err != nil {
		return nil, err
	}

	result, err := a.basic.AnalyzeWithGrid(ctx, audio, Grid{BPM: bpm, Beats: beats, Onsets: onsets})
	if err != nil {
		return nil, err
	}
	result.Source = a.Name()
	return result, nil
}

func (a *AubioBackend) runTimes(ctx context.Context, tool, input string, duration float64) ([]float64, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.path, tool, "-i", input)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("aubio %s failed: %w, stderr: %s", tool, err, stderr.String())
	}
	return ParseTimes(out, duration), nil
}

// ParseTimes reads the first number of every line as a time in seconds and
// keeps the ones inside [0, duration), sorted and deduplicated.
func ParseTimes(out []byte, duration float64) []float64 {
	var times []float64
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || !common.IsFinite(t) || t < 0 || t >= duration {
			continue
		}
		times = append(times, t)
	}
	sort.Float64s(times)

	deduped := times[:0]
	for i, t := range times {
		if i == 0 || t != times[i-1] {
			deduped = append(deduped, t)
		}
	}
	return deduped
}

// BPMFromBeats derives tempo from the median inter-beat interval
func BPMFromBeats(beats []float64) (float64, error) {
	if len(beats) < 2 {
		return 0, fmt.Errorf("need at least 2 beats, got %d", len(beats))
	}
	intervals := make([]float64, len(beats)-1)
	for i := range intervals {
		intervals[i] = beats[i+1] - beats[i]
	}
	median := common.Median(intervals)
	if median <= 0 {
		return 0, fmt.Errorf("degenerate beat intervals")
	}
	return 60.0 / median, nil
}
