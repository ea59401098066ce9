// Command splice renders a beat-aligned transition between two tracks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RyanBlaney/sonido-splice/config"
	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/transition"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "splice: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		pathA       = flag.String("a", "", "outgoing track")
		pathB       = flag.String("b", "", "incoming track")
		output      = flag.String("o", "transition.wav", "output wav")
		crossfade   = flag.Float64("crossfade", 0, "crossfade seconds (0 uses the configured default)")
		effect      = flag.String("effect", "", "transition effect")
		blendMode   = flag.String("blend", "", "crossfade curve")
		preview     = flag.Bool("preview", false, "render a 30 second preview around the splice")
		planner     = flag.String("planner", "", "ranked or guardrail")
		configPath  = flag.String("config", "", "yaml config file")
		diagnostics = flag.String("diagnostics", "", "write metrics and ranked candidates as json to this file")
		logLevel    = flag.String("log-level", "", "debug, info, warn or error")
	)
	flag.Parse()

	if *pathA == "" || *pathB == "" {
		flag.Usage()
		return fmt.Errorf("-a and -b are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger := logging.NewDefaultLogger()
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetGlobalLogger(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := transition.NewService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Transition(ctx, transition.Request{
		PathA:       *pathA,
		PathB:       *pathB,
		Crossfade:   *crossfade,
		Effect:      *effect,
		Blend:       *blendMode,
		Preview:     *preview,
		Planner:     *planner,
		Diagnostics: *diagnostics != "",
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(*output, res.WAV, 0o644); err != nil {
		return err
	}

	if *diagnostics != "" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(*diagnostics, data, 0o644); err != nil {
			return err
		}
	}

	m := res.Metrics
	logger.Info("Wrote transition", logging.Fields{
		"output":    *output,
		"t_a":       m.TA,
		"t_b":       m.TB,
		"bpm_a":     m.BPMA,
		"bpm_b":     m.BPMB,
		"crossfade": m.Crossfade,
		"peak_db":   m.PeakDB,
		"seconds":   m.RenderedSeconds,
	})
	return nil
}
