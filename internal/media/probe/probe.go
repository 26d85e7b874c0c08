// Package probe reads media durations with ffprobe.
package probe

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/logging"
)

// commandOutput runs a command and returns its stdout.
type commandOutput func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Prober measures the playback duration of media files.
type Prober struct {
	binary string
	logger *slog.Logger
	run    commandOutput
}

// New constructs a Prober using the configured ffprobe binary.
func New(cfg *config.Config, logger *slog.Logger) *Prober {
	return &Prober{
		binary: cfg.Tools.FFprobe,
		logger: logging.NewComponentLogger(logger, "probe"),
		run:    defaultCommandOutput,
	}
}

// WithCommandOutput injects a command runner for tests.
func (p *Prober) WithCommandOutput(run commandOutput) {
	if p != nil && run != nil {
		p.run = run
	}
}

// Duration returns the media duration in seconds. Failures are reported as
// (0, false) rather than errors: a narration clip without a readable duration
// still renders, it just loses its duration metadata.
func (p *Prober) Duration(ctx context.Context, path string) (float64, bool) {
	if p == nil || strings.TrimSpace(path) == "" {
		return 0, false
	}

	out, err := p.run(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("duration probe failed",
				logging.String("path", path),
				logging.Error(err),
			)
		}
		return 0, false
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds <= 0 {
		if p.logger != nil {
			p.logger.Warn("duration probe returned unusable value",
				logging.String("path", path),
				logging.String("output", strings.TrimSpace(string(out))),
			)
		}
		return 0, false
	}
	return seconds, true
}
