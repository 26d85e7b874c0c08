// Package encoder renders slide segments and assembles the final deck video
// with ffmpeg.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/services"
)

// commandRunner executes an external command.
type commandRunner func(ctx context.Context, name string, args ...string) error

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("%w: %s", err, lastLine(detail))
		}
		return err
	}
	return nil
}

// lastLine trims command noise down to the final stderr line, which is where
// ffmpeg puts its actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Encoder wraps the ffmpeg invocations used by the render and assemble
// stages.
type Encoder struct {
	binary string
	logger *slog.Logger
	run    commandRunner
}

// New constructs an Encoder using the configured ffmpeg binary.
func New(cfg *config.Config, logger *slog.Logger) *Encoder {
	return &Encoder{
		binary: cfg.Tools.FFmpeg,
		logger: logging.NewComponentLogger(logger, "encoder"),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner injects a command runner for tests.
func (e *Encoder) WithCommandRunner(run commandRunner) {
	if e != nil && run != nil {
		e.run = run
	}
}

// RenderSlide produces a video segment from one still image and its narration
// clip. The image is looped for the full duration of the audio; all segments
// share one codec profile so assembly can concatenate without re-encoding.
func (e *Encoder) RenderSlide(ctx context.Context, imagePath, audioPath, outputPath string) error {
	if e == nil {
		return services.Wrap(services.ErrConfiguration, "render", "render", "encoder not initialized", nil)
	}
	for _, input := range []string{imagePath, audioPath} {
		if _, err := os.Stat(input); err != nil {
			return services.Wrap(services.ErrValidation, "render", "render", fmt.Sprintf("missing input %s", input), err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "render", "render", "create output directory", err)
	}

	args := renderArgs(imagePath, audioPath, outputPath)
	if e.logger != nil {
		e.logger.Debug("rendering slide segment",
			logging.String("image", imagePath),
			logging.String("audio", audioPath),
			logging.String("output", outputPath),
		)
	}
	if err := e.run(ctx, e.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "render", "ffmpeg", "render slide segment", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "render", "ffmpeg", "segment not produced", err)
	}
	return nil
}

// renderArgs builds the ffmpeg arguments for a single slide segment.
func renderArgs(imagePath, audioPath, outputPath string) []string {
	return []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		// Even dimensions are required by yuv420p; decks come in odd sizes.
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outputPath,
	}
}

// Concat joins rendered segments into the final deck video in the given
// order. Segments share a codec profile so the streams are copied, not
// re-encoded.
func (e *Encoder) Concat(ctx context.Context, segmentPaths []string, listPath, outputPath string) error {
	if e == nil {
		return services.Wrap(services.ErrConfiguration, "assemble", "concat", "encoder not initialized", nil)
	}
	if len(segmentPaths) == 0 {
		return services.Wrap(services.ErrValidation, "assemble", "concat", "no segments to assemble", nil)
	}
	for _, segment := range segmentPaths {
		if _, err := os.Stat(segment); err != nil {
			return services.Wrap(services.ErrValidation, "assemble", "concat", fmt.Sprintf("missing segment %s", segment), err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(listPath), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "assemble", "concat", "create list directory", err)
	}
	if err := os.WriteFile(listPath, []byte(concatManifest(segmentPaths)), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "assemble", "concat", "write concat manifest", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "assemble", "concat", "create output directory", err)
	}

	args := concatArgs(listPath, outputPath)
	if e.logger != nil {
		e.logger.Debug("assembling final video",
			logging.Int("segments", len(segmentPaths)),
			logging.String("output", outputPath),
		)
	}
	if err := e.run(ctx, e.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "assemble", "ffmpeg", "concatenate segments", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "assemble", "ffmpeg", "final video not produced", err)
	}
	return nil
}

// concatManifest renders the ffmpeg concat demuxer file list. Single quotes
// in paths are escaped per the demuxer's quoting rules.
func concatManifest(segmentPaths []string) string {
	var b strings.Builder
	for _, segment := range segmentPaths {
		escaped := strings.ReplaceAll(segment, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}

// concatArgs builds the ffmpeg arguments for stream-copy concatenation.
func concatArgs(listPath, outputPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
}
