// Package daemonrun wires the slidecast daemon: it assembles the store, stage
// processors, and worker pool, and runs them until the process receives a
// termination signal.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"slidecast/internal/config"
	"slidecast/internal/gateway"
	"slidecast/internal/ingest"
	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/media/encoder"
	"slidecast/internal/media/probe"
	"slidecast/internal/notify"
	"slidecast/internal/pipeline"
	"slidecast/internal/queue"
	"slidecast/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the slidecast daemon runtime loop and blocks until the context is
// done or a SIGINT/SIGTERM arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("slidecast-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)

	lockPath := filepath.Join(cfg.Paths.LogDir, "slidecastd.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another slidecast daemon instance is already running")
	}
	defer lock.Unlock()

	pidPath := filepath.Join(cfg.Paths.LogDir, "slidecast.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	reset, err := st.ResetStuckRunning(signalCtx)
	if err != nil {
		logger.Error("reset stuck jobs", logging.Error(err))
		return err
	}
	if reset > 0 {
		logger.Info("requeued jobs interrupted by previous shutdown",
			logging.Int64("count", reset))
	}

	notifier := notify.NewService(cfg)
	paths := layout.New(cfg)
	health := gateway.New(cfg, st, logging.NewComponentLogger(logger, "gateway"))
	prober := probe.New(cfg, logging.NewComponentLogger(logger, "ffprobe"))
	enc := encoder.New(cfg, logging.NewComponentLogger(logger, "ffmpeg"))
	extractor := ingest.New(cfg, paths, logging.NewComponentLogger(logger, "ingest"))

	runner := pipeline.NewRunner(st, notifier, logger,
		pipeline.NewIngestionProcessor(cfg, st, extractor, paths, notifier),
		pipeline.NewScriptProcessor(cfg, st, health),
		pipeline.NewNarrationProcessor(cfg, st, health, prober, paths),
		pipeline.NewRenderProcessor(st, enc, prober, paths),
		pipeline.NewAssembleProcessor(st, enc, prober, paths),
	)

	pool := queue.NewPool(cfg, st, runner, logger)
	if err := pool.Start(signalCtx); err != nil {
		logger.Error("start worker pool", logging.Error(err))
		return err
	}
	logger.Info("slidecast daemon started",
		logging.String("lock", lockPath),
		logging.Int("workers", cfg.Workflow.WorkerCount))

	<-signalCtx.Done()
	logger.Info("slidecast daemon shutting down")
	pool.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("dependency snapshot",
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("tts_key_present", strings.TrimSpace(cfg.TTS.APIKey) != ""),
		logging.Bool("soffice_available", binaryAvailable(cfg.Tools.Soffice)),
		logging.Bool("pdftoppm_available", binaryAvailable(cfg.Tools.Pdftoppm)),
		logging.Bool("pdftotext_available", binaryAvailable(cfg.Tools.Pdftotext)),
		logging.Bool("tesseract_available", binaryAvailable(cfg.Tools.Tesseract)),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.Tools.FFmpeg)),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.Tools.FFprobe)),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
