package testsupport

import (
	"path/filepath"
	"testing"

	"slidecast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Workflow.QueuePollInterval = 1
	cfg.LLM.APIKey = "test-llm-key"
	cfg.TTS.APIKey = "test-tts-key"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMode sets the default processing mode on the test config.
func WithMode(mode string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.DefaultMode = mode
	}
}

// WithPerUserLimit sets the admission limit on the test config.
func WithPerUserLimit(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.PerUserJobLimit = limit
	}
}
