// Package logging assembles structured slog loggers and formatting helpers
// used across slidecast components.
//
// It centralizes level and output plumbing and exposes context-aware helpers
// so stage code can automatically tag log lines with deck, job, and stage
// identity. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
