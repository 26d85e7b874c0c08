package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"slidecast/internal/store"
)

var titleCaser = cases.Title(language.English)

// stageLabel turns a job type into a display heading, e.g. "Generate Scripts".
func stageLabel(jobType store.JobType) string {
	return titleCaser.String(strings.ReplaceAll(string(jobType), "-", " "))
}

func statusLabel(status store.JobStatus) string {
	return titleCaser.String(string(status))
}

func deckStatusLabel(status store.DeckStatus) string {
	return titleCaser.String(strings.ReplaceAll(string(status), "_", " "))
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func colorizeStatus(status store.JobStatus, label string, colorize bool) string {
	if !colorize {
		return label
	}
	switch status {
	case store.JobSucceeded:
		return ansiGreen + label + ansiReset
	case store.JobFailed:
		return ansiRed + label + ansiReset
	case store.JobRunning:
		return ansiYellow + label + ansiReset
	default:
		return label
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatProgress(job *store.Job) string {
	return fmt.Sprintf("%3.0f%%", job.Progress*100)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncateMessage(message string, limit int) string {
	trimmed := strings.TrimSpace(message)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit-3] + "..."
}
