// Package layout computes the on-disk locations of deck artifacts. Every
// path is a pure function of the library root and deck identity, so stage
// reruns regenerate files in place instead of accumulating copies.
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"slidecast/internal/config"
)

// Layout resolves artifact paths beneath the configured library directory.
//
// A deck occupies library/<deck-id>/ with fixed subdirectories:
//
//	source/   the uploaded deck file
//	slides/   rasterized slide images
//	audio/    per-slide narration clips
//	video/    per-slide video segments
//	final/    the assembled video
type Layout struct {
	root string
}

// New builds a Layout rooted at the configured library directory.
func New(cfg *config.Config) *Layout {
	return &Layout{root: cfg.Paths.LibraryDir}
}

// NewWithRoot builds a Layout rooted at an explicit directory.
func NewWithRoot(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the library directory.
func (l *Layout) Root() string {
	return l.root
}

// DeckDir returns the deck's top-level directory.
func (l *Layout) DeckDir(deckID string) string {
	return filepath.Join(l.root, deckID)
}

// SourcePath returns where the uploaded deck file is stored. The extension
// follows the source type so external tools can sniff the format.
func (l *Layout) SourcePath(deckID, extension string) string {
	return filepath.Join(l.DeckDir(deckID), "source", "deck"+extension)
}

// WorkPDFPath returns the normalized PDF produced during ingestion. For PDF
// uploads this is the source itself copied into place; for PPTX uploads it is
// the conversion output.
func (l *Layout) WorkPDFPath(deckID string) string {
	return filepath.Join(l.DeckDir(deckID), "source", "deck.pdf")
}

// SlideImagePath returns the rasterized image for one slide index.
func (l *Layout) SlideImagePath(deckID string, index int) string {
	return filepath.Join(l.DeckDir(deckID), "slides", fmt.Sprintf("slide-%03d.png", index))
}

// SlideImagePrefix returns the pdftoppm output prefix; pdftoppm appends its
// own page numbering and extension.
func (l *Layout) SlideImagePrefix(deckID string) string {
	return filepath.Join(l.DeckDir(deckID), "slides", "slide")
}

// AudioPath returns the narration clip for one slide index.
func (l *Layout) AudioPath(deckID string, index int) string {
	return filepath.Join(l.DeckDir(deckID), "audio", fmt.Sprintf("slide-%03d.mp3", index))
}

// SegmentPath returns the rendered video segment for one slide index.
func (l *Layout) SegmentPath(deckID string, index int) string {
	return filepath.Join(l.DeckDir(deckID), "video", fmt.Sprintf("slide-%03d.mp4", index))
}

// ConcatListPath returns the ffmpeg concat manifest written during assembly.
func (l *Layout) ConcatListPath(deckID string) string {
	return filepath.Join(l.DeckDir(deckID), "video", "concat.txt")
}

// FinalVideoPath returns the assembled deck video.
func (l *Layout) FinalVideoPath(deckID string) string {
	return filepath.Join(l.DeckDir(deckID), "final", "deck.mp4")
}

// EnsureDeckDirs creates the full directory skeleton for a deck.
func (l *Layout) EnsureDeckDirs(deckID string) error {
	for _, sub := range []string{"source", "slides", "audio", "video", "final"} {
		dir := filepath.Join(l.DeckDir(deckID), sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ClearDerived removes regenerable artifacts ahead of a re-ingestion. The
// uploaded source file is kept.
func (l *Layout) ClearDerived(deckID string) error {
	for _, sub := range []string{"slides", "audio", "video", "final"} {
		dir := filepath.Join(l.DeckDir(deckID), sub)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("recreate %s: %w", dir, err)
		}
	}
	return nil
}
