// Package ingest turns an uploaded deck file into per-slide text and images.
//
// PPTX decks are parsed directly for text (slide and notes XML parts) and
// converted to PDF for rasterization. PDF decks use per-page text extraction.
// Either way each slide ends up with a PNG image, and slides whose extracted
// text falls below the configured minimum get an OCR pass over that image.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// Extractor produces the slide set for a deck from its uploaded source file.
type Extractor struct {
	tools        config.Tools
	minTextChars int
	paths        *layout.Layout
	logger       *slog.Logger
	run          commandRunner
}

// New constructs an Extractor from configuration.
func New(cfg *config.Config, paths *layout.Layout, logger *slog.Logger) *Extractor {
	return &Extractor{
		tools:        cfg.Tools,
		minTextChars: cfg.Ingest.MinTextChars,
		paths:        paths,
		logger:       logging.NewComponentLogger(logger, "ingest"),
		run:          defaultCommandRunner,
	}
}

// WithCommandRunner injects a command runner for tests.
func (e *Extractor) WithCommandRunner(run commandRunner) {
	if e != nil && run != nil {
		e.run = run
	}
}

// Extract parses the deck's source file and returns the new slide set in
// index order. The deck's slide and image directories must already exist.
func (e *Extractor) Extract(ctx context.Context, deck *store.Deck) ([]store.NewSlide, error) {
	if deck == nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "extract", "deck is required", nil)
	}
	if _, err := os.Stat(deck.SourcePath); err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "extract", "source file missing", err)
	}

	var (
		texts []slideText
		err   error
	)
	switch deck.SourceType {
	case store.SourcePPTX:
		texts, err = e.extractPPTX(ctx, deck)
	case store.SourcePDF:
		texts, err = e.extractPDF(ctx, deck)
	default:
		return nil, services.Wrap(services.ErrValidation, "ingest", "extract", fmt.Sprintf("unsupported source type %q", deck.SourceType), nil)
	}
	if err != nil {
		return nil, err
	}

	images, err := e.rasterizeDeck(ctx, deck, len(texts))
	if err != nil {
		return nil, err
	}

	slides := make([]store.NewSlide, 0, len(texts))
	for i, text := range texts {
		slide := store.NewSlide{
			Index:     i + 1,
			Title:     text.Title,
			Body:      text.Body,
			Notes:     text.Notes,
			ImagePath: images[i],
		}
		e.applyOCRFallback(ctx, &slide)
		slides = append(slides, slide)
	}
	return slides, nil
}

func (e *Extractor) extractPPTX(ctx context.Context, deck *store.Deck) ([]slideText, error) {
	texts, err := parsePPTX(deck.SourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "parse", "parse pptx", err)
	}
	if err := e.convertToPDF(ctx, deck.SourcePath, e.paths.WorkPDFPath(deck.ID)); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "soffice", "convert deck to pdf", err)
	}
	return texts, nil
}

func (e *Extractor) extractPDF(ctx context.Context, deck *store.Deck) ([]slideText, error) {
	workPDF := e.paths.WorkPDFPath(deck.ID)
	if deck.SourcePath != workPDF {
		data, err := os.ReadFile(deck.SourcePath)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "parse", "read pdf source", err)
		}
		if err := os.WriteFile(workPDF, data, 0o644); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "ingest", "parse", "stage pdf copy", err)
		}
	}

	pages, err := e.extractPDFText(ctx, workPDF)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "pdftotext", "extract page text", err)
	}
	if len(pages) == 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "parse", "pdf contains no pages", nil)
	}

	texts := make([]slideText, len(pages))
	for i, page := range pages {
		texts[i] = slideText{Index: i + 1, Body: page}
	}
	return texts, nil
}

// rasterizeDeck renders the work PDF to one PNG per slide at the deck's
// deterministic image paths.
func (e *Extractor) rasterizeDeck(ctx context.Context, deck *store.Deck, slideCount int) ([]string, error) {
	produced, err := e.rasterize(ctx, e.paths.WorkPDFPath(deck.ID), e.paths.SlideImagePrefix(deck.ID))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "pdftoppm", "rasterize deck", err)
	}
	if len(produced) < slideCount {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "pdftoppm",
			fmt.Sprintf("expected %d page images, got %d", slideCount, len(produced)), nil)
	}

	images := make([]string, slideCount)
	for i := 0; i < slideCount; i++ {
		target := e.paths.SlideImagePath(deck.ID, i+1)
		if produced[i] != target {
			if err := os.Rename(produced[i], target); err != nil {
				return nil, services.Wrap(services.ErrExternalTool, "ingest", "pdftoppm", "normalize image name", err)
			}
		}
		images[i] = target
	}
	// Extra pages can appear when a PPTX carries hidden slides the text
	// parser skipped; drop them.
	for _, leftover := range produced[slideCount:] {
		_ = os.Remove(leftover)
	}
	return images, nil
}

// applyOCRFallback runs OCR when a slide's extracted text is too thin, then
// sets the needs-image-context flag from the post-OCR total. OCR failures
// are logged and treated as empty results, not ingestion failures.
func (e *Extractor) applyOCRFallback(ctx context.Context, slide *store.NewSlide) {
	if e.combinedLength(slide) >= e.minTextChars {
		return
	}

	text, err := e.ocrImage(ctx, slide.ImagePath)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("ocr fallback failed",
				logging.Int("slide_index", slide.Index),
				logging.Error(err),
			)
		}
	} else {
		slide.OCRText = text
	}
	slide.NeedsImageContext = e.combinedLength(slide) < e.minTextChars
}

func (e *Extractor) combinedLength(slide *store.NewSlide) int {
	total := 0
	for _, part := range []string{slide.Body, slide.Notes, slide.OCRText} {
		total += len(strings.TrimSpace(part))
	}
	return total
}
