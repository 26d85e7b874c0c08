package pipeline

import (
	"context"
	"fmt"

	"slidecast/internal/config"
	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/notify"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// Extractor parses a deck's uploaded source into the new slide set.
type Extractor interface {
	Extract(ctx context.Context, deck *store.Deck) ([]store.NewSlide, error)
}

// IngestionProcessor replaces a deck's slide state from its uploaded file.
type IngestionProcessor struct {
	store     *store.Store
	extractor Extractor
	paths     *layout.Layout
	notifier  notify.Service
	maxSlides int
}

// NewIngestionProcessor wires the ingestion stage.
func NewIngestionProcessor(cfg *config.Config, st *store.Store, extractor Extractor, paths *layout.Layout, notifier notify.Service) *IngestionProcessor {
	return &IngestionProcessor{
		store:     st,
		extractor: extractor,
		paths:     paths,
		notifier:  notifier,
		maxSlides: cfg.Limits.MaxSlides,
	}
}

func (p *IngestionProcessor) JobType() store.JobType {
	return store.JobIngest
}

// Execute re-ingests the deck: derived artifacts are cleared, prior slides
// replaced wholesale, and one pending script created per new slide.
func (p *IngestionProcessor) Execute(ctx context.Context, exec *Execution) (Outcome, error) {
	deck := exec.Deck

	if err := p.paths.EnsureDeckDirs(deck.ID); err != nil {
		return Outcome{}, services.Wrap(services.ErrExternalTool, "ingest", "layout", "prepare deck directories", err)
	}
	if err := p.paths.ClearDerived(deck.ID); err != nil {
		return Outcome{}, services.Wrap(services.ErrExternalTool, "ingest", "layout", "clear derived artifacts", err)
	}

	slides, err := p.extractor.Extract(ctx, deck)
	if err != nil {
		return Outcome{}, err
	}
	if len(slides) == 0 {
		return Outcome{}, services.Wrap(services.ErrValidation, "ingest", "extract", "deck produced no slides", nil)
	}

	if p.maxSlides > 0 && len(slides) > p.maxSlides {
		warning := fmt.Sprintf("deck has %d slides, exceeding the configured soft limit of %d", len(slides), p.maxSlides)
		if err := p.store.AppendDeckWarning(ctx, deck.ID, warning); err != nil {
			exec.Logger.Warn("failed to record slide count warning", logging.Error(err))
		}
		if p.notifier != nil {
			if err := p.notifier.NotifyWarning(ctx, exec.Job.OwnerID, deck.Title, warning); err != nil {
				exec.Logger.Debug("slide count warning notification failed", logging.Error(err))
			}
		}
	}

	if _, err := p.store.ReplaceSlides(ctx, deck.ID, slides); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "ingest", "persist", "replace slides", err)
	}
	for i := range slides {
		exec.Progress(i+1, len(slides))
	}

	successStatus := store.DeckReadyForReview
	if deck.Mode == store.ModeOneShot {
		successStatus = store.DeckGenerating
	}
	return Outcome{
		SuccessStatus: successStatus,
		ChainEligible: len(slides) > 0,
	}, nil
}
