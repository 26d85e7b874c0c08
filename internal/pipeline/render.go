package pipeline

import (
	"context"

	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// SegmentEncoder renders slide segments and concatenates them.
type SegmentEncoder interface {
	RenderSlide(ctx context.Context, imagePath, audioPath, outputPath string) error
	Concat(ctx context.Context, segmentPaths []string, listPath, outputPath string) error
}

// RenderProcessor turns each narrated slide into a video segment.
type RenderProcessor struct {
	store   *store.Store
	encoder SegmentEncoder
	prober  DurationProber
	paths   *layout.Layout
}

// NewRenderProcessor wires the slide video rendering stage.
func NewRenderProcessor(st *store.Store, encoder SegmentEncoder, prober DurationProber, paths *layout.Layout) *RenderProcessor {
	return &RenderProcessor{
		store:   st,
		encoder: encoder,
		prober:  prober,
		paths:   paths,
	}
}

func (p *RenderProcessor) JobType() store.JobType {
	return store.JobGenerateVideo
}

func (p *RenderProcessor) Execute(ctx context.Context, exec *Execution) (Outcome, error) {
	// Only slides with a ready narration clip can be rendered.
	type unit struct {
		slide *store.Slide
		audio *store.Asset
	}
	var units []unit
	for _, slide := range exec.Slides {
		audio, err := p.store.AssetForSlide(ctx, slide.ID, store.AssetAudio)
		if err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-video", "load", "load audio asset", err)
		}
		if audio == nil || audio.Status != store.AssetReady {
			continue
		}
		units = append(units, unit{slide: slide, audio: audio})
	}
	if len(units) == 0 {
		return Outcome{}, services.Wrap(services.ErrValidation, "generate-video", "scope", "no slides have narration audio", nil)
	}

	for i, u := range units {
		if err := p.store.UpsertAsset(ctx, u.slide.ID, store.AssetVideo, store.AssetProcessing, "", 0); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-video", "persist", "mark video processing", err)
		}

		segmentPath := p.paths.SegmentPath(exec.Deck.ID, u.slide.Index)
		if err := p.encoder.RenderSlide(ctx, u.slide.ImagePath, u.audio.Path, segmentPath); err != nil {
			if assetErr := p.store.UpsertAsset(ctx, u.slide.ID, store.AssetVideo, store.AssetFailed, "", 0); assetErr != nil {
				exec.Logger.Error("failed to mark video failed", logging.Error(assetErr))
			}
			return Outcome{}, err
		}

		duration, _ := p.prober.Duration(ctx, segmentPath)
		if err := p.store.UpsertAsset(ctx, u.slide.ID, store.AssetVideo, store.AssetReady, segmentPath, duration); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-video", "persist", "mark video ready", err)
		}
		exec.Progress(i+1, len(units))
	}

	successStatus := store.DeckReadyForReview
	if exec.Deck.Mode == store.ModeOneShot {
		successStatus = store.DeckGenerating
	}
	// Assembly always reassembles from whatever is ready, so no subset is
	// forwarded.
	return Outcome{
		SuccessStatus: successStatus,
		ChainEligible: true,
	}, nil
}
