package pipeline

import (
	"context"

	"slidecast/internal/layout"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// AssembleProcessor concatenates every ready slide segment into the deck's
// final video. It ignores any slide subset on the job: assembly always
// reflects the deck's current ready state.
type AssembleProcessor struct {
	store   *store.Store
	encoder SegmentEncoder
	prober  DurationProber
	paths   *layout.Layout
}

// NewAssembleProcessor wires the final assembly stage.
func NewAssembleProcessor(st *store.Store, encoder SegmentEncoder, prober DurationProber, paths *layout.Layout) *AssembleProcessor {
	return &AssembleProcessor{
		store:   st,
		encoder: encoder,
		prober:  prober,
		paths:   paths,
	}
}

func (p *AssembleProcessor) JobType() store.JobType {
	return store.JobAssembleFinal
}

func (p *AssembleProcessor) Execute(ctx context.Context, exec *Execution) (Outcome, error) {
	assets, err := p.store.ReadyAssetsForDeck(ctx, exec.Deck.ID, store.AssetVideo)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "assemble-final", "load", "load ready segments", err)
	}
	if len(assets) == 0 {
		return Outcome{}, services.Wrap(services.ErrValidation, "assemble-final", "scope", "no ready video clips to assemble", nil)
	}

	segments := make([]string, len(assets))
	for i, asset := range assets {
		segments[i] = asset.Path
	}

	finalPath := p.paths.FinalVideoPath(exec.Deck.ID)
	if err := p.encoder.Concat(ctx, segments, p.paths.ConcatListPath(exec.Deck.ID), finalPath); err != nil {
		return Outcome{}, err
	}
	exec.Progress(len(segments), len(segments))

	duration, _ := p.prober.Duration(ctx, finalPath)
	exec.Deck.FinalVideoPath = finalPath
	exec.Deck.FinalVideoDuration = duration
	if err := p.store.UpdateDeck(ctx, exec.Deck); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "assemble-final", "persist", "record final video", err)
	}

	return Outcome{SuccessStatus: store.DeckComplete}, nil
}
