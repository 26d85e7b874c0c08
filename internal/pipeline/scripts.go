package pipeline

import (
	"context"
	"fmt"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// ScriptGateway is the gateway surface the script stage depends on.
type ScriptGateway interface {
	GenerateScript(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// ScriptProcessor generates narration text for each slide in scope.
type ScriptProcessor struct {
	store         *store.Store
	gateway       ScriptGateway
	systemPrompt  string
	defaultModel  string
	allowedModels []string
}

// NewScriptProcessor wires the script generation stage.
func NewScriptProcessor(cfg *config.Config, st *store.Store, gateway ScriptGateway) *ScriptProcessor {
	return &ScriptProcessor{
		store:         st,
		gateway:       gateway,
		systemPrompt:  cfg.LLM.SystemPrompt,
		defaultModel:  cfg.LLM.Model,
		allowedModels: cfg.LLM.AllowedModels,
	}
}

func (p *ScriptProcessor) JobType() store.JobType {
	return store.JobGenerateScripts
}

func (p *ScriptProcessor) Execute(ctx context.Context, exec *Execution) (Outcome, error) {
	model := resolveModel(exec.Deck.ScriptModel, p.allowedModels, p.defaultModel)

	completed := 0
	total := len(exec.Slides)
	for _, slide := range exec.Slides {
		script, err := p.store.ScriptForSlide(ctx, slide.ID)
		if err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-scripts", "load", "load script record", err)
		}
		if script == nil {
			total--
			continue
		}

		if err := p.store.SetScriptStatus(ctx, slide.ID, store.ScriptRegenerating); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-scripts", "persist", "mark script regenerating", err)
		}

		content, err := p.gateway.GenerateScript(ctx, model, p.systemPrompt, buildScriptPrompt(exec.Deck, slide))
		if err != nil {
			if statusErr := p.store.SetScriptStatus(ctx, slide.ID, store.ScriptFailed); statusErr != nil {
				exec.Logger.Error("failed to mark script failed", logging.Error(statusErr))
			}
			return Outcome{}, err
		}

		if err := p.store.SetScriptContent(ctx, slide.ID, content); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-scripts", "persist", "store script content", err)
		}
		completed++
		exec.Progress(completed, total)
	}

	successStatus := store.DeckReadyForReview
	if exec.Deck.Mode == store.ModeOneShot {
		successStatus = store.DeckGenerating
	}
	return Outcome{
		SuccessStatus: successStatus,
		ChainEligible: true,
		ForwardSubset: exec.Job.SlideIDs,
	}, nil
}

// resolveModel returns the deck's chosen model when the allowlist admits it,
// otherwise the allowlist's first entry, otherwise the configured default.
func resolveModel(chosen string, allowed []string, fallback string) string {
	chosen = strings.TrimSpace(chosen)
	if len(allowed) == 0 {
		if chosen != "" {
			return chosen
		}
		return fallback
	}
	for _, model := range allowed {
		if chosen != "" && model == chosen {
			return chosen
		}
	}
	return allowed[0]
}

// buildScriptPrompt renders the per-slide user prompt from the deck and
// slide content.
func buildScriptPrompt(deck *store.Deck, slide *store.Slide) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Presentation: %s\n", strings.TrimSpace(deck.Title))
	fmt.Fprintf(&b, "Slide %d of %d\n", slide.Index, deck.SlideCount)
	if title := strings.TrimSpace(slide.Title); title != "" {
		fmt.Fprintf(&b, "Slide title: %s\n", title)
	}
	if body := strings.TrimSpace(slide.Body); body != "" {
		fmt.Fprintf(&b, "Visible text:\n%s\n", body)
	}
	if notes := strings.TrimSpace(slide.Notes); notes != "" {
		fmt.Fprintf(&b, "Speaker notes:\n%s\n", notes)
	}
	if ocr := strings.TrimSpace(slide.OCRText); ocr != "" {
		fmt.Fprintf(&b, "Text recognized from the slide image:\n%s\n", ocr)
	}
	if slide.NeedsImageContext {
		b.WriteString("This slide is mostly visual with little text; describe it in general terms that fit the presentation's flow.\n")
	}
	b.WriteString("Write the narration for this slide.")
	return b.String()
}
