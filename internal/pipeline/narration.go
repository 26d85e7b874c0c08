package pipeline

import (
	"context"
	"os"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/services/tts"
	"slidecast/internal/store"
)

// SpeechGateway is the gateway surface the narration stage depends on.
type SpeechGateway interface {
	SynthesizeSpeech(ctx context.Context, req tts.SynthesisRequest) ([]byte, error)
}

// DurationProber reads a media file's playback duration.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, bool)
}

// NarrationProcessor synthesizes one audio clip per scripted slide.
type NarrationProcessor struct {
	store         *store.Store
	gateway       SpeechGateway
	prober        DurationProber
	paths         *layout.Layout
	defaultVoice  string
	defaultModel  string
	allowedModels []string
}

// NewNarrationProcessor wires the narration synthesis stage.
func NewNarrationProcessor(cfg *config.Config, st *store.Store, gateway SpeechGateway, prober DurationProber, paths *layout.Layout) *NarrationProcessor {
	return &NarrationProcessor{
		store:         st,
		gateway:       gateway,
		prober:        prober,
		paths:         paths,
		defaultVoice:  cfg.TTS.DefaultVoice,
		defaultModel:  cfg.TTS.Model,
		allowedModels: cfg.TTS.AllowedModels,
	}
}

func (p *NarrationProcessor) JobType() store.JobType {
	return store.JobGenerateAudio
}

func (p *NarrationProcessor) Execute(ctx context.Context, exec *Execution) (Outcome, error) {
	voice := strings.TrimSpace(exec.Deck.Voice)
	if voice == "" {
		voice = p.defaultVoice
	}
	model := resolveModel(exec.Deck.TTSModel, p.allowedModels, p.defaultModel)

	// Only slides with generated script text carry narration work.
	type unit struct {
		slide  *store.Slide
		script *store.Script
	}
	var units []unit
	for _, slide := range exec.Slides {
		script, err := p.store.ScriptForSlide(ctx, slide.ID)
		if err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-audio", "load", "load script record", err)
		}
		if script == nil || strings.TrimSpace(script.Content) == "" {
			continue
		}
		units = append(units, unit{slide: slide, script: script})
	}
	if len(units) == 0 {
		return Outcome{}, services.Wrap(services.ErrValidation, "generate-audio", "scope", "no slides have narration scripts", nil)
	}

	for i, u := range units {
		if err := p.store.UpsertAsset(ctx, u.slide.ID, store.AssetAudio, store.AssetProcessing, "", 0); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-audio", "persist", "mark audio processing", err)
		}

		audio, err := p.gateway.SynthesizeSpeech(ctx, tts.SynthesisRequest{
			Text:    u.script.Content,
			VoiceID: voice,
			Model:   model,
		})
		if err != nil {
			if assetErr := p.store.UpsertAsset(ctx, u.slide.ID, store.AssetAudio, store.AssetFailed, "", 0); assetErr != nil {
				exec.Logger.Error("failed to mark audio failed", logging.Error(assetErr))
			}
			return Outcome{}, err
		}

		audioPath := p.paths.AudioPath(exec.Deck.ID, u.slide.Index)
		if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
			if assetErr := p.store.UpsertAsset(ctx, u.slide.ID, store.AssetAudio, store.AssetFailed, "", 0); assetErr != nil {
				exec.Logger.Error("failed to mark audio failed", logging.Error(assetErr))
			}
			return Outcome{}, services.Wrap(services.ErrExternalTool, "generate-audio", "write", "write narration clip", err)
		}

		duration, _ := p.prober.Duration(ctx, audioPath)
		if err := p.store.UpsertAsset(ctx, u.slide.ID, store.AssetAudio, store.AssetReady, audioPath, duration); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "generate-audio", "persist", "mark audio ready", err)
		}
		exec.Progress(i+1, len(units))
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
