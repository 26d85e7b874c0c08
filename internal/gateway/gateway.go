// Package gateway fronts the external AI providers. Every call funnels
// through one failure-classification path that keeps the per-provider health
// flags current: a failure trips the provider's flag, a success clears it,
// and no provider ever touches another provider's flag.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/services/llm"
	"slidecast/internal/services/tts"
	"slidecast/internal/store"
)

// bodyTruncateLimit bounds provider response bodies embedded in health-flag
// messages.
const bodyTruncateLimit = 200

// HealthStore records per-provider availability. Absent records read as
// healthy.
type HealthStore interface {
	TripServiceHealth(ctx context.Context, service, message string) error
	ClearServiceHealth(ctx context.Context, service string) error
}

// ScriptClient generates narration text.
type ScriptClient interface {
	HasAPIKey() bool
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// SpeechClient synthesizes narration audio.
type SpeechClient interface {
	HasAPIKey() bool
	Synthesize(ctx context.Context, req tts.SynthesisRequest) ([]byte, error)
}

// Gateway wraps the LLM and TTS clients with health-flag bookkeeping.
type Gateway struct {
	scripts ScriptClient
	speech  SpeechClient
	health  HealthStore
	logger  *slog.Logger
}

// New wires a Gateway from configuration. The health store is injected so
// tests and the daemon share one flag surface.
func New(cfg *config.Config, health HealthStore, logger *slog.Logger) *Gateway {
	return NewWithClients(llm.NewClient(cfg.LLM), tts.NewClient(cfg.TTS), health, logger)
}

// NewWithClients wires a Gateway around explicit provider clients.
func NewWithClients(scripts ScriptClient, speech SpeechClient, health HealthStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		scripts: scripts,
		speech:  speech,
		health:  health,
		logger:  logging.NewComponentLogger(logger, "gateway"),
	}
}

// GenerateScript requests narration text for one slide prompt.
func (g *Gateway) GenerateScript(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	if !g.scripts.HasAPIKey() {
		return "", g.failClosed(ctx, store.ServiceLLM)
	}
	content, err := g.scripts.Complete(ctx, model, systemPrompt, userPrompt)
	if err != nil {
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			return "", g.tripStatus(ctx, store.ServiceLLM, statusErr.StatusCode, statusErr.Body, err)
		}
		return "", g.tripTransport(ctx, store.ServiceLLM, err)
	}
	g.clear(ctx, store.ServiceLLM)
	return content, nil
}

// SynthesizeSpeech requests narration audio for one script.
func (g *Gateway) SynthesizeSpeech(ctx context.Context, req tts.SynthesisRequest) ([]byte, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	if !g.speech.HasAPIKey() {
		return nil, g.failClosed(ctx, store.ServiceTTS)
	}
	audio, err := g.speech.Synthesize(ctx, req)
	if err != nil {
		var statusErr *tts.StatusError
		if errors.As(err, &statusErr) {
			return nil, g.tripStatus(ctx, store.ServiceTTS, statusErr.StatusCode, statusErr.Body, err)
		}
		return nil, g.tripTransport(ctx, store.ServiceTTS, err)
	}
	g.clear(ctx, store.ServiceTTS)
	return audio, nil
}

// failClosed handles a missing credential: the provider's flag trips without
// any network call being made.
func (g *Gateway) failClosed(ctx context.Context, provider string) error {
	const message = "API key not configured"
	g.trip(ctx, provider, message)
	return services.Wrap(services.ErrConfiguration, provider, "credentials", message, nil)
}

func (g *Gateway) tripStatus(ctx context.Context, provider string, statusCode int, body string, err error) error {
	message := fmt.Sprintf("%s responded with %d: %s", provider, statusCode, truncateBody(body))
	g.trip(ctx, provider, message)
	return services.Wrap(services.ErrUnavailable, provider, "request", message, err)
}

func (g *Gateway) tripTransport(ctx context.Context, provider string, err error) error {
	g.trip(ctx, provider, err.Error())
	return services.Wrap(services.ErrTransient, provider, "request", "provider unreachable", err)
}

func (g *Gateway) trip(ctx context.Context, provider, message string) {
	if g.health == nil {
		return
	}
	logger := logging.WithContext(ctx, g.logger)
	if err := g.health.TripServiceHealth(ctx, provider, message); err != nil {
		logger.Warn("failed to trip service health flag",
			logging.String("provider", provider),
			logging.Error(err),
		)
	}
	logger.Warn("provider marked unhealthy",
		logging.String("provider", provider),
		logging.String("reason", message),
	)
}

// clear resets the caller's own provider flag. Another provider's flag is
// never touched here.
func (g *Gateway) clear(ctx context.Context, provider string) {
	if g.health == nil {
		return
	}
	if err := g.health.ClearServiceHealth(ctx, provider); err != nil {
		logging.WithContext(ctx, g.logger).Warn("failed to clear service health flag",
			logging.String("provider", provider),
			logging.Error(err),
		)
	}
}

func truncateBody(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	runes := []rune(body)
	if len(runes) > bodyTruncateLimit {
		return string(runes[:bodyTruncateLimit]) + "..."
	}
	return body
}
