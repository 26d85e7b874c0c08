// Package tts wraps the speech synthesis API used for slide narration.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"slidecast/internal/config"
)

const defaultHTTPTimeout = 120 * time.Second

// StatusError reports a non-success HTTP response from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tts request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Client synthesizes narration audio. Requests are single-shot; callers own
// failure policy.
type Client struct {
	apiKey     string
	baseURL    string
	settings   config.VoiceSettings
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a synthesis client from the TTS configuration.
func NewClient(cfg config.TTS, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		settings:   cfg.Voice,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// HasAPIKey reports whether the client was configured with credentials.
func (c *Client) HasAPIKey() bool {
	return c != nil && c.apiKey != ""
}

// SynthesisRequest carries one narration synthesis request.
type SynthesisRequest struct {
	Text    string
	VoiceID string
	Model   string
}

type synthesisPayload struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize converts narration text into MP3 audio bytes.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("tts synthesize: text required")
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, errors.New("tts synthesize: voice id required")
	}
	if c.apiKey == "" {
		return nil, errors.New("tts synthesize: api key required")
	}

	endpoint, err := url.JoinPath(c.baseURL, url.PathEscape(strings.TrimSpace(req.VoiceID)))
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: build url: %w", err)
	}
	payload := synthesisPayload{
		Text:    text,
		ModelID: strings.TrimSpace(req.Model),
		VoiceSettings: voiceSettings{
			Stability:       c.settings.Stability,
			SimilarityBoost: c.settings.SimilarityBoost,
			Style:           c.settings.Style,
			UseSpeakerBoost: c.settings.SpeakerBoost,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: new request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: read body: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if len(body) == 0 {
		return nil, errors.New("tts synthesize: empty audio response")
	}
	return body, nil
}
