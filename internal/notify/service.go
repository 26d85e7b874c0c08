// Package notify delivers user-facing pipeline notifications via ntfy.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"slidecast/internal/config"
)

const userAgent = "Slidecast/0.1.0"

// Service defines the notification surface exposed to pipeline components.
// Delivery is best effort: stage outcomes never depend on a notification
// landing.
type Service interface {
	NotifyStageCompleted(ctx context.Context, userID, deckTitle, stage string) error
	NotifyStageFailed(ctx context.Context, userID, deckTitle, stage, reason string) error
	NotifyDeckComplete(ctx context.Context, userID, deckTitle string) error
	NotifyWarning(ctx context.Context, userID, deckTitle, warning string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// NewNop returns a notifier that discards everything.
func NewNop() Service {
	return noopService{}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyStageCompleted(ctx context.Context, userID, deckTitle, stage string) error {
	data := payload{
		title:   "Slidecast - Stage Complete",
		message: fmt.Sprintf("%s finished for %s", stage, strings.TrimSpace(deckTitle)),
		tags:    []string{"slidecast", stage, "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageFailed(ctx context.Context, userID, deckTitle, stage, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown failure"
	}
	data := payload{
		title:    "Slidecast - Stage Failed",
		message:  fmt.Sprintf("%s failed for %s: %s", stage, strings.TrimSpace(deckTitle), reason),
		tags:     []string{"slidecast", stage, "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeckComplete(ctx context.Context, userID, deckTitle string) error {
	data := payload{
		title:   "Slidecast - Video Ready",
		message: fmt.Sprintf("Final video ready for %s", strings.TrimSpace(deckTitle)),
		tags:    []string{"slidecast", "assemble", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWarning(ctx context.Context, userID, deckTitle, warning string) error {
	data := payload{
		title:   "Slidecast - Warning",
		message: fmt.Sprintf("%s: %s", strings.TrimSpace(deckTitle), strings.TrimSpace(warning)),
		tags:    []string{"slidecast", "warning"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Slidecast - Test",
		message:  "Notification system test",
		tags:     []string{"slidecast", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyStageCompleted(context.Context, string, string, string) error      { return nil }
func (noopService) NotifyStageFailed(context.Context, string, string, string, string) error { return nil }
func (noopService) NotifyDeckComplete(context.Context, string, string) error                { return nil }
func (noopService) NotifyWarning(context.Context, string, string, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                                  { return nil }
