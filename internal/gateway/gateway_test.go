package gateway_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"slidecast/internal/gateway"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/services/tts"
	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

type fakeScripts struct {
	hasKey  bool
	content string
	err     error
	calls   int
}

func (f *fakeScripts) HasAPIKey() bool { return f.hasKey }

func (f *fakeScripts) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	return f.content, f.err
}

type fakeSpeech struct {
	hasKey bool
	audio  []byte
	err    error
	calls  int
}

func (f *fakeSpeech) HasAPIKey() bool { return f.hasKey }

func (f *fakeSpeech) Synthesize(ctx context.Context, req tts.SynthesisRequest) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

func TestMissingKeyFailsClosedWithoutNetworkCall(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	scripts := &fakeScripts{hasKey: false}
	g := gateway.NewWithClients(scripts, &fakeSpeech{hasKey: true}, st, logging.NewNop())

	_, err := g.GenerateScript(ctx, "model", "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if scripts.calls != 0 {
		t.Fatalf("expected no provider call, got %d", scripts.calls)
	}

	health, err := st.GetServiceHealth(ctx, store.ServiceLLM)
	if err != nil {
		t.Fatalf("GetServiceHealth: %v", err)
	}
	if !health.Active || health.Message != "API key not configured" {
		t.Fatalf("unexpected health flag: %#v", health)
	}
}

func TestStatusFailureTripsWithProviderAndStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	speech := &fakeSpeech{hasKey: true, err: &tts.StatusError{StatusCode: 503, Body: "service unavailable"}}
	g := gateway.NewWithClients(&fakeScripts{hasKey: true}, speech, st, logging.NewNop())

	_, err := g.SynthesizeSpeech(ctx, tts.SynthesisRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status code in error, got %v", err)
	}

	health, _ := st.GetServiceHealth(ctx, store.ServiceTTS)
	if !health.Active {
		t.Fatal("expected tts flag tripped")
	}
	if !strings.Contains(health.Message, "tts responded with 503") || !strings.Contains(health.Message, "service unavailable") {
		t.Fatalf("unexpected flag message %q", health.Message)
	}
}

func TestTransportFailureTripsWithErrorText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	scripts := &fakeScripts{hasKey: true, err: errors.New("dial tcp: connection refused")}
	g := gateway.NewWithClients(scripts, &fakeSpeech{hasKey: true}, st, logging.NewNop())

	_, err := g.GenerateScript(ctx, "model", "system", "user")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}

	health, _ := st.GetServiceHealth(ctx, store.ServiceLLM)
	if !health.Active || !strings.Contains(health.Message, "connection refused") {
		t.Fatalf("unexpected flag state: %#v", health)
	}
}

func TestSuccessClearsOnlyOwnProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.TripServiceHealth(ctx, store.ServiceLLM, "llm down"); err != nil {
		t.Fatalf("trip llm: %v", err)
	}
	if err := st.TripServiceHealth(ctx, store.ServiceTTS, "tts down"); err != nil {
		t.Fatalf("trip tts: %v", err)
	}

	g := gateway.NewWithClients(
		&fakeScripts{hasKey: true, content: "narration"},
		&fakeSpeech{hasKey: true, audio: []byte("mp3")},
		st,
		logging.NewNop(),
	)

	if _, err := g.GenerateScript(ctx, "model", "system", "user"); err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}

	llmHealth, _ := st.GetServiceHealth(ctx, store.ServiceLLM)
	if llmHealth.Active {
		t.Fatal("expected llm flag cleared after success")
	}
	ttsHealth, _ := st.GetServiceHealth(ctx, store.ServiceTTS)
	if !ttsHealth.Active {
		t.Fatal("llm success must not clear the tts flag")
	}

	if _, err := g.SynthesizeSpeech(ctx, tts.SynthesisRequest{Text: "hi", VoiceID: "v"}); err != nil {
		t.Fatalf("SynthesizeSpeech: %v", err)
	}
	ttsHealth, _ = st.GetServiceHealth(ctx, store.ServiceTTS)
	if ttsHealth.Active {
		t.Fatal("expected tts flag cleared after success")
	}
}
