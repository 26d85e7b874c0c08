package api_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/notify"
	"slidecast/internal/pipeline"
	"slidecast/internal/services"
	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

func newService(t *testing.T, opts ...testsupport.ConfigOption) (*api.Service, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	paths := layout.New(cfg)
	admission := pipeline.NewAdmission(cfg, st)
	return api.NewService(cfg, st, paths, admission, notify.NewNop(), logging.NewNop()), st
}

func TestCreateDeckStoresUploadAndEnqueuesIngest(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	deck, job, err := svc.CreateDeck(ctx, api.CreateDeckParams{
		OwnerID:    "user-1",
		Title:      "Quarterly",
		SourceName: "quarterly.pptx",
		Source:     bytes.NewReader([]byte("pptx-bytes")),
	})
	if err != nil {
		t.Fatalf("CreateDeck: %v", err)
	}
	if deck.SourceType != store.SourcePPTX {
		t.Fatalf("expected pptx source type, got %s", deck.SourceType)
	}
	if _, err := os.Stat(deck.SourcePath); err != nil {
		t.Fatalf("expected upload on disk: %v", err)
	}
	if job == nil || job.Type != store.JobIngest || job.Status != store.JobQueued {
		t.Fatalf("expected queued ingest job, got %#v", job)
	}

	stored, _ := st.GetDeck(ctx, deck.ID)
	if stored.SourcePath != deck.SourcePath {
		t.Fatalf("source path not persisted: %q", stored.SourcePath)
	}
}

func TestCreateDeckRejectsUnknownExtension(t *testing.T) {
	svc, _ := newService(t)

	_, _, err := svc.CreateDeck(context.Background(), api.CreateDeckParams{
		OwnerID:    "user-1",
		SourceName: "deck.key",
		Source:     bytes.NewReader([]byte("x")),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateDeckWarnsOnOversizedUpload(t *testing.T) {
	svc, st := newService(t, func(cfg *config.Config) {
		cfg.Limits.MaxUploadMiB = 1
	})
	ctx := context.Background()

	payload := bytes.Repeat([]byte("a"), 1024*1024+1)
	deck, _, err := svc.CreateDeck(ctx, api.CreateDeckParams{
		OwnerID:    "user-1",
		Title:      "Big",
		SourceName: "big.pdf",
		Source:     bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("CreateDeck: %v", err)
	}

	fetched, _ := st.GetDeck(ctx, deck.ID)
	if len(fetched.Warnings) != 1 || !strings.Contains(fetched.Warnings[0], "soft limit") {
		t.Fatalf("expected an upload size warning, got %v", fetched.Warnings)
	}
}

func TestSubmitJobRejectedByAdmissionLeavesNoRow(t *testing.T) {
	svc, st := newService(t, testsupport.WithPerUserLimit(1))
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	testsupport.SeedSlides(t, st, deck.ID, 1)
	testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)

	_, err := svc.SubmitJob(ctx, api.SubmitJobParams{
		DeckID: deck.ID,
		Type:   store.JobGenerateScripts,
	})
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected admission rejection, got %v", err)
	}
	if !strings.Contains(err.Error(), "1") {
		t.Fatalf("expected counts in message, got %q", err.Error())
	}

	jobs, _ := st.JobsForDeck(ctx, deck.ID)
	if len(jobs) != 1 {
		t.Fatalf("rejected submission must not create a job, found %d", len(jobs))
	}
}

func TestSubmitJobUnknownDeck(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SubmitJob(context.Background(), api.SubmitJobParams{
		DeckID: "missing",
		Type:   store.JobIngest,
	})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetryJobRequeuesFailedWithSameScope(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	slides := testsupport.SeedSlides(t, st, deck.ID, 2)
	original, err := st.CreateJob(ctx, store.NewJobParams{
		DeckID:   deck.ID,
		OwnerID:  "user-1",
		Type:     store.JobGenerateAudio,
		SlideIDs: []int64{slides[1].ID},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := st.MarkRunning(ctx, original.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := st.MarkFailed(ctx, original.ID, errors.New("tts responded with 503")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	retried, err := svc.RetryJob(ctx, original.ID)
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if retried.ID == original.ID {
		t.Fatal("retry must create a fresh job row")
	}
	if retried.Trigger != store.TriggerRetry {
		t.Fatalf("expected retry trigger, got %s", retried.Trigger)
	}
	if len(retried.SlideIDs) != 1 || retried.SlideIDs[0] != slides[1].ID {
		t.Fatalf("expected forwarded subset, got %v", retried.SlideIDs)
	}
}

func TestRetryJobRejectsNonFailed(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	job := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)

	_, err := svc.RetryJob(ctx, job.ID)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for queued job, got %v", err)
	}
}
