package store_test

import (
	"context"
	"testing"
	"time"

	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

func TestCreateDeckDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck, err := st.CreateDeck(ctx, store.NewDeckParams{
		OwnerID:    "user-1",
		Title:      "  Quarterly Update  ",
		SourceType: store.SourcePDF,
	})
	if err != nil {
		t.Fatalf("CreateDeck: %v", err)
	}
	if deck.ID == "" {
		t.Fatal("expected deck id to be assigned")
	}
	if deck.Status != store.DeckIngesting {
		t.Fatalf("expected ingesting status, got %s", deck.Status)
	}
	if deck.Mode != store.ModeReview {
		t.Fatalf("expected review mode default, got %s", deck.Mode)
	}
	if deck.Title != "Quarterly Update" {
		t.Fatalf("expected trimmed title, got %q", deck.Title)
	}
}

func TestCreateDeckRejectsUnknownSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.CreateDeck(context.Background(), store.NewDeckParams{
		OwnerID:    "user-1",
		SourceType: store.SourceType("keynote"),
	}); err == nil {
		t.Fatal("expected error for unsupported source type")
	}
}

func TestReplaceSlidesIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	first := testsupport.SeedSlides(t, st, deck.ID, 5)
	if len(first) != 5 {
		t.Fatalf("expected 5 slides, got %d", len(first))
	}

	// Re-ingestion fully replaces prior slides; old rows must not survive.
	second := testsupport.SeedSlides(t, st, deck.ID, 3)
	slides, err := st.SlidesForDeck(ctx, deck.ID)
	if err != nil {
		t.Fatalf("SlidesForDeck: %v", err)
	}
	if len(slides) != 3 {
		t.Fatalf("expected 3 slides after replace, got %d", len(slides))
	}
	for i, slide := range slides {
		if slide.Index != i+1 {
			t.Fatalf("expected contiguous indices, got %d at %d", slide.Index, i)
		}
		if slide.ID == first[0].ID {
			t.Fatal("old slide row survived re-ingestion")
		}
	}
	_ = second

	updated, err := st.GetDeck(ctx, deck.ID)
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if updated.SlideCount != 3 {
		t.Fatalf("expected slide count 3, got %d", updated.SlideCount)
	}

	// Scripts were created pending for each new slide.
	for _, slide := range slides {
		script, err := st.ScriptForSlide(ctx, slide.ID)
		if err != nil {
			t.Fatalf("ScriptForSlide: %v", err)
		}
		if script == nil || script.Status != store.ScriptPending {
			t.Fatalf("expected pending script for slide %d, got %#v", slide.Index, script)
		}
	}
}

func TestReplaceSlidesRejectsGaps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)

	_, err := st.ReplaceSlides(context.Background(), deck.ID, []store.NewSlide{
		{Index: 1}, {Index: 3},
	})
	if err == nil {
		t.Fatal("expected error for non-contiguous indices")
	}
}

func TestSlidesByIDsDeduplicatesAndOrders(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	slides := testsupport.SeedSlides(t, st, deck.ID, 4)

	subset, err := st.SlidesByIDs(ctx, deck.ID, []int64{slides[2].ID, slides[0].ID, slides[2].ID})
	if err != nil {
		t.Fatalf("SlidesByIDs: %v", err)
	}
	if len(subset) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(subset))
	}
	if subset[0].Index != 1 || subset[1].Index != 3 {
		t.Fatalf("expected slides ordered by index, got %d then %d", subset[0].Index, subset[1].Index)
	}
}

func TestUpsertAssetNeverDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	slides := testsupport.SeedSlides(t, st, deck.ID, 1)
	slideID := slides[0].ID

	if err := st.UpsertAsset(ctx, slideID, store.AssetAudio, store.AssetProcessing, "", 0); err != nil {
		t.Fatalf("UpsertAsset processing: %v", err)
	}
	if err := st.UpsertAsset(ctx, slideID, store.AssetAudio, store.AssetReady, "/audio/1.mp3", 12.5); err != nil {
		t.Fatalf("UpsertAsset ready: %v", err)
	}

	count, err := st.CountAssets(ctx, deck.ID, store.AssetAudio)
	if err != nil {
		t.Fatalf("CountAssets: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single audio asset row, got %d", count)
	}

	asset, err := st.AssetForSlide(ctx, slideID, store.AssetAudio)
	if err != nil {
		t.Fatalf("AssetForSlide: %v", err)
	}
	if asset.Status != store.AssetReady || asset.Duration != 12.5 {
		t.Fatalf("unexpected asset state: %#v", asset)
	}
}

func TestJobLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	job := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateScripts)
	if job.Status != store.JobQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}

	if err := st.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := st.MarkProgress(ctx, job.ID, 1, 3); err != nil {
		t.Fatalf("MarkProgress: %v", err)
	}
	fetched, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if fetched.Progress < 0.33 || fetched.Progress > 0.34 {
		t.Fatalf("expected ~0.33 progress, got %f", fetched.Progress)
	}

	// Progress never decreases within an execution.
	if err := st.MarkProgress(ctx, job.ID, 0, 3); err != nil {
		t.Fatalf("MarkProgress regress: %v", err)
	}
	fetched, _ = st.GetJob(ctx, job.ID)
	if fetched.Progress < 0.33 {
		t.Fatalf("progress regressed to %f", fetched.Progress)
	}

	if err := st.MarkSucceeded(ctx, job.ID); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	fetched, _ = st.GetJob(ctx, job.ID)
	if fetched.Status != store.JobSucceeded || fetched.Progress != 1 {
		t.Fatalf("unexpected final state: %#v", fetched)
	}
	if fetched.FinishedAt == nil {
		t.Fatal("expected completion timestamp")
	}
}

func TestMarkFailedKeepsProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	job := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateAudio)

	if err := st.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := st.MarkProgress(ctx, job.ID, 1, 3); err != nil {
		t.Fatalf("MarkProgress: %v", err)
	}
	if err := st.MarkFailed(ctx, job.ID, context.DeadlineExceeded); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	fetched, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if fetched.Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", fetched.Status)
	}
	if fetched.Progress < 0.33 {
		t.Fatalf("expected partial progress preserved, got %f", fetched.Progress)
	}
	if fetched.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}
}

func TestClaimNextQueuedDeliversOldestOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	first := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)
	testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateScripts)

	claimed, err := st.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest job first, got %#v", claimed)
	}
	if claimed.Status != store.JobRunning {
		t.Fatalf("expected claimed job running, got %s", claimed.Status)
	}

	second, err := st.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second == nil || second.ID == first.ID {
		t.Fatalf("expected the other job, got %#v", second)
	}

	third, err := st.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if third != nil {
		t.Fatalf("expected empty queue, got %#v", third)
	}
}

func TestResetAndReclaimStuckJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	job := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)
	if _, err := st.ClaimNextQueued(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	count, err := st.ResetStuckRunning(ctx)
	if err != nil {
		t.Fatalf("ResetStuckRunning: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 job reset, got %d", count)
	}
	fetched, _ := st.GetJob(ctx, job.ID)
	if fetched.Status != store.JobQueued {
		t.Fatalf("expected requeued job, got %s", fetched.Status)
	}

	// Reclaim only fires for heartbeats older than the cutoff.
	if _, err := st.ClaimNextQueued(ctx); err != nil {
		t.Fatalf("reclaim claim: %v", err)
	}
	reclaimed, err := st.ReclaimStaleRunning(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleRunning: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("expected no fresh jobs reclaimed, got %d", reclaimed)
	}
	reclaimed, err = st.ReclaimStaleRunning(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleRunning future cutoff: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected stale job reclaimed, got %d", reclaimed)
	}
}

func TestCountActiveJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	other := testsupport.NewDeck(t, st, "user-2", "Other", store.ModeReview)

	testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)
	testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateScripts)
	done := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateAudio)
	testsupport.NewJob(t, st, other.ID, "user-2", store.JobIngest)

	if err := st.MarkRunning(ctx, done.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := st.MarkSucceeded(ctx, done.ID); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}

	count, err := st.CountActiveForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountActiveForUser: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active jobs for user-1, got %d", count)
	}

	perType, err := st.CountActiveForDeckType(ctx, deck.ID, store.JobIngest)
	if err != nil {
		t.Fatalf("CountActiveForDeckType: %v", err)
	}
	if perType != 1 {
		t.Fatalf("expected 1 active ingest job, got %d", perType)
	}
}

func TestServiceHealthNonInterference(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.TripServiceHealth(ctx, store.ServiceTTS, "tts responded with 503"); err != nil {
		t.Fatalf("TripServiceHealth: %v", err)
	}
	if err := st.TripServiceHealth(ctx, store.ServiceLLM, "llm timeout"); err != nil {
		t.Fatalf("TripServiceHealth llm: %v", err)
	}

	// Clearing one provider leaves the other untouched.
	if err := st.ClearServiceHealth(ctx, store.ServiceLLM); err != nil {
		t.Fatalf("ClearServiceHealth: %v", err)
	}
	llm, err := st.GetServiceHealth(ctx, store.ServiceLLM)
	if err != nil {
		t.Fatalf("GetServiceHealth llm: %v", err)
	}
	if llm.Active {
		t.Fatal("expected llm flag cleared")
	}
	tts, err := st.GetServiceHealth(ctx, store.ServiceTTS)
	if err != nil {
		t.Fatalf("GetServiceHealth tts: %v", err)
	}
	if !tts.Active || tts.Message == "" {
		t.Fatalf("expected tts flag still tripped, got %#v", tts)
	}

	// A provider that never failed reads as healthy.
	fresh, err := st.GetServiceHealth(ctx, "unknown")
	if err != nil {
		t.Fatalf("GetServiceHealth unknown: %v", err)
	}
	if fresh.Active {
		t.Fatal("expected unknown provider healthy")
	}
}

func TestAppendDeckWarningDeduplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	warning := "deck has 60 slides, exceeding the configured soft limit of 50"
	if err := st.AppendDeckWarning(ctx, deck.ID, warning); err != nil {
		t.Fatalf("AppendDeckWarning: %v", err)
	}
	if err := st.AppendDeckWarning(ctx, deck.ID, warning); err != nil {
		t.Fatalf("AppendDeckWarning repeat: %v", err)
	}

	fetched, err := st.GetDeck(ctx, deck.ID)
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if len(fetched.Warnings) != 1 {
		t.Fatalf("expected a single deduplicated warning, got %v", fetched.Warnings)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)
	failed := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateScripts)
	if err := st.MarkRunning(ctx, failed.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := st.MarkFailed(ctx, failed.ID, context.Canceled); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.Queued != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
