package testsupport

import (
	"context"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewDeck creates a deck for tests using the provided store.
func NewDeck(t testing.TB, st *store.Store, ownerID, title string, mode store.DeckMode) *store.Deck {
	t.Helper()

	deck, err := st.CreateDeck(context.Background(), store.NewDeckParams{
		OwnerID:    ownerID,
		Title:      title,
		SourceType: store.SourcePPTX,
		Mode:       mode,
	})
	if err != nil {
		t.Fatalf("store.CreateDeck: %v", err)
	}
	return deck
}

// SeedSlides replaces a deck's slides with count generated entries.
func SeedSlides(t testing.TB, st *store.Store, deckID string, count int) []*store.Slide {
	t.Helper()

	newSlides := make([]store.NewSlide, 0, count)
	for i := 1; i <= count; i++ {
		newSlides = append(newSlides, store.NewSlide{
			Index: i,
			Title: "Slide",
			Body:  "Body text long enough to avoid the image context flag in tests.",
		})
	}
	slides, err := st.ReplaceSlides(context.Background(), deckID, newSlides)
	if err != nil {
		t.Fatalf("store.ReplaceSlides: %v", err)
	}
	return slides
}

// NewJob creates a queued job for tests.
func NewJob(t testing.TB, st *store.Store, deckID, ownerID string, jobType store.JobType) *store.Job {
	t.Helper()

	job, err := st.CreateJob(context.Background(), store.NewJobParams{
		DeckID:  deckID,
		OwnerID: ownerID,
		Type:    jobType,
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
