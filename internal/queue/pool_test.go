package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"slidecast/internal/logging"
	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []*store.Job
	st   *store.Store
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, job *store.Job) error {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	if r.err != nil {
		_ = r.st.MarkFailed(ctx, job.ID, r.err)
		return r.err
	}
	return r.st.MarkSucceeded(ctx, job.ID)
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestPoolDrainsQueuedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.WorkerCount = 2
	st := testsupport.MustOpenStore(t, cfg)
	runner := &recordingRunner{st: st}

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	for i := 0; i < 3; i++ {
		testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateScripts)
	}

	pool := NewPool(cfg, st, runner, logging.NewNop())
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	waitFor(t, 10*time.Second, func() bool { return runner.count() == 3 })

	stats, err := st.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Succeeded != 3 || stats.Queued != 0 {
		t.Fatalf("unexpected stats after drain: %#v", stats)
	}
}

func TestPoolContinuesAfterRunnerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.WorkerCount = 1
	st := testsupport.MustOpenStore(t, cfg)
	runner := &recordingRunner{st: st, err: errors.New("stage failed")}

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)
	testsupport.NewJob(t, st, deck.ID, "user-1", store.JobGenerateScripts)

	pool := NewPool(cfg, st, runner, logging.NewNop())
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	// A failed job must not stall the worker; the next one still runs.
	waitFor(t, 10*time.Second, func() bool { return runner.count() == 2 })

	stats, _ := st.Stats(context.Background())
	if stats.Failed != 2 {
		t.Fatalf("expected both jobs failed, got %#v", stats)
	}
}

func TestPoolRejectsDoubleStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	pool := NewPool(cfg, st, &recordingRunner{st: st}, logging.NewNop())

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()
	if err := pool.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
}

func TestPoolFailsUnknownJobType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.WorkerCount = 1
	st := testsupport.MustOpenStore(t, cfg)
	runner := &recordingRunner{st: st}

	deck := testsupport.NewDeck(t, st, "user-1", "Deck", store.ModeReview)
	job := testsupport.NewJob(t, st, deck.ID, "user-1", store.JobIngest)

	pool := NewPool(cfg, st, runner, logging.NewNop())
	claimed, err := st.ClaimNextQueued(context.Background())
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	claimed.Type = store.JobType("mystery")
	pool.executeJob(context.Background(), logging.NewNop(), claimed)

	if runner.count() != 0 {
		t.Fatal("unknown job type must not reach the runner")
	}
	failed, _ := st.GetJob(context.Background(), job.ID)
	if failed.Status != store.JobFailed {
		t.Fatalf("expected failed job, got %s", failed.Status)
	}
}
