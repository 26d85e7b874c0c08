// Package pipeline contains the stage processors and the shared execution
// machinery that drives a deck from upload to final video.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"slidecast/internal/logging"
	"slidecast/internal/notify"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// Execution carries the resolved scope handed to a stage processor.
type Execution struct {
	Job    *store.Job
	Deck   *store.Deck
	Slides []*store.Slide
	Logger *slog.Logger

	// Progress records per-slide completion on the job row. Failures to
	// persist progress are logged, never fatal.
	Progress func(completed, total int)
}

// Outcome reports a successful stage execution back to the runner.
type Outcome struct {
	// SuccessStatus is the deck status set after the stage completes.
	SuccessStatus store.DeckStatus
	// ChainEligible gates auto-chaining beyond deck mode. Ingestion uses
	// it to suppress chaining when a deck produced zero slides.
	ChainEligible bool
	// ForwardSubset is the explicit slide selection passed to the
	// successor job, when the stage forwards one.
	ForwardSubset []int64
}

// Processor executes one stage's work over the resolved slide scope.
type Processor interface {
	JobType() store.JobType
	Execute(ctx context.Context, exec *Execution) (Outcome, error)
}

// Runner applies the shared stage state machine around processors: scope
// resolution, running/succeeded/failed transitions, deck status updates,
// notifications, and one-shot auto-chaining.
type Runner struct {
	store      *store.Store
	notifier   notify.Service
	logger     *slog.Logger
	processors map[store.JobType]Processor
}

// NewRunner wires the runner with its stage processors.
func NewRunner(st *store.Store, notifier notify.Service, logger *slog.Logger, processors ...Processor) *Runner {
	byType := make(map[store.JobType]Processor, len(processors))
	for _, processor := range processors {
		byType[processor.JobType()] = processor
	}
	return &Runner{
		store:      st,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		processors: byType,
	}
}

// Run executes one claimed job to completion. The returned error reflects
// the job's outcome after all state has been persisted, so the queue's own
// failure accounting sees the same result the job row records.
func (r *Runner) Run(ctx context.Context, job *store.Job) error {
	processor, ok := r.processors[job.Type]
	if !ok {
		err := services.Wrap(services.ErrConfiguration, string(job.Type), "dispatch", "no processor for job type", nil)
		return r.failJob(ctx, job, nil, err)
	}
	descriptor, ok := Describe(job.Type)
	if !ok {
		err := services.Wrap(services.ErrConfiguration, string(job.Type), "dispatch", "job type missing from pipeline chain", nil)
		return r.failJob(ctx, job, nil, err)
	}

	ctx = services.WithJobID(services.WithDeckID(ctx, job.DeckID), job.ID)
	ctx = services.WithStage(ctx, string(job.Type))
	logger := logging.WithContext(ctx, r.logger)

	deck, err := r.store.GetDeck(ctx, job.DeckID)
	if err != nil {
		return r.failJob(ctx, job, nil, services.Wrap(services.ErrTransient, string(job.Type), "scope", "load deck", err))
	}
	if deck == nil {
		return r.failJob(ctx, job, nil, services.Wrap(services.ErrNotFound, string(job.Type), "scope", "deck not found", nil))
	}

	var slides []*store.Slide
	if descriptor.ResolvesSlides {
		slides, err = r.resolveSlides(ctx, job)
		if err != nil {
			return r.failJob(ctx, job, deck, err)
		}
	}

	if err := r.store.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	runningStatus := store.DeckGenerating
	if job.Type == store.JobIngest {
		runningStatus = store.DeckIngesting
	}
	if err := r.store.SetDeckStatus(ctx, deck.ID, runningStatus); err != nil {
		return r.failJob(ctx, job, deck, services.Wrap(services.ErrTransient, string(job.Type), "scope", "update deck status", err))
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("deck_title", deck.Title),
		logging.Int("slide_scope", len(slides)),
	)

	exec := &Execution{
		Job:    job,
		Deck:   deck,
		Slides: slides,
		Logger: logger,
		Progress: func(completed, total int) {
			if err := r.store.MarkProgress(ctx, job.ID, completed, total); err != nil {
				logger.Warn("failed to persist progress", logging.Error(err))
			}
			if err := r.store.UpdateJobHeartbeat(ctx, job.ID); err != nil {
				logger.Warn("failed to refresh heartbeat", logging.Error(err))
			}
		},
	}

	outcome, err := processor.Execute(ctx, exec)
	if err != nil {
		return r.failJob(ctx, job, deck, err)
	}

	if err := r.store.MarkSucceeded(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	if outcome.SuccessStatus != "" {
		if err := r.store.SetDeckStatus(ctx, deck.ID, outcome.SuccessStatus); err != nil {
			logger.Warn("failed to persist deck success status", logging.Error(err))
		}
	}

	r.notifySuccess(ctx, job, deck, logger)
	r.autoChain(ctx, job, deck, descriptor, outcome, logger)

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("deck_status", string(outcome.SuccessStatus)),
	)
	return nil
}

// resolveSlides loads the job's slide scope: the explicit subset when the
// payload names one, otherwise the full deck. An empty result fails the job
// before any side effects.
func (r *Runner) resolveSlides(ctx context.Context, job *store.Job) ([]*store.Slide, error) {
	var (
		slides []*store.Slide
		err    error
	)
	if len(job.SlideIDs) > 0 {
		slides, err = r.store.SlidesByIDs(ctx, job.DeckID, job.SlideIDs)
	} else {
		slides, err = r.store.SlidesForDeck(ctx, job.DeckID)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, string(job.Type), "scope", "load slides", err)
	}
	if len(slides) == 0 {
		return nil, services.Wrap(services.ErrValidation, string(job.Type), "scope", "no slides matched", nil)
	}
	return slides, nil
}

// failJob persists the failure on both the job and the deck, notifies the
// user, and returns the original error so the queue records a failed
// delivery.
func (r *Runner) failJob(ctx context.Context, job *store.Job, deck *store.Deck, stageErr error) error {
	logger := logging.WithContext(ctx, r.logger)

	message := strings.TrimSpace(services.Details(stageErr).Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}

	if err := r.store.MarkFailed(ctx, job.ID, stageErr); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}
	if deck != nil {
		if err := r.store.SetDeckStatus(ctx, deck.ID, store.DeckFailed); err != nil {
			logger.Error("failed to persist deck failure", logging.Error(err))
		}
	}

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)

	if r.notifier != nil {
		title := ""
		if deck != nil {
			title = deck.Title
		}
		if err := r.notifier.NotifyStageFailed(ctx, job.OwnerID, title, string(job.Type), message); err != nil {
			logger.Debug("stage failure notification failed", logging.Error(err))
		}
	}
	return stageErr
}

func (r *Runner) notifySuccess(ctx context.Context, job *store.Job, deck *store.Deck, logger *slog.Logger) {
	if r.notifier == nil {
		return
	}
	var err error
	if job.Type == store.JobAssembleFinal {
		err = r.notifier.NotifyDeckComplete(ctx, job.OwnerID, deck.Title)
	} else {
		err = r.notifier.NotifyStageCompleted(ctx, job.OwnerID, deck.Title, string(job.Type))
	}
	if err != nil {
		logger.Debug("stage success notification failed", logging.Error(err))
	}
}

// autoChain enqueues the successor stage after a one-shot success. The
// successor carries the same slide subset when the stage forwards one;
// assembly is always queued without a subset.
func (r *Runner) autoChain(ctx context.Context, job *store.Job, deck *store.Deck, descriptor StageDescriptor, outcome Outcome, logger *slog.Logger) {
	if deck.Mode != store.ModeOneShot || descriptor.Successor == "" || !outcome.ChainEligible {
		return
	}

	var subset []int64
	if descriptor.ForwardsSubset {
		subset = outcome.ForwardSubset
	}
	chained, err := r.store.CreateJob(ctx, store.NewJobParams{
		DeckID:   deck.ID,
		OwnerID:  job.OwnerID,
		Type:     descriptor.Successor,
		SlideIDs: subset,
		Trigger:  store.TriggerAutoChain,
	})
	if err != nil {
		logger.Error("failed to enqueue successor stage",
			logging.String("successor", string(descriptor.Successor)),
			logging.Error(err),
		)
		return
	}
	logger.Info("auto-chained successor stage",
		logging.String(logging.FieldEventType, "auto_chain"),
		logging.String("successor", string(descriptor.Successor)),
		logging.String("chained_job_id", chained.ID),
	)
}
