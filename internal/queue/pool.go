// Package queue runs the worker pool that drains queued jobs. Each worker
// claims one job at a time; concurrency comes from the pool size, never from
// parallelism inside a job.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// JobRunner executes one claimed job to completion.
type JobRunner interface {
	Run(ctx context.Context, job *store.Job) error
}

// Pool consumes queued jobs with a fixed number of workers.
type Pool struct {
	store  *store.Store
	runner JobRunner
	logger *slog.Logger

	workerCount       int
	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool wires a worker pool from configuration.
func NewPool(cfg *config.Config, st *store.Store, runner JobRunner, logger *slog.Logger) *Pool {
	return &Pool{
		store:             st,
		runner:            runner,
		logger:            logging.NewComponentLogger(logger, "queue"),
		workerCount:       cfg.Workflow.WorkerCount,
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:        time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
}

// Start launches the workers and the stale-claim reclaimer.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("queue pool already running")
	}
	if p.workerCount <= 0 {
		return errors.New("worker count must be positive")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(p.workerCount + 1)
	for i := 0; i < p.workerCount; i++ {
		go p.runWorker(runCtx, i+1)
	}
	go p.runReclaimer(runCtx)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.store.ClaimNextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim next job", logging.Error(err))
			if !sleepCtx(ctx, p.errorRetry) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, p.pollInterval) {
				return
			}
			continue
		}

		p.executeJob(ctx, logger, job)
	}
}

// executeJob dispatches one claimed job. The type switch is exhaustive over
// the five pipeline stages; an unknown type is a corrupt row and fails
// terminally rather than being requeued.
func (p *Pool) executeJob(ctx context.Context, logger *slog.Logger, job *store.Job) {
	jobCtx := services.WithJobID(services.WithDeckID(ctx, job.DeckID), job.ID)
	jobLogger := logging.WithContext(jobCtx, logger)

	switch job.Type {
	case store.JobIngest,
		store.JobGenerateScripts,
		store.JobGenerateAudio,
		store.JobGenerateVideo,
		store.JobAssembleFinal:
	default:
		jobLogger.Error("unknown job type in queue",
			logging.String("job_type", string(job.Type)),
		)
		if err := p.store.MarkFailed(jobCtx, job.ID, errors.New("unknown job type")); err != nil {
			jobLogger.Error("failed to mark unknown job failed", logging.Error(err))
		}
		return
	}

	stopHeartbeat := p.startHeartbeat(jobCtx, job.ID, jobLogger)
	defer stopHeartbeat()

	jobLogger.Info("job dispatched",
		logging.String(logging.FieldEventType, "job_dispatch"),
		logging.String("job_type", string(job.Type)),
	)
	if err := p.runner.Run(jobCtx, job); err != nil {
		// The runner has already persisted the failure; the queue only
		// accounts for it.
		jobLogger.Warn("job finished with failure",
			logging.String("job_type", string(job.Type)),
			logging.Error(err),
		)
	}
}

// startHeartbeat refreshes the job's liveness timestamp while it executes.
func (p *Pool) startHeartbeat(ctx context.Context, jobID string, logger *slog.Logger) func() {
	if p.heartbeatInterval <= 0 {
		return func() {}
	}

	heartbeatCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := p.store.UpdateJobHeartbeat(heartbeatCtx, jobID); err != nil {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// runReclaimer periodically returns jobs with expired heartbeats to the
// queue so a crashed worker's claims are redelivered.
func (p *Pool) runReclaimer(ctx context.Context) {
	defer p.wg.Done()
	if p.heartbeatInterval <= 0 || p.heartbeatTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-p.heartbeatTimeout)
			reclaimed, err := p.store.ReclaimStaleRunning(ctx, cutoff)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("stale job reclaim failed", logging.Error(err))
				}
				continue
			}
			if reclaimed > 0 {
				p.logger.Info("requeued stale jobs",
					logging.String(logging.FieldEventType, "stale_reclaim"),
					logging.Int64("count", reclaimed),
				)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
