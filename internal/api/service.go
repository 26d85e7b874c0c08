// Package api implements the enqueue-side actions: deck creation from an
// upload, job submission behind admission control, and failed-job retry.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/notify"
	"slidecast/internal/pipeline"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// Service exposes the actions an upload handler or CLI drives the pipeline
// with. Every job submission passes through admission control.
type Service struct {
	cfg       *config.Config
	store     *store.Store
	paths     *layout.Layout
	admission *pipeline.Admission
	notifier  notify.Service
	logger    *slog.Logger
}

// NewService wires the action layer.
func NewService(cfg *config.Config, st *store.Store, paths *layout.Layout, admission *pipeline.Admission, notifier notify.Service, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		store:     st,
		paths:     paths,
		admission: admission,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// CreateDeckParams carries a deck upload.
type CreateDeckParams struct {
	OwnerID string
	Title   string
	Mode    store.DeckMode
	// SourceName is the uploaded file's original name; its extension
	// selects the source type.
	SourceName string
	Source     io.Reader
}

// CreateDeck stores the upload at its deterministic path, creates the deck
// row, and enqueues the ingestion job. Oversized uploads get a warning, not
// a rejection.
func (s *Service) CreateDeck(ctx context.Context, params CreateDeckParams) (*store.Deck, *store.Job, error) {
	sourceType, err := sourceTypeFromName(params.SourceName)
	if err != nil {
		return nil, nil, err
	}
	if params.Source == nil {
		return nil, nil, services.Wrap(services.ErrValidation, "api", "upload", "source file is required", nil)
	}

	mode := params.Mode
	if mode == "" {
		mode = store.DeckMode(s.cfg.Workflow.DefaultMode)
	}

	deck, err := s.store.CreateDeck(ctx, store.NewDeckParams{
		OwnerID:     params.OwnerID,
		Title:       params.Title,
		SourceType:  sourceType,
		Mode:        mode,
		ScriptModel: s.cfg.LLM.Model,
		TTSModel:    s.cfg.TTS.Model,
		Voice:       s.cfg.TTS.DefaultVoice,
	})
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "api", "upload", "create deck", err)
	}

	if err := s.paths.EnsureDeckDirs(deck.ID); err != nil {
		return nil, nil, services.Wrap(services.ErrExternalTool, "api", "upload", "prepare deck directories", err)
	}
	sourcePath := s.paths.SourcePath(deck.ID, filepath.Ext(params.SourceName))
	written, err := writeUpload(sourcePath, params.Source)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrExternalTool, "api", "upload", "store upload", err)
	}

	deck.SourcePath = sourcePath
	if err := s.store.UpdateDeck(ctx, deck); err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "api", "upload", "record source path", err)
	}

	if limit := int64(s.cfg.Limits.MaxUploadMiB) * 1024 * 1024; limit > 0 && written > limit {
		warning := fmt.Sprintf("upload is %d MiB, exceeding the configured soft limit of %d MiB", written/(1024*1024), s.cfg.Limits.MaxUploadMiB)
		if err := s.store.AppendDeckWarning(ctx, deck.ID, warning); err != nil {
			s.logger.Warn("failed to record upload size warning", logging.Error(err))
		}
		if s.notifier != nil {
			if err := s.notifier.NotifyWarning(ctx, params.OwnerID, deck.Title, warning); err != nil {
				s.logger.Debug("upload size warning notification failed", logging.Error(err))
			}
		}
	}

	job, err := s.SubmitJob(ctx, SubmitJobParams{
		DeckID:  deck.ID,
		OwnerID: params.OwnerID,
		Type:    store.JobIngest,
	})
	if err != nil {
		return deck, nil, err
	}
	return deck, job, nil
}

// SubmitJobParams carries one manual job submission.
type SubmitJobParams struct {
	DeckID   string
	OwnerID  string
	Type     store.JobType
	SlideIDs []int64
}

// SubmitJob admits and enqueues one job. Admission failures leave no job
// row behind.
func (s *Service) SubmitJob(ctx context.Context, params SubmitJobParams) (*store.Job, error) {
	if _, ok := store.ParseJobType(string(params.Type)); !ok {
		return nil, services.Wrap(services.ErrValidation, "api", "submit", fmt.Sprintf("unknown job type %q", params.Type), nil)
	}

	deck, err := s.store.GetDeck(ctx, params.DeckID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "submit", "load deck", err)
	}
	if deck == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "submit", "deck not found", nil)
	}

	ownerID := strings.TrimSpace(params.OwnerID)
	if ownerID == "" {
		ownerID = deck.OwnerID
	}

	if err := s.admission.Admit(ctx, ownerID, params.DeckID, params.Type); err != nil {
		return nil, err
	}

	job, err := s.store.CreateJob(ctx, store.NewJobParams{
		DeckID:   params.DeckID,
		OwnerID:  ownerID,
		Type:     params.Type,
		SlideIDs: params.SlideIDs,
		Trigger:  store.TriggerManual,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "submit", "enqueue job", err)
	}

	s.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldDeckID, params.DeckID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("job_type", string(params.Type)),
	)
	return job, nil
}

// RetryJob re-submits a failed job as a fresh job row with the same scope.
func (s *Service) RetryJob(ctx context.Context, jobID string) (*store.Job, error) {
	failed, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "retry", "load job", err)
	}
	if failed == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "retry", "job not found", nil)
	}
	if failed.Status != store.JobFailed {
		return nil, services.Wrap(services.ErrValidation, "api", "retry", fmt.Sprintf("job is %s, only failed jobs can be retried", failed.Status), nil)
	}

	if err := s.admission.Admit(ctx, failed.OwnerID, failed.DeckID, failed.Type); err != nil {
		return nil, err
	}

	job, err := s.store.CreateJob(ctx, store.NewJobParams{
		DeckID:   failed.DeckID,
		OwnerID:  failed.OwnerID,
		Type:     failed.Type,
		SlideIDs: failed.SlideIDs,
		Trigger:  store.TriggerRetry,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "retry", "enqueue retry", err)
	}
	return job, nil
}

func sourceTypeFromName(name string) (store.SourceType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pptx":
		return store.SourcePPTX, nil
	case ".pdf":
		return store.SourcePDF, nil
	default:
		return "", services.Wrap(services.ErrValidation, "api", "upload", fmt.Sprintf("unsupported file type %q", filepath.Ext(name)), nil)
	}
}

func writeUpload(path string, source io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(file, source)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return written, nil
}
