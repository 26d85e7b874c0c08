package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewJobParams carries the caller-supplied fields for job creation.
type NewJobParams struct {
	DeckID   string
	OwnerID  string
	Type     JobType
	SlideIDs []int64
	Trigger  string
}

// CreateJob inserts a new queued job. The job row doubles as the durable
// queue entry.
func (s *Store) CreateJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if strings.TrimSpace(params.DeckID) == "" {
		return nil, errors.New("deck id is required")
	}
	if strings.TrimSpace(params.OwnerID) == "" {
		return nil, errors.New("owner id is required")
	}
	if _, ok := ParseJobType(string(params.Type)); !ok {
		return nil, fmt.Errorf("unknown job type %q", params.Type)
	}
	if params.Trigger == "" {
		params.Trigger = TriggerManual
	}

	slideIDsJSON, err := marshalSlideIDs(params.SlideIDs)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	timestamp := nowString()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, deck_id, owner_id, type, status, progress, slide_ids_json,
            trigger_reason, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		id,
		params.DeckID,
		params.OwnerID,
		string(params.Type),
		string(JobQueued),
		slideIDsJSON,
		params.Trigger,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

const jobColumns = "id, deck_id, owner_id, type, status, progress, slide_ids_json, trigger_reason, error_message, created_at, updated_at, started_at, finished_at, last_heartbeat"

// GetJob fetches a job by identifier. Returns nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNextQueued atomically transitions the oldest queued job to running and
// returns it. Returns nil when the queue is empty. The status guard in the
// update makes concurrent claimers safe: only one worker wins each row.
func (s *Store) ClaimNextQueued(ctx context.Context) (*Job, error) {
	for {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
			string(JobQueued),
		)
		var id string
		err := row.Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next queued job: %w", err)
		}

		now := time.Now().UTC()
		timestamp := now.Format(time.RFC3339Nano)
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(JobRunning), timestamp, timestamp, timestamp, id, string(JobQueued),
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race to another worker; try the next candidate.
			continue
		}
		return s.GetJob(ctx, id)
	}
}

// MarkRunning resets a job's execution state at the start of stage work:
// status running, progress zeroed, prior error and completion cleared.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	timestamp := nowString()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, progress = 0, error_message = NULL,
             finished_at = NULL, started_at = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		string(JobRunning), timestamp, timestamp, timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return requireJobRow(res, id)
}

// MarkProgress records per-slide completion as a 0..1 fraction. Progress never
// decreases within an execution; MAX guards against out-of-order updates.
func (s *Store) MarkProgress(ctx context.Context, id string, completed, total int) error {
	var fraction float64
	if total > 0 {
		fraction = float64(completed) / float64(total)
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
	} else {
		fraction = float64(completed)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET progress = MAX(progress, ?), updated_at = ? WHERE id = ?`,
		fraction, nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("mark job progress: %w", err)
	}
	return requireJobRow(res, id)
}

// MarkSucceeded finalizes a successful execution: progress forced to 1 and
// error cleared.
func (s *Store) MarkSucceeded(ctx context.Context, id string) error {
	timestamp := nowString()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, progress = 1, error_message = NULL,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		string(JobSucceeded), timestamp, timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	return requireJobRow(res, id)
}

// MarkFailed finalizes a failed execution. Progress is left at its last value:
// partial progress is informative and is not rolled back.
func (s *Store) MarkFailed(ctx context.Context, id string, jobErr error) error {
	message := "unknown failure"
	if jobErr != nil {
		message = strings.TrimSpace(jobErr.Error())
	}
	timestamp := nowString()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, finished_at = ?,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		string(JobFailed), message, timestamp, timestamp, id,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return requireJobRow(res, id)
}

// UpdateJobHeartbeat refreshes the liveness timestamp for an in-flight job.
func (s *Store) UpdateJobHeartbeat(ctx context.Context, id string) error {
	timestamp := nowString()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		timestamp, timestamp, id, string(JobRunning),
	)
	if err != nil {
		return fmt.Errorf("update job heartbeat: %w", err)
	}
	return nil
}

// ResetStuckRunning returns running jobs to queued. Called once at daemon
// startup so jobs orphaned by a crash are redelivered.
func (s *Store) ResetStuckRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, progress = 0, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		string(JobQueued), nowString(), string(JobRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleRunning returns running jobs with expired heartbeats to queued.
func (s *Store) ReclaimStaleRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, progress = 0, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		string(JobQueued), nowString(), string(JobRunning),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountActiveForUser returns the user's queued+running job count across all
// decks, for admission control.
func (s *Store) CountActiveForUser(ctx context.Context, ownerID string) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE owner_id = ? AND status IN (?, ?)`,
		ownerID, string(JobQueued), string(JobRunning),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

// CountActiveForDeckType returns the queued+running job count of one type on
// one deck, for the single-flight admission guard.
func (s *Store) CountActiveForDeckType(ctx context.Context, deckID string, jobType JobType) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE deck_id = ? AND type = ? AND status IN (?, ?)`,
		deckID, string(jobType), string(JobQueued), string(JobRunning),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count deck jobs: %w", err)
	}
	return count, nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = string(status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobsForDeck returns every job referencing a deck, oldest first.
func (s *Store) JobsForDeck(ctx context.Context, deckID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE deck_id = ? ORDER BY created_at`, deckID)
	if err != nil {
		return nil, fmt.Errorf("jobs for deck: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClearFinished deletes succeeded and failed jobs, keeping the queue listing
// focused on active work. Active jobs are never deleted.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?)`,
		string(JobSucceeded), string(JobFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("clear finished jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (JobStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return JobStats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := JobStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return JobStats{}, err
		}
		stats.Total += count
		switch JobStatus(status) {
		case JobQueued:
			stats.Queued += count
		case JobRunning:
			stats.Running += count
		case JobSucceeded:
			stats.Succeeded += count
		case JobFailed:
			stats.Failed += count
		}
	}
	return stats, rows.Err()
}

func marshalSlideIDs(ids []int64) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal slide ids: %w", err)
	}
	return string(raw), nil
}

func requireJobRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		deckID       string
		ownerID      string
		jobType      string
		status       string
		progress     float64
		slideIDsRaw  sql.NullString
		trigger      sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&deckID,
		&ownerID,
		&jobType,
		&status,
		&progress,
		&slideIDsRaw,
		&trigger,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		DeckID:       deckID,
		OwnerID:      ownerID,
		Type:         JobType(jobType),
		Status:       JobStatus(status),
		Progress:     progress,
		Trigger:      trigger.String,
		ErrorMessage: errorMessage.String,
	}
	if slideIDsRaw.Valid && slideIDsRaw.String != "" {
		if err := json.Unmarshal([]byte(slideIDsRaw.String), &job.SlideIDs); err != nil {
			return nil, fmt.Errorf("decode job slide ids: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = scanNullableTime(startedRaw)
	job.FinishedAt = scanNullableTime(finishedRaw)
	job.LastHeartbeat = scanNullableTime(heartbeatRaw)
	return job, nil
}
