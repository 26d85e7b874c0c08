package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NewSlide carries the extracted content for one slide at ingestion time.
type NewSlide struct {
	Index             int
	Title             string
	Body              string
	Notes             string
	OCRText           string
	ImagePath         string
	NeedsImageContext bool
}

// ReplaceSlides deletes every prior slide for the deck (cascading scripts and
// assets) and inserts the new set with an empty pending script each. Indices
// must be contiguous starting at 1; the deck's slide count is updated in the
// same transaction.
func (s *Store) ReplaceSlides(ctx context.Context, deckID string, slides []NewSlide) ([]*Slide, error) {
	for i, slide := range slides {
		if slide.Index != i+1 {
			return nil, fmt.Errorf("slide indices must be contiguous from 1, got %d at position %d", slide.Index, i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace slides tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM slides WHERE deck_id = ?`, deckID); err != nil {
		return nil, fmt.Errorf("delete prior slides: %w", err)
	}

	timestamp := nowString()
	inserted := make([]*Slide, 0, len(slides))
	for _, slide := range slides {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO slides (deck_id, idx, title, body, notes, ocr_text, image_path, needs_image_context)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			deckID,
			slide.Index,
			nullableString(slide.Title),
			nullableString(slide.Body),
			nullableString(slide.Notes),
			nullableString(slide.OCRText),
			nullableString(slide.ImagePath),
			boolToInt(slide.NeedsImageContext),
		)
		if err != nil {
			return nil, fmt.Errorf("insert slide %d: %w", slide.Index, err)
		}
		slideID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("slide %d insert id: %w", slide.Index, err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO scripts (slide_id, content, status, updated_at) VALUES (?, NULL, ?, ?)`,
			slideID, string(ScriptPending), timestamp,
		); err != nil {
			return nil, fmt.Errorf("insert script for slide %d: %w", slide.Index, err)
		}
		inserted = append(inserted, &Slide{
			ID:                slideID,
			DeckID:            deckID,
			Index:             slide.Index,
			Title:             slide.Title,
			Body:              slide.Body,
			Notes:             slide.Notes,
			OCRText:           slide.OCRText,
			ImagePath:         slide.ImagePath,
			NeedsImageContext: slide.NeedsImageContext,
		})
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE decks SET slide_count = ?, updated_at = ? WHERE id = ?`,
		len(slides), timestamp, deckID,
	); err != nil {
		return nil, fmt.Errorf("update deck slide count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace slides: %w", err)
	}
	return inserted, nil
}

const slideColumns = "id, deck_id, idx, title, body, notes, ocr_text, image_path, needs_image_context"

// SlidesForDeck returns all slides for a deck in index order.
func (s *Store) SlidesForDeck(ctx context.Context, deckID string) ([]*Slide, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+slideColumns+` FROM slides WHERE deck_id = ? ORDER BY idx`, deckID)
	if err != nil {
		return nil, fmt.Errorf("query slides: %w", err)
	}
	defer rows.Close()
	return collectSlides(rows)
}

// SlidesByIDs returns the deck's slides matching the provided ids, deduplicated
// and ordered by slide index. IDs not belonging to the deck are ignored.
func (s *Store) SlidesByIDs(ctx context.Context, deckID string, ids []int64) ([]*Slide, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]any, 0, len(ids)+1)
	unique = append(unique, deckID)
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	query := `SELECT ` + slideColumns + ` FROM slides WHERE deck_id = ? AND id IN (` +
		makePlaceholders(len(unique)-1) + `) ORDER BY idx`
	rows, err := s.db.QueryContext(ctx, query, unique...)
	if err != nil {
		return nil, fmt.Errorf("query slides by id: %w", err)
	}
	defer rows.Close()
	return collectSlides(rows)
}

// GetSlide fetches one slide by identifier. Returns nil when absent.
func (s *Store) GetSlide(ctx context.Context, id int64) (*Slide, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+slideColumns+` FROM slides WHERE id = ?`, id)
	slide, err := scanSlide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slide: %w", err)
	}
	return slide, nil
}

func collectSlides(rows *sql.Rows) ([]*Slide, error) {
	var slides []*Slide
	for rows.Next() {
		slide, err := scanSlide(rows)
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide)
	}
	return slides, rows.Err()
}

func scanSlide(scanner interface{ Scan(dest ...any) error }) (*Slide, error) {
	var (
		id        int64
		deckID    string
		idx       int
		title     sql.NullString
		body      sql.NullString
		notes     sql.NullString
		ocrText   sql.NullString
		imagePath sql.NullString
		needsCtx  sql.NullInt64
	)
	if err := scanner.Scan(&id, &deckID, &idx, &title, &body, &notes, &ocrText, &imagePath, &needsCtx); err != nil {
		return nil, err
	}
	return &Slide{
		ID:                id,
		DeckID:            deckID,
		Index:             idx,
		Title:             title.String,
		Body:              body.String,
		Notes:             notes.String,
		OCRText:           ocrText.String,
		ImagePath:         imagePath.String,
		NeedsImageContext: needsCtx.Valid && needsCtx.Int64 != 0,
	}, nil
}

// ScriptForSlide returns the script row for a slide. Returns nil when absent.
func (s *Store) ScriptForSlide(ctx context.Context, slideID int64) (*Script, error) {
	row := s.db.QueryRowContext(ctx, `SELECT slide_id, content, status, updated_at FROM scripts WHERE slide_id = ?`, slideID)
	var (
		id         int64
		content    sql.NullString
		status     string
		updatedRaw sql.NullString
	)
	err := row.Scan(&id, &content, &status, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get script: %w", err)
	}
	script := &Script{SlideID: id, Content: content.String, Status: ScriptStatus(status)}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		script.UpdatedAt = updated
	}
	return script, nil
}

// SetScriptStatus transitions a script's status without touching its content.
func (s *Store) SetScriptStatus(ctx context.Context, slideID int64, status ScriptStatus) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE scripts SET status = ?, updated_at = ? WHERE slide_id = ?`,
		string(status), nowString(), slideID,
	)
	if err != nil {
		return fmt.Errorf("set script status: %w", err)
	}
	return requireRow(res, "script", slideID)
}

// SetScriptContent stores generated narration text and marks the script ready.
func (s *Store) SetScriptContent(ctx context.Context, slideID int64, content string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE scripts SET content = ?, status = ?, updated_at = ? WHERE slide_id = ?`,
		content, string(ScriptReady), nowString(), slideID,
	)
	if err != nil {
		return fmt.Errorf("set script content: %w", err)
	}
	return requireRow(res, "script", slideID)
}

func requireRow(res sql.Result, entity string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s for slide %d not found", entity, id)
	}
	return nil
}
