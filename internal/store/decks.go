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

// NewDeckParams carries the caller-supplied fields for deck creation.
type NewDeckParams struct {
	OwnerID     string
	Title       string
	SourceType  SourceType
	Mode        DeckMode
	SourcePath  string
	ScriptModel string
	TTSModel    string
	Voice       string
}

// CreateDeck inserts a new deck in the ingesting state.
func (s *Store) CreateDeck(ctx context.Context, params NewDeckParams) (*Deck, error) {
	if strings.TrimSpace(params.OwnerID) == "" {
		return nil, errors.New("owner id is required")
	}
	if params.SourceType != SourcePPTX && params.SourceType != SourcePDF {
		return nil, fmt.Errorf("unsupported source type %q", params.SourceType)
	}
	if params.Mode == "" {
		params.Mode = ModeReview
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = "Untitled Deck"
	}

	id := uuid.NewString()
	timestamp := nowString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO decks (
            id, owner_id, title, source_type, mode, status, slide_count,
            script_model, tts_model, voice, source_path, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		id,
		params.OwnerID,
		title,
		string(params.SourceType),
		string(params.Mode),
		string(DeckIngesting),
		nullableString(params.ScriptModel),
		nullableString(params.TTSModel),
		nullableString(params.Voice),
		nullableString(params.SourcePath),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert deck: %w", err)
	}
	return s.GetDeck(ctx, id)
}

const deckColumns = "id, owner_id, title, source_type, mode, status, slide_count, script_model, tts_model, voice, source_path, final_video_path, final_video_duration, warnings_json, created_at, updated_at"

// GetDeck fetches a deck by identifier. Returns nil when absent.
func (s *Store) GetDeck(ctx context.Context, id string) (*Deck, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deckColumns+` FROM decks WHERE id = ?`, id)
	deck, err := scanDeck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deck: %w", err)
	}
	return deck, nil
}

// ListDecks returns decks ordered by creation time. An empty ownerID lists
// every deck; otherwise only that owner's decks are returned.
func (s *Store) ListDecks(ctx context.Context, ownerID string) ([]*Deck, error) {
	query := `SELECT ` + deckColumns + ` FROM decks`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	var decks []*Deck
	for rows.Next() {
		deck, err := scanDeck(rows)
		if err != nil {
			return nil, err
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

// UpdateDeck persists changes to an existing deck.
func (s *Store) UpdateDeck(ctx context.Context, deck *Deck) error {
	if deck == nil {
		return errors.New("deck is nil")
	}
	deck.UpdatedAt = time.Now().UTC()
	warningsJSON, err := marshalWarnings(deck.Warnings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE decks
         SET title = ?, mode = ?, status = ?, slide_count = ?,
             script_model = ?, tts_model = ?, voice = ?, source_path = ?,
             final_video_path = ?, final_video_duration = ?, warnings_json = ?, updated_at = ?
         WHERE id = ?`,
		deck.Title,
		string(deck.Mode),
		string(deck.Status),
		deck.SlideCount,
		nullableString(deck.ScriptModel),
		nullableString(deck.TTSModel),
		nullableString(deck.Voice),
		nullableString(deck.SourcePath),
		nullableString(deck.FinalVideoPath),
		nullableFloat(deck.FinalVideoDuration),
		warningsJSON,
		deck.UpdatedAt.Format(time.RFC3339Nano),
		deck.ID,
	)
	if err != nil {
		return fmt.Errorf("update deck: %w", err)
	}
	return nil
}

// SetDeckStatus transitions only the deck status column.
func (s *Store) SetDeckStatus(ctx context.Context, id string, status DeckStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE decks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set deck status: %w", err)
	}
	return nil
}

// AppendDeckWarning adds a warning string to the deck unless already present.
func (s *Store) AppendDeckWarning(ctx context.Context, id, warning string) error {
	warning = strings.TrimSpace(warning)
	if warning == "" {
		return nil
	}
	deck, err := s.GetDeck(ctx, id)
	if err != nil {
		return err
	}
	if deck == nil {
		return fmt.Errorf("deck %s not found", id)
	}
	for _, existing := range deck.Warnings {
		if existing == warning {
			return nil
		}
	}
	deck.Warnings = append(deck.Warnings, warning)
	return s.UpdateDeck(ctx, deck)
}

func marshalWarnings(warnings []string) (any, error) {
	if len(warnings) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return string(raw), nil
}

func scanDeck(scanner interface{ Scan(dest ...any) error }) (*Deck, error) {
	var (
		id            string
		ownerID       string
		title         string
		sourceType    string
		mode          string
		status        string
		slideCount    int
		scriptModel   sql.NullString
		ttsModel      sql.NullString
		voice         sql.NullString
		sourcePath    sql.NullString
		finalVideo    sql.NullString
		finalDuration sql.NullFloat64
		warningsRaw   sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&title,
		&sourceType,
		&mode,
		&status,
		&slideCount,
		&scriptModel,
		&ttsModel,
		&voice,
		&sourcePath,
		&finalVideo,
		&finalDuration,
		&warningsRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	deck := &Deck{
		ID:                 id,
		OwnerID:            ownerID,
		Title:              title,
		SourceType:         SourceType(sourceType),
		Mode:               DeckMode(mode),
		Status:             DeckStatus(status),
		SlideCount:         slideCount,
		ScriptModel:        scriptModel.String,
		TTSModel:           ttsModel.String,
		Voice:              voice.String,
		SourcePath:         sourcePath.String,
		FinalVideoPath:     finalVideo.String,
		FinalVideoDuration: finalDuration.Float64,
	}
	if warningsRaw.Valid && warningsRaw.String != "" {
		if err := json.Unmarshal([]byte(warningsRaw.String), &deck.Warnings); err != nil {
			return nil, fmt.Errorf("decode deck warnings: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		deck.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		deck.UpdatedAt = updated
	}
	return deck, nil
}
