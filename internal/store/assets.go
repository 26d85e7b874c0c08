package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertAsset records the state of a slide's audio or video asset for the
// current processing attempt. One row per (slide, kind); re-running a stage
// updates the row in place rather than inserting a duplicate.
func (s *Store) UpsertAsset(ctx context.Context, slideID int64, kind AssetKind, status AssetStatus, path string, duration float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assets (slide_id, kind, path, status, duration, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (slide_id, kind) DO UPDATE SET
             path = excluded.path,
             status = excluded.status,
             duration = excluded.duration,
             updated_at = excluded.updated_at`,
		slideID,
		string(kind),
		nullableString(path),
		string(status),
		nullableFloat(duration),
		nowString(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s asset: %w", kind, err)
	}
	return nil
}

// AssetForSlide returns a slide's asset of the given kind. Returns nil when absent.
func (s *Store) AssetForSlide(ctx context.Context, slideID int64, kind AssetKind) (*Asset, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT slide_id, kind, path, status, duration, updated_at FROM assets WHERE slide_id = ? AND kind = ?`,
		slideID, string(kind),
	)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s asset: %w", kind, err)
	}
	return asset, nil
}

// ReadyAssetsForDeck returns assets of the given kind with status READY for a
// deck's slides, in slide index order. Final assembly consumes this.
func (s *Store) ReadyAssetsForDeck(ctx context.Context, deckID string, kind AssetKind) ([]*Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT a.slide_id, a.kind, a.path, a.status, a.duration, a.updated_at
         FROM assets a
         JOIN slides sl ON sl.id = a.slide_id
         WHERE sl.deck_id = ? AND a.kind = ? AND a.status = ?
         ORDER BY sl.idx`,
		deckID, string(kind), string(AssetReady),
	)
	if err != nil {
		return nil, fmt.Errorf("query ready assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// CountAssets returns the number of asset rows of a kind for a deck, used by
// tests and queue health output.
func (s *Store) CountAssets(ctx context.Context, deckID string, kind AssetKind) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM assets a JOIN slides sl ON sl.id = a.slide_id WHERE sl.deck_id = ? AND a.kind = ?`,
		deckID, string(kind),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return count, nil
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		slideID    int64
		kind       string
		path       sql.NullString
		status     string
		duration   sql.NullFloat64
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&slideID, &kind, &path, &status, &duration, &updatedRaw); err != nil {
		return nil, err
	}
	asset := &Asset{
		SlideID:  slideID,
		Kind:     AssetKind(kind),
		Path:     path.String,
		Status:   AssetStatus(status),
		Duration: duration.Float64,
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		asset.UpdatedAt = updated
	}
	return asset, nil
}
