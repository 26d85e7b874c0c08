package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TripServiceHealth marks one provider unhealthy with a diagnostic message.
// Only that provider's row is touched.
func (s *Store) TripServiceHealth(ctx context.Context, service, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO service_health (service, active, message, updated_at)
         VALUES (?, 1, ?, ?)
         ON CONFLICT (service) DO UPDATE SET
             active = 1, message = excluded.message, updated_at = excluded.updated_at`,
		service, nullableString(message), nowString(),
	)
	if err != nil {
		return fmt.Errorf("trip health flag for %s: %w", service, err)
	}
	return nil
}

// ClearServiceHealth marks one provider healthy again. A provider's success
// never clears another provider's flag.
func (s *Store) ClearServiceHealth(ctx context.Context, service string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE service_health SET active = 0, message = NULL, updated_at = ? WHERE service = ?`,
		nowString(), service,
	)
	if err != nil {
		return fmt.Errorf("clear health flag for %s: %w", service, err)
	}
	return nil
}

// GetServiceHealth returns the health record for one provider. An absent row
// means the provider has never failed and is treated as healthy.
func (s *Store) GetServiceHealth(ctx context.Context, service string) (*ServiceHealth, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT service, active, message, updated_at FROM service_health WHERE service = ?`,
		service,
	)
	health, err := scanServiceHealth(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &ServiceHealth{Service: service, Active: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get health flag for %s: %w", service, err)
	}
	return health, nil
}

// ListServiceHealth returns every recorded provider health flag.
func (s *Store) ListServiceHealth(ctx context.Context) ([]*ServiceHealth, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT service, active, message, updated_at FROM service_health ORDER BY service`)
	if err != nil {
		return nil, fmt.Errorf("list health flags: %w", err)
	}
	defer rows.Close()

	var flags []*ServiceHealth
	for rows.Next() {
		health, err := scanServiceHealth(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, health)
	}
	return flags, rows.Err()
}

func scanServiceHealth(scanner interface{ Scan(dest ...any) error }) (*ServiceHealth, error) {
	var (
		service    string
		active     int
		message    sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&service, &active, &message, &updatedRaw); err != nil {
		return nil, err
	}
	health := &ServiceHealth{
		Service: service,
		Active:  active != 0,
		Message: message.String,
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		health.UpdatedAt = updated
	}
	return health, nil
}
