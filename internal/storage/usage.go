package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetUsage returns the analysis count for one user and period, or 0.
func (s *SQLite) GetUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT analysis_count FROM usage_records WHERE user_id = ? AND period_start = ? AND period_type = ?`,
		userID, periodStart.UTC().Format(dateLayout), periodType,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query usage: %w", err)
	}
	return count, nil
}

// IncrementUsage creates the period's record with count 1 or adds one to it,
// returning the new count.
func (s *SQLite) IncrementUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage_records (user_id, period_start, period_type, analysis_count)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT(user_id, period_start, period_type)
		 DO UPDATE SET analysis_count = analysis_count + 1
		 RETURNING analysis_count`,
		userID, periodStart.UTC().Format(dateLayout), periodType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("upsert usage: %w", err)
	}
	return count, nil
}
