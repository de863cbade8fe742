package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"viralscope/internal/model"
)

// RecordOutcome inserts a ground-truth report and populates its ID.
func (s *SQLite) RecordOutcome(ctx context.Context, o *model.Outcome) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (analysis_id, user_id, predicted_score, actual_score, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		o.AnalysisID, o.UserID, o.PredictedScore, o.ActualScore, formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	o.ID = id
	o.CreatedAt = parseTime(formatTime(o.CreatedAt))
	return nil
}

// SoftDeleteOutcome marks an outcome owned by userID as deleted.
func (s *SQLite) SoftDeleteOutcome(ctx context.Context, id int64, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outcomes SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		formatTime(s.now()), id, userID,
	)
	if err != nil {
		return fmt.Errorf("soft delete outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("outcome %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListOutcomesSince returns live outcomes created at or after since that carry
// both a predicted and an actual score.
func (s *SQLite) ListOutcomesSince(ctx context.Context, since time.Time) ([]model.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_id, user_id, predicted_score, actual_score, created_at
		 FROM outcomes
		 WHERE created_at >= ?
		   AND deleted_at IS NULL
		   AND predicted_score IS NOT NULL
		   AND actual_score IS NOT NULL
		 ORDER BY id`, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var predicted, actual sql.NullFloat64
		var created string
		if err := rows.Scan(&o.ID, &o.AnalysisID, &o.UserID, &predicted, &actual, &created); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if predicted.Valid {
			o.PredictedScore = &predicted.Float64
		}
		if actual.Valid {
			o.ActualScore = &actual.Float64
		}
		o.CreatedAt = parseTime(created)
		out = append(out, o)
	}
	return out, rows.Err()
}
