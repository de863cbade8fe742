package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"viralscope/internal/model"
)

// GetCreator returns the stored profile snapshot for a handle.
func (s *SQLite) GetCreator(ctx context.Context, handle string) (*model.CreatorContext, error) {
	var c model.CreatorContext
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT handle, niche, follower_count, avg_engagement, updated_at FROM creators WHERE handle = ?`,
		strings.ToLower(handle),
	).Scan(&c.Handle, &c.Niche, &c.FollowerCount, &c.AvgEngagement, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("creator %s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query creator: %w", err)
	}
	c.Known = true
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// UpsertCreator stores a profile snapshot keyed by lower-cased handle.
func (s *SQLite) UpsertCreator(ctx context.Context, c *model.CreatorContext) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO creators (handle, niche, follower_count, avg_engagement, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(handle) DO UPDATE SET
		   niche = excluded.niche,
		   follower_count = excluded.follower_count,
		   avg_engagement = excluded.avg_engagement,
		   updated_at = excluded.updated_at`,
		strings.ToLower(c.Handle), c.Niche, c.FollowerCount, c.AvgEngagement, formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert creator: %w", err)
	}
	return nil
}

// CreatorAverages returns platform-wide follower and engagement averages.
// Both are zero when no creators are stored.
func (s *SQLite) CreatorAverages(ctx context.Context) (int64, float64, error) {
	var followers, engagement sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(follower_count), AVG(avg_engagement) FROM creators`,
	).Scan(&followers, &engagement)
	if err != nil {
		return 0, 0, fmt.Errorf("query creator averages: %w", err)
	}
	return int64(followers.Float64), engagement.Float64, nil
}
