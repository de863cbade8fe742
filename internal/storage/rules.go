package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"viralscope/internal/model"
)

const ruleColumns = `id, name, description, tier, max_score, patterns, signal, weight, accuracy_rate, sample_count, is_active, updated_at`

// ListActiveRules returns every active rule ordered by id.
func (s *SQLite) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRules(rows)
}

// ListRules returns all rules, active or not, ordered by id.
func (s *SQLite) ListRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRules(rows)
}

// GetRule returns a single rule by id.
func (s *SQLite) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertRule creates a rule or updates its authored fields. Weight is only
// taken on insert; accuracy and sample count are never touched here.
func (s *SQLite) UpsertRule(ctx context.Context, rule *model.Rule) error {
	patterns, err := json.Marshal(rule.Patterns)
	if err != nil {
		return fmt.Errorf("encode patterns: %w", err)
	}
	if rule.Patterns == nil {
		patterns = []byte("[]")
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (id, name, description, tier, max_score, patterns, signal, weight, is_active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   tier = excluded.tier,
		   max_score = excluded.max_score,
		   patterns = excluded.patterns,
		   signal = excluded.signal,
		   is_active = excluded.is_active,
		   updated_at = excluded.updated_at`,
		rule.ID, rule.Name, rule.Description, string(rule.Tier), rule.MaxScore, string(patterns),
		rule.Signal, clampWeight(rule.Weight), boolToInt(rule.IsActive), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	rule.UpdatedAt = parseTime(formatTime(now))
	return nil
}

// UpdateRuleCalibration writes the accuracy validator's patch for one rule.
func (s *SQLite) UpdateRuleCalibration(ctx context.Context, id string, patch model.RuleCalibration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET accuracy_rate = ?, sample_count = ?, weight = ?, updated_at = ? WHERE id = ?`,
		patch.AccuracyRate, patch.SampleCount, clampWeight(patch.Weight), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("update rule calibration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func clampWeight(w float64) float64 {
	if w == 0 || math.IsNaN(w) {
		return 1.0
	}
	return math.Max(model.MinRuleWeight, math.Min(model.MaxRuleWeight, w))
}

func scanRule(row scannable) (model.Rule, error) {
	var r model.Rule
	var tier, patterns, updated string
	var accuracy sql.NullFloat64
	var isActive int
	err := row.Scan(&r.ID, &r.Name, &r.Description, &tier, &r.MaxScore, &patterns, &r.Signal,
		&r.Weight, &accuracy, &r.SampleCount, &isActive, &updated)
	if err != nil {
		return r, fmt.Errorf("scan rule: %w", err)
	}
	r.Tier = model.RuleTier(tier)
	r.IsActive = isActive == 1
	r.UpdatedAt = parseTime(updated)
	if accuracy.Valid {
		v := accuracy.Float64
		r.AccuracyRate = &v
	}
	if err := json.Unmarshal([]byte(patterns), &r.Patterns); err != nil {
		return r, fmt.Errorf("decode patterns for rule %s: %w", r.ID, err)
	}
	return r, nil
}

func scanRules(rows *sql.Rows) ([]model.Rule, error) {
	var out []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
