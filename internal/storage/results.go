package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"viralscope/internal/model"
)

// SaveResult persists an analysis and its ordered rule contributions in one
// transaction. Results are append-only: saving an existing id fails.
func (s *SQLite) SaveResult(ctx context.Context, result *model.AnalysisResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = s.now()
	}
	snapshot := *result
	snapshot.RuleContributions = nil
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_results (id, user_id, overall_score, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		result.ID, result.UserID, result.OverallScore, string(payload), formatTime(result.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	for i, c := range result.RuleContributions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rule_contributions (analysis_id, position, rule_id, rule_name, score, max_score, tier)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			result.ID, i, c.RuleID, c.RuleName, c.Score, c.MaxScore, string(c.Tier),
		); err != nil {
			return fmt.Errorf("insert rule contribution %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetResult returns a stored analysis with its rule contributions.
func (s *SQLite) GetResult(ctx context.Context, id string) (*model.AnalysisResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM analysis_results WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	result.RuleContributions, err = s.GetRuleContributions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRuleContributions returns the contributions recorded for one analysis in
// the order the aggregator emitted them.
func (s *SQLite) GetRuleContributions(ctx context.Context, analysisID string) ([]model.RuleContribution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, rule_name, score, max_score, tier FROM rule_contributions
		 WHERE analysis_id = ? ORDER BY position`, analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rule contributions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.RuleContribution{}
	for rows.Next() {
		var c model.RuleContribution
		var tier string
		if err := rows.Scan(&c.RuleID, &c.RuleName, &c.Score, &c.MaxScore, &tier); err != nil {
			return nil, fmt.Errorf("scan rule contribution: %w", err)
		}
		c.Tier = model.RuleTier(tier)
		out = append(out, c)
	}
	return out, rows.Err()
}
