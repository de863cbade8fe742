// Package storage defines the persistence interfaces and their SQLite implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"viralscope/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RuleStore holds scoring rules. Calibration fields are written only through
// UpdateRuleCalibration.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
	ListRules(ctx context.Context) ([]model.Rule, error)
	GetRule(ctx context.Context, id string) (*model.Rule, error)
	UpsertRule(ctx context.Context, rule *model.Rule) error
	UpdateRuleCalibration(ctx context.Context, id string, patch model.RuleCalibration) error
}

// ResultStore holds finished analyses and their rule attribution.
type ResultStore interface {
	SaveResult(ctx context.Context, result *model.AnalysisResult) error
	GetResult(ctx context.Context, id string) (*model.AnalysisResult, error)
	GetRuleContributions(ctx context.Context, analysisID string) ([]model.RuleContribution, error)
}

// OutcomeStore holds ground-truth reports.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, o *model.Outcome) error
	SoftDeleteOutcome(ctx context.Context, id int64, userID string) error
	ListOutcomesSince(ctx context.Context, since time.Time) ([]model.Outcome, error)
}

// UsageStore holds per-user analysis counters.
type UsageStore interface {
	GetUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error)
	IncrementUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error)
}

// CreatorStore holds creator profile snapshots.
type CreatorStore interface {
	GetCreator(ctx context.Context, handle string) (*model.CreatorContext, error)
	UpsertCreator(ctx context.Context, c *model.CreatorContext) error
	CreatorAverages(ctx context.Context) (followers int64, engagement float64, err error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	RuleStore
	ResultStore
	OutcomeStore
	UsageStore
	CreatorStore

	Ping(ctx context.Context) error
	Close() error
}
