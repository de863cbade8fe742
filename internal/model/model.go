// Package model defines the domain types used across the application.
package model

import "time"

// InputMode identifies how the content was submitted.
type InputMode string

// Supported input modes.
const (
	ModeText   InputMode = "text"
	ModeURL    InputMode = "url"
	ModeUpload InputMode = "upload"
)

// ContentType is the declared kind of content being analysed.
type ContentType string

// Supported content types.
const (
	ContentVideo    ContentType = "video"
	ContentImage    ContentType = "image"
	ContentText     ContentType = "text"
	ContentCarousel ContentType = "carousel"
)

// AnalysisInput is a validated submission. Exactly one of Text, URL or
// StorageRef is populated, matching Mode.
type AnalysisInput struct {
	Mode             InputMode
	Text             string
	URL              string
	StorageRef       string
	ContentType      ContentType
	TargetAudienceID string
	Niche            string
	CreatorHandle    string
}

// HasVideo reports whether the input refers to video content.
func (in AnalysisInput) HasVideo() bool {
	return in.ContentType == ContentVideo && in.Mode != ModeText
}

// RuleTier defines how a rule is matched against content.
type RuleTier string

// Supported rule tiers.
const (
	TierPattern  RuleTier = "pattern"
	TierSemantic RuleTier = "semantic"
)

// Weight bounds for a rule.
const (
	MinRuleWeight = 0.5
	MaxRuleWeight = 2.0
)

// Rule is a scoring heuristic with a tunable weight and tracked accuracy.
type Rule struct {
	ID           string
	Name         string
	Description  string
	Tier         RuleTier
	MaxScore     float64
	Patterns     []string
	Signal       string
	Weight       float64
	AccuracyRate *float64
	SampleCount  int
	IsActive     bool
	UpdatedAt    time.Time
}

// RuleCalibration is the patch written back by the accuracy validator.
type RuleCalibration struct {
	AccuracyRate float64
	SampleCount  int
	Weight       float64
}

// RuleContribution records what one rule scored for one analysis.
type RuleContribution struct {
	RuleID   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	Score    float64  `json:"score"`
	MaxScore float64  `json:"max_score"`
	Tier     RuleTier `json:"tier"`
}

// Confidence is the label attached to an overall score.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Factor is one line of the per-factor breakdown.
type Factor struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Description string  `json:"description,omitempty"`
}

// ScoreWeights is the category blend used for the overall score.
type ScoreWeights struct {
	Model float64 `json:"model"`
	Rules float64 `json:"rules"`
	Trend float64 `json:"trend"`
}

// AnalysisResult is the immutable outcome of one analysis.
type AnalysisResult struct {
	ID                    string             `json:"id"`
	UserID                string             `json:"user_id"`
	OverallScore          float64            `json:"overall_score"`
	Confidence            Confidence         `json:"confidence"`
	Factors               []Factor           `json:"factors"`
	Suggestions           []string           `json:"suggestions"`
	RuleScore             float64            `json:"rule_score"`
	TrendScore            float64            `json:"trend_score"`
	ModelScore            float64            `json:"model_score"`
	ScoreWeights          ScoreWeights       `json:"score_weights"`
	LatencyMS             int64              `json:"latency_ms"`
	CostCents             float64            `json:"cost_cents"`
	ModelID               string             `json:"model_id"`
	ScorerModelID         string             `json:"scorer_model_id,omitempty"`
	BehavioralPredictions map[string]float64 `json:"behavioral_predictions,omitempty"`
	FeatureVector         []float64          `json:"feature_vector,omitempty"`
	Reasoning             string             `json:"reasoning,omitempty"`
	Warnings              []string           `json:"warnings"`
	InputMode             InputMode          `json:"input_mode"`
	HasVideo              bool               `json:"has_video"`
	RuleContributions     []RuleContribution `json:"rule_contributions"`
	CreatedAt             time.Time          `json:"created_at"`
}

// Outcome is a later-reported ground-truth measurement for one analysis.
type Outcome struct {
	ID             int64
	AnalysisID     string
	UserID         string
	PredictedScore *float64
	ActualScore    *float64
	CreatedAt      time.Time
}

// PeriodDaily is the only usage period type currently tracked.
const PeriodDaily = "daily"

// CreatorContext describes the creator behind a piece of content.
type CreatorContext struct {
	Handle        string    `json:"handle"`
	Niche         string    `json:"niche"`
	FollowerCount int64     `json:"follower_count"`
	AvgEngagement float64   `json:"avg_engagement"`
	Known         bool      `json:"known"`
	UpdatedAt     time.Time `json:"updated_at"`
}
