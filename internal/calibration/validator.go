// Package calibration re-weights scoring rules from reported outcomes.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"viralscope/internal/events"
	"viralscope/internal/model"
)

// Calibration constants.
const (
	Window     = 30 * 24 * time.Hour
	MinSamples = 10
	Alpha      = 0.3
)

var (
	// ErrData is returned when rules or outcomes cannot be loaded. The run is aborted.
	ErrData = errors.New("load calibration data")
	// ErrRunInProgress is returned when a run is requested while one is active.
	ErrRunInProgress = errors.New("calibration run already in progress")
)

// Rule detail statuses.
const (
	StatusUpdated = "updated"
	StatusFailed  = "failed"
)

// Store is the persistence the validator reads and writes.
type Store interface {
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
	ListOutcomesSince(ctx context.Context, since time.Time) ([]model.Outcome, error)
	GetRuleContributions(ctx context.Context, analysisID string) ([]model.RuleContribution, error)
	UpdateRuleCalibration(ctx context.Context, id string, patch model.RuleCalibration) error
}

// Notifier delivers a plain-text message to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// RuleDetail describes what a run did to one rule.
type RuleDetail struct {
	RuleID        string   `json:"ruleId"`
	Name          string   `json:"name"`
	Correct       int      `json:"correct"`
	Total         int      `json:"total"`
	BatchAccuracy float64  `json:"batchAccuracy"`
	PriorAccuracy *float64 `json:"priorAccuracy"`
	Accuracy      float64  `json:"accuracy"`
	PriorWeight   float64  `json:"priorWeight"`
	Weight        float64  `json:"weight"`
	SampleCount   int      `json:"sampleCount"`
	Status        string   `json:"status"`
	Error         string   `json:"error,omitempty"`
}

// Summary is the result of one run.
type Summary struct {
	Processed    int          `json:"processed"`
	RulesUpdated int          `json:"rulesUpdated"`
	RuleDetails  []RuleDetail `json:"ruleDetails"`
	SkippedRules int          `json:"skippedRules"`
	FailedRules  int          `json:"failedRules"`
}

type tally struct {
	correct, total int
}

// Validator runs the rule accuracy batch. Only one run may be active at a time.
type Validator struct {
	store    Store
	pub      events.Publisher
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	running  atomic.Bool
}

// NewValidator creates a Validator. pub and notifier may be nil.
func NewValidator(store Store, pub events.Publisher, notifier Notifier, log *slog.Logger) *Validator {
	return &Validator{
		store:    store,
		pub:      pub,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Run grades every active rule against outcomes from the last Window and
// rewrites accuracy, weight and sample count for rules with enough samples.
// Re-running is safe, but sample_count grows on every run because outcomes
// are never marked as processed.
func (v *Validator) Run(ctx context.Context) (Summary, error) {
	if !v.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunInProgress
	}
	defer v.running.Store(false)

	summary, err := v.run(ctx)
	if err != nil {
		v.log.Error("rule calibration", "error", err)
		v.notify(ctx, fmt.Sprintf("Rule calibration aborted: %v", err))
		return Summary{}, err
	}

	v.log.Info("rule calibration",
		"processed", summary.Processed,
		"updated", summary.RulesUpdated,
		"skipped", summary.SkippedRules,
		"failed", summary.FailedRules,
	)
	if v.pub != nil {
		if err := v.pub.Publish(ctx, events.TopicRulesRecalibrated, "", summary); err != nil {
			v.log.Error("publish calibration summary", "error", err)
		}
	}
	v.notify(ctx, FormatSummary(summary))
	return summary, nil
}

func (v *Validator) run(ctx context.Context) (Summary, error) {
	rules, err := v.store.ListActiveRules(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: rules: %w", ErrData, err)
	}

	outcomes, err := v.store.ListOutcomesSince(ctx, v.now().Add(-Window))
	if err != nil {
		return Summary{}, fmt.Errorf("%w: outcomes: %w", ErrData, err)
	}

	tallies := make(map[string]*tally, len(rules))
	summary := Summary{RuleDetails: []RuleDetail{}}
	for _, o := range outcomes {
		if o.PredictedScore == nil || o.ActualScore == nil {
			continue
		}
		contributions, err := v.store.GetRuleContributions(ctx, o.AnalysisID)
		if err != nil {
			return Summary{}, fmt.Errorf("%w: contributions for %s: %w", ErrData, o.AnalysisID, err)
		}
		summary.Processed++

		for _, c := range contributions {
			if c.MaxScore == 0 {
				continue
			}
			t := tallies[c.RuleID]
			if t == nil {
				t = &tally{}
				tallies[c.RuleID] = t
			}
			t.total++
			if correctDirection(c, *o.PredictedScore, *o.ActualScore) {
				t.correct++
			}
		}
	}

	for _, r := range rules {
		t := tallies[r.ID]
		if t == nil || t.total < MinSamples {
			summary.SkippedRules++
			continue
		}

		detail := calibrate(r, *t)
		err := v.store.UpdateRuleCalibration(ctx, r.ID, model.RuleCalibration{
			AccuracyRate: detail.Accuracy,
			SampleCount:  detail.SampleCount,
			Weight:       detail.Weight,
		})
		if err != nil {
			v.log.Error("update rule calibration", "rule_id", r.ID, "error", err)
			detail.Status = StatusFailed
			detail.Error = err.Error()
			summary.FailedRules++
		} else {
			summary.RulesUpdated++
		}
		summary.RuleDetails = append(summary.RuleDetails, detail)
	}
	return summary, nil
}

// correctDirection reports whether a contribution pointed the right way:
// a bullish rule (above half its max) is right when the content met or beat
// its prediction, a bearish one when it fell short.
func correctDirection(c model.RuleContribution, predicted, actual float64) bool {
	if c.Score > 0.5*c.MaxScore {
		return actual >= predicted
	}
	return actual < predicted
}

func calibrate(r model.Rule, t tally) RuleDetail {
	batch := float64(t.correct) / float64(t.total)
	prior := batch
	if r.AccuracyRate != nil {
		prior = *r.AccuracyRate
	}
	accuracy := round(Alpha*batch+(1-Alpha)*prior, 3)

	return RuleDetail{
		RuleID:        r.ID,
		Name:          r.Name,
		Correct:       t.correct,
		Total:         t.total,
		BatchAccuracy: batch,
		PriorAccuracy: r.AccuracyRate,
		Accuracy:      accuracy,
		PriorWeight:   r.Weight,
		Weight:        WeightFor(accuracy),
		SampleCount:   r.SampleCount + t.total,
		Status:        StatusUpdated,
	}
}

// WeightFor maps an accuracy rate onto the rule weight range.
func WeightFor(accuracy float64) float64 {
	w := 0.5 + accuracy*1.5
	w = math.Max(model.MinRuleWeight, math.Min(model.MaxRuleWeight, w))
	return round(w, 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func (v *Validator) notify(ctx context.Context, text string) {
	if v.notifier == nil {
		return
	}
	if err := v.notifier.Notify(ctx, text); err != nil {
		v.log.Error("notify operator", "error", err)
	}
}
