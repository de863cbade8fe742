// Package aggregate folds pipeline output into a single scored result.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"viralscope/internal/model"
	"viralscope/internal/pipeline"
)

// Weights is the fixed category blend for the overall score.
var Weights = model.ScoreWeights{Model: 0.50, Rules: 0.35, Trend: 0.15}

const (
	// freshCreatorAge is how recent a creator snapshot must be to add confidence.
	freshCreatorAge = 30 * 24 * time.Hour
	// weakRuleRatio marks rules whose score is below this share of max as weak.
	weakRuleRatio = 0.5
	maxRuleTips   = 2
)

// Aggregate combines sub-scores into an AnalysisResult. It does no I/O and
// leaves ID, UserID and CreatedAt for the caller.
func Aggregate(r *pipeline.Result) *model.AnalysisResult {
	modelScore := r.Model.Score
	ruleScore := r.Rules.Value.RuleScore
	trendScore := r.Trend.Value

	overall := Weights.Model*modelScore + Weights.Rules*ruleScore + Weights.Trend*trendScore

	contributions := make([]model.RuleContribution, len(r.Rules.Value.Contributions))
	copy(contributions, r.Rules.Value.Contributions)

	warnings := make([]string, len(r.Warnings))
	copy(warnings, r.Warnings)

	return &model.AnalysisResult{
		OverallScore:          round(clamp(overall, 0, 100), 1),
		Confidence:            confidence(r),
		Factors:               factors(r),
		Suggestions:           suggestions(r),
		RuleScore:             ruleScore,
		TrendScore:            round(trendScore, 1),
		ModelScore:            modelScore,
		ScoreWeights:          Weights,
		LatencyMS:             r.Latency.Milliseconds(),
		CostCents:             r.Model.CostCents,
		ModelID:               r.Model.Model,
		ScorerModelID:         r.Model.ScorerModel,
		BehavioralPredictions: r.Model.BehavioralPredictions,
		FeatureVector:         r.Model.FeatureVector,
		Reasoning:             r.Model.Reasoning,
		Warnings:              warnings,
		InputMode:             r.Input.Mode,
		HasVideo:              r.Input.HasVideo(),
		RuleContributions:     contributions,
	}
}

// confidence awards a point each for several matched rules, a known creator,
// a fresh creator snapshot and a run without warnings.
func confidence(r *pipeline.Result) model.Confidence {
	points := 0
	if r.Rules.Value.Matched >= 3 {
		points++
	}
	c := r.Creator.Value
	if c.Known && !r.Creator.Degraded {
		points++
		if !c.UpdatedAt.IsZero() && r.CompletedAt.Sub(c.UpdatedAt) <= freshCreatorAge {
			points++
		}
	}
	if len(r.Warnings) == 0 {
		points++
	}

	switch {
	case points >= 3:
		return model.ConfidenceHigh
	case points == 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func factors(r *pipeline.Result) []model.Factor {
	out := make([]model.Factor, 0, len(r.Model.Factors)+3)
	out = append(out, r.Model.Factors...)

	rr := r.Rules.Value
	out = append(out, model.Factor{
		Name:        "Rule matches",
		Score:       rr.RuleScore,
		Description: fmt.Sprintf("%d of %d rules matched", rr.Matched, len(rr.Contributions)),
	})
	out = append(out, model.Factor{
		Name:        "Trend alignment",
		Score:       round(r.Trend.Value, 1),
		Description: "Overlap with currently trending topics",
	})

	c := r.Creator.Value
	desc := fmt.Sprintf("%d followers, %.1f%% average engagement", c.FollowerCount, c.AvgEngagement*100)
	if !c.Known {
		desc += " (platform average)"
	}
	out = append(out, model.Factor{
		Name:        "Creator reach",
		Score:       reach(c),
		Description: desc,
	})
	return out
}

// reach maps follower count on a log scale (10M followers is the ceiling)
// plus engagement up to 10% onto 0-100.
func reach(c model.CreatorContext) float64 {
	followers := math.Log10(float64(c.FollowerCount)+1) / 7 * 70
	engagement := math.Min(c.AvgEngagement, 0.1) / 0.1 * 30
	return round(clamp(followers+engagement, 0, 100), 1)
}

// suggestions returns the model's suggestions followed by the descriptions
// of the weakest rules, lowest share of max first.
func suggestions(r *pipeline.Result) []string {
	out := make([]string, 0, len(r.Model.Suggestions)+maxRuleTips)
	seen := make(map[string]bool)
	for _, s := range r.Model.Suggestions {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	descriptions := make(map[string]string, len(r.ActiveRules))
	for _, rule := range r.ActiveRules {
		descriptions[rule.ID] = rule.Description
	}

	weak := make([]model.RuleContribution, 0)
	for _, c := range r.Rules.Value.Contributions {
		if c.MaxScore > 0 && c.Score/c.MaxScore < weakRuleRatio && descriptions[c.RuleID] != "" {
			weak = append(weak, c)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool {
		return weak[i].Score/weak[i].MaxScore < weak[j].Score/weak[j].MaxScore
	})

	added := 0
	for _, c := range weak {
		if added == maxRuleTips {
			break
		}
		d := descriptions[c.RuleID]
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
		added++
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
