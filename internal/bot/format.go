package bot

import (
	"fmt"
	"strings"

	"viralscope/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

func ruleStatus(r model.Rule) string {
	if r.IsActive {
		return statusActive
	}
	return statusPaused
}

func accuracyLabel(acc *float64) string {
	if acc == nil {
		return "uncalibrated"
	}
	return fmt.Sprintf("%.1f%%", *acc*100)
}

// FormatRuleList formats all rules for display.
func FormatRuleList(rules []model.Rule) string {
	if len(rules) == 0 {
		return "No rules yet. Seed them with viralctl seed-rules."
	}
	var b strings.Builder
	b.WriteString("Rules:\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "\n%s  %s [%s, %s]\n", r.ID, r.Name, r.Tier, ruleStatus(r))
		fmt.Fprintf(&b, "   weight %.2f, accuracy %s, %d samples\n", r.Weight, accuracyLabel(r.AccuracyRate), r.SampleCount)
	}
	return b.String()
}

// FormatRuleInfo formats detailed information about a single rule.
func FormatRuleInfo(r *model.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s [%s]\n", r.ID, r.Name, ruleStatus(*r))
	if r.Description != "" {
		fmt.Fprintf(&b, "%s\n", r.Description)
	}
	fmt.Fprintf(&b, "Tier: %s, max score %g\n", r.Tier, r.MaxScore)
	switch r.Tier {
	case model.TierPattern:
		fmt.Fprintf(&b, "Patterns: %s\n", strings.Join(r.Patterns, ", "))
	case model.TierSemantic:
		fmt.Fprintf(&b, "Signal: %s\n", r.Signal)
	}
	fmt.Fprintf(&b, "Weight: %.2f\n", r.Weight)
	fmt.Fprintf(&b, "Accuracy: %s over %d samples\n", accuracyLabel(r.AccuracyRate), r.SampleCount)
	if !r.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "Updated: %s\n", r.UpdatedAt.Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

// FormatResult summarises a stored analysis.
func FormatResult(r *model.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis %s (user %s)\n", r.ID, r.UserID)
	fmt.Fprintf(&b, "Score %.1f, confidence %s\n", r.OverallScore, r.Confidence)
	fmt.Fprintf(&b, "Model %.1f, rules %.1f, trend %.1f\n", r.ModelScore, r.RuleScore, r.TrendScore)
	fmt.Fprintf(&b, "Created: %s\n", r.CreatedAt.Format("2006-01-02 15:04 UTC"))
	if len(r.RuleContributions) > 0 {
		b.WriteString("\nRule contributions:\n")
		for _, c := range r.RuleContributions {
			fmt.Fprintf(&b, "  %s: %g/%g\n", c.RuleID, c.Score, c.MaxScore)
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	return b.String()
}
