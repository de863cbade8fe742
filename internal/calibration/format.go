package calibration

import (
	"fmt"
	"strings"
)

// FormatSummary renders a run summary as an operator message.
func FormatSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule calibration finished\n\n")
	fmt.Fprintf(&b, "Outcomes processed: %d\n", s.Processed)
	fmt.Fprintf(&b, "Rules updated: %d, skipped: %d, failed: %d\n", s.RulesUpdated, s.SkippedRules, s.FailedRules)
	if len(s.RuleDetails) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	for _, d := range s.RuleDetails {
		if d.Status == StatusFailed {
			fmt.Fprintf(&b, "%s: write failed (%s)\n", d.RuleID, d.Error)
			continue
		}
		fmt.Fprintf(&b, "%s: %d/%d correct, accuracy %.3f, weight %.2f -> %.2f\n",
			d.RuleID, d.Correct, d.Total, d.Accuracy, d.PriorWeight, d.Weight)
	}
	return b.String()
}
