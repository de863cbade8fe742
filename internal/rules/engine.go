// Package rules evaluates scoring rules against analysed content.
package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"viralscope/internal/model"
)

// regexPrefix marks a pattern as a regular expression instead of a keyword.
const regexPrefix = "re:"

// NeutralScore is the rule score reported when no rule could be weighed.
const NeutralScore = 50.0

// Content is what rules are matched against.
type Content struct {
	Text    string
	Signals map[string]float64
}

// Result is the outcome of evaluating every active rule.
type Result struct {
	Contributions []model.RuleContribution
	RuleScore     float64
	Matched       int
}

var compiled sync.Map // pattern -> *regexp.Regexp

// Evaluate scores content against rules in the given order. Inactive rules
// are skipped. Every evaluated rule yields one contribution, including
// rules that scored zero.
func Evaluate(rules []model.Rule, c Content) Result {
	text := strings.ToLower(c.Text)
	res := Result{
		Contributions: make([]model.RuleContribution, 0, len(rules)),
	}

	var weighted, weightedMax float64
	for _, r := range rules {
		if !r.IsActive || r.MaxScore <= 0 {
			continue
		}
		score := scoreRule(r, text, c.Signals)
		res.Contributions = append(res.Contributions, model.RuleContribution{
			RuleID:   r.ID,
			RuleName: r.Name,
			Score:    score,
			MaxScore: r.MaxScore,
			Tier:     r.Tier,
		})
		if score > 0 {
			res.Matched++
		}
		weighted += score * r.Weight
		weightedMax += r.MaxScore * r.Weight
	}

	res.RuleScore = NeutralScore
	if weightedMax > 0 {
		res.RuleScore = math.Round(weighted/weightedMax*1000) / 10
	}
	return res
}

func scoreRule(r model.Rule, text string, signals map[string]float64) float64 {
	switch r.Tier {
	case model.TierPattern:
		if len(r.Patterns) == 0 {
			return 0
		}
		hits := 0
		for _, p := range r.Patterns {
			if matchPattern(text, p) {
				hits++
			}
		}
		return r.MaxScore * float64(hits) / float64(len(r.Patterns))
	case model.TierSemantic:
		v, ok := signals[r.Signal]
		if !ok || math.IsNaN(v) {
			return 0
		}
		return r.MaxScore * math.Max(0, math.Min(1, v))
	}
	return 0
}

func matchPattern(text, pattern string) bool {
	if expr, ok := strings.CutPrefix(pattern, regexPrefix); ok {
		re, err := compile(expr)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return strings.Contains(text, strings.ToLower(pattern))
}

func compile(expr string) (*regexp.Regexp, error) {
	if re, ok := compiled.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, err
	}
	compiled.Store(expr, re)
	return re, nil
}

// ValidateRule checks that a rule is well formed before it is stored.
func ValidateRule(r model.Rule) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.MaxScore <= 0 {
		return fmt.Errorf("rule %s: max_score must be positive", r.ID)
	}
	switch r.Tier {
	case model.TierPattern:
		if len(r.Patterns) == 0 {
			return fmt.Errorf("rule %s: pattern rule needs at least one pattern", r.ID)
		}
		for _, p := range r.Patterns {
			if expr, ok := strings.CutPrefix(p, regexPrefix); ok {
				if _, err := regexp.Compile("(?i)" + expr); err != nil {
					return fmt.Errorf("rule %s: invalid regex: %w", r.ID, err)
				}
			}
		}
	case model.TierSemantic:
		if strings.TrimSpace(r.Signal) == "" {
			return fmt.Errorf("rule %s: semantic rule needs a signal", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown tier %q", r.ID, r.Tier)
	}
	return nil
}
