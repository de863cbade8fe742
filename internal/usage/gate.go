// Package usage enforces per-user daily analysis quotas by subscription tier.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"viralscope/internal/model"
)

// Unlimited marks a tier with no daily quota.
const Unlimited = -1

// Subscription tiers.
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierPro     = "pro"
	TierAgency  = "agency"
)

// DailyLimits maps each subscription tier to its daily analysis quota.
var DailyLimits = map[string]int{
	TierFree:    1,
	TierStarter: 5,
	TierPro:     50,
	TierAgency:  Unlimited,
}

// ErrQuotaExceeded is wrapped by *QuotaError.
var ErrQuotaExceeded = errors.New("daily analysis quota exceeded")

// QuotaError reports a rejected check.
type QuotaError struct {
	Tier    string
	Limit   int
	Current int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: %d of %d used on %s tier", ErrQuotaExceeded, e.Current, e.Limit, e.Tier)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Counter reads and increments per-user period counters. Increment must be an
// atomic create-or-add in the backing store.
type Counter interface {
	GetUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error)
	IncrementUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error)
}

// Decision is the result of a quota check.
type Decision struct {
	Allowed      bool `json:"allowed"`
	Limit        int  `json:"limit"`
	CurrentCount int  `json:"current_count"`
}

// Gate checks and records daily usage.
type Gate struct {
	counter Counter
	now     func() time.Time
}

// NewGate creates a Gate over the given counter store.
func NewGate(counter Counter) *Gate {
	return &Gate{counter: counter, now: time.Now}
}

// LimitFor returns the daily quota for a tier. Unknown tiers get the free quota.
func LimitFor(tier string) int {
	if limit, ok := DailyLimits[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return limit
	}
	return DailyLimits[TierFree]
}

// Day returns the UTC day that t falls in, which is the daily period key.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Check reports whether the user may start another analysis today.
func (g *Gate) Check(ctx context.Context, userID, tier string) (Decision, error) {
	limit := LimitFor(tier)
	current, err := g.counter.GetUsage(ctx, userID, Day(g.now()), model.PeriodDaily)
	if err != nil {
		return Decision{}, fmt.Errorf("read usage: %w", err)
	}
	d := Decision{Limit: limit, CurrentCount: current}
	d.Allowed = limit == Unlimited || current < limit
	return d, nil
}

// Enforce is Check returning *QuotaError when the user is at or over quota.
func (g *Gate) Enforce(ctx context.Context, userID, tier string) (Decision, error) {
	d, err := g.Check(ctx, userID, tier)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &QuotaError{Tier: tier, Limit: d.Limit, Current: d.CurrentCount}
	}
	return d, nil
}

// Record counts one completed analysis against today's period.
func (g *Gate) Record(ctx context.Context, userID string) (int, error) {
	n, err := g.counter.IncrementUsage(ctx, userID, Day(g.now()), model.PeriodDaily)
	if err != nil {
		return 0, fmt.Errorf("record usage: %w", err)
	}
	return n, nil
}
