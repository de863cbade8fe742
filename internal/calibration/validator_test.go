package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"viralscope/internal/model"
	"viralscope/internal/storage"
)

var now = time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func newStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newValidator(store Store) *Validator {
	v := NewValidator(store, nil, nil, slog.New(slog.DiscardHandler))
	v.now = func() time.Time { return now }
	return v
}

func seedRule(t *testing.T, s *storage.SQLite, id string, cal *model.RuleCalibration) {
	t.Helper()
	ctx := context.Background()
	r := &model.Rule{ID: id, Name: id, Tier: model.TierSemantic, MaxScore: 10, Signal: id, Weight: 1, IsActive: true}
	if err := s.UpsertRule(ctx, r); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}
	if cal != nil {
		if err := s.UpdateRuleCalibration(ctx, id, *cal); err != nil {
			t.Fatalf("seed calibration: %v", err)
		}
	}
}

// seedOutcome stores one analysis with the given contributions and an outcome for it.
func seedOutcome(t *testing.T, s *storage.SQLite, n int, age time.Duration, predicted, actual float64, contributions ...model.RuleContribution) {
	t.Helper()
	ctx := context.Background()
	id := fmt.Sprintf("a-%d-%d", n, int(age.Hours()))
	res := &model.AnalysisResult{ID: id, UserID: "u-1", OverallScore: predicted, RuleContributions: contributions}
	if err := s.SaveResult(ctx, res); err != nil {
		t.Fatalf("save result: %v", err)
	}
	o := &model.Outcome{AnalysisID: id, UserID: "u-1", PredictedScore: ptr(predicted), ActualScore: ptr(actual), CreatedAt: now.Add(-age)}
	if err := s.RecordOutcome(ctx, o); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
}

func bullish(id string) model.RuleContribution {
	return model.RuleContribution{RuleID: id, RuleName: id, Score: 8, MaxScore: 10, Tier: model.TierSemantic}
}

func bearish(id string) model.RuleContribution {
	return model.RuleContribution{RuleID: id, RuleName: id, Score: 5, MaxScore: 10, Tier: model.TierSemantic}
}

func TestRunBlendsWithPriorAccuracy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedRule(t, s, "hook", &model.RuleCalibration{AccuracyRate: 0.6, SampleCount: 40, Weight: 1.4})
	seedRule(t, s, "sparse", &model.RuleCalibration{AccuracyRate: 0.5, SampleCount: 7, Weight: 1.25})

	// 16 of 20 bullish calls for "hook" hold up; "sparse" only appears 9 times.
	for i := 0; i < 20; i++ {
		actual := 80.0
		if i >= 16 {
			actual = 40
		}
		contribs := []model.RuleContribution{bullish("hook")}
		if i < 9 {
			contribs = append(contribs, bearish("sparse"))
		}
		seedOutcome(t, s, i, 24*time.Hour, 60, actual, contribs...)
	}
	// Outside the window.
	seedOutcome(t, s, 99, 31*24*time.Hour, 60, 10, bullish("hook"))

	summary, err := newValidator(s).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := Summary{
		Processed:    20,
		RulesUpdated: 1,
		SkippedRules: 1,
		RuleDetails: []RuleDetail{{
			RuleID: "hook", Name: "hook", Correct: 16, Total: 20, BatchAccuracy: 0.8, PriorAccuracy: ptr(0.6),
			Accuracy: 0.66, PriorWeight: 1.4, Weight: 1.49, SampleCount: 60, Status: StatusUpdated,
		}},
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	hook, err := s.GetRule(ctx, "hook")
	if err != nil {
		t.Fatalf("get hook: %v", err)
	}
	if *hook.AccuracyRate != 0.66 || hook.Weight != 1.49 || hook.SampleCount != 60 {
		t.Errorf("hook = accuracy %v weight %v samples %d, want 0.66 1.49 60", *hook.AccuracyRate, hook.Weight, hook.SampleCount)
	}

	sparse, err := s.GetRule(ctx, "sparse")
	if err != nil {
		t.Fatalf("get sparse: %v", err)
	}
	if *sparse.AccuracyRate != 0.5 || sparse.Weight != 1.25 || sparse.SampleCount != 7 {
		t.Errorf("sparse rule changed below the sample floor: %+v", sparse)
	}
}

func TestRunDirectionClassification(t *testing.T) {
	tests := []struct {
		name      string
		c         model.RuleContribution
		predicted float64
		actual    float64
		want      bool
	}{
		{name: "bullish met", c: bullish("r"), predicted: 60, actual: 60, want: true},
		{name: "bullish missed", c: bullish("r"), predicted: 60, actual: 59, want: false},
		{name: "half of max is bearish, fell short", c: bearish("r"), predicted: 60, actual: 59, want: true},
		{name: "bearish but met", c: bearish("r"), predicted: 60, actual: 60, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := correctDirection(tt.c, tt.predicted, tt.actual); got != tt.want {
				t.Errorf("correctDirection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunTwiceKeepsFirstCalibration(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedRule(t, s, "hook", nil)
	for i := 0; i < 10; i++ {
		actual := 70.0
		if i >= 8 {
			actual = 30
		}
		seedOutcome(t, s, i, time.Hour, 50, actual, bullish("hook"))
	}

	v := newValidator(s)
	for run := 1; run <= 2; run++ {
		if _, err := v.Run(ctx); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		r, err := s.GetRule(ctx, "hook")
		if err != nil {
			t.Fatalf("get rule: %v", err)
		}
		if *r.AccuracyRate != 0.8 || r.Weight != 1.7 {
			t.Errorf("run %d: accuracy %v weight %v, want 0.8 1.7", run, *r.AccuracyRate, r.Weight)
		}
		if r.SampleCount != 10*run {
			t.Errorf("run %d: sample count %d, want %d", run, r.SampleCount, 10*run)
		}
	}
}

type failingStore struct {
	*storage.SQLite
	failWrite    string
	failOutcomes bool
	block        chan struct{}
}

func (f *failingStore) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	if f.block != nil {
		<-f.block
	}
	return f.SQLite.ListActiveRules(ctx)
}

func (f *failingStore) ListOutcomesSince(ctx context.Context, since time.Time) ([]model.Outcome, error) {
	if f.failOutcomes {
		return nil, errors.New("disk I/O error")
	}
	return f.SQLite.ListOutcomesSince(ctx, since)
}

func (f *failingStore) UpdateRuleCalibration(ctx context.Context, id string, patch model.RuleCalibration) error {
	if id == f.failWrite {
		return errors.New("constraint failed")
	}
	return f.SQLite.UpdateRuleCalibration(ctx, id, patch)
}

func TestRunIsolatesWriteFailures(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedRule(t, s, "a", nil)
	seedRule(t, s, "b", nil)
	for i := 0; i < 10; i++ {
		seedOutcome(t, s, i, time.Hour, 50, 70, bullish("a"), bullish("b"))
	}

	summary, err := newValidator(&failingStore{SQLite: s, failWrite: "a"}).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RulesUpdated != 1 || summary.FailedRules != 1 {
		t.Errorf("updated=%d failed=%d, want 1 and 1", summary.RulesUpdated, summary.FailedRules)
	}
	statuses := map[string]string{}
	for _, d := range summary.RuleDetails {
		statuses[d.RuleID] = d.Status
	}
	if diff := cmp.Diff(map[string]string{"a": StatusFailed, "b": StatusUpdated}, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}

	b, err := s.GetRule(ctx, "b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if b.AccuracyRate == nil || *b.AccuracyRate != 1 || b.Weight != 2 {
		t.Errorf("rule b not updated: %+v", b)
	}
}

func TestRunAbortsOnDataError(t *testing.T) {
	s := newStore(t)
	seedRule(t, s, "a", nil)

	_, err := newValidator(&failingStore{SQLite: s, failOutcomes: true}).Run(context.Background())
	if !errors.Is(err, ErrData) {
		t.Fatalf("expected ErrData, got %v", err)
	}
}

func TestRunRejectsOverlap(t *testing.T) {
	s := newStore(t)
	block := make(chan struct{})
	v := newValidator(&failingStore{SQLite: s, block: block})

	done := make(chan error, 1)
	go func() {
		_, err := v.Run(context.Background())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for !v.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := v.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

type recordingNotifier struct {
	texts []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

type recordingPublisher struct {
	topics []string
	data   []any
}

func (r *recordingPublisher) Publish(_ context.Context, topic, _ string, data any) error {
	r.topics = append(r.topics, topic)
	r.data = append(r.data, data)
	return nil
}

func TestRunPublishesAndNotifies(t *testing.T) {
	s := newStore(t)
	seedRule(t, s, "hook", nil)
	for i := 0; i < 10; i++ {
		seedOutcome(t, s, i, time.Hour, 50, 70, bullish("hook"))
	}

	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}
	v := NewValidator(s, pub, notifier, slog.New(slog.DiscardHandler))
	v.now = func() time.Time { return now }

	summary, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{"rules.recalibrated"}, pub.topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{summary}, pub.data, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("published summary mismatch (-want +got):\n%s", diff)
	}
	if len(notifier.texts) != 1 || !strings.Contains(notifier.texts[0], "hook: 10/10 correct, accuracy 1.000, weight 1.00 -> 2.00") {
		t.Errorf("notification = %q", notifier.texts)
	}
}
