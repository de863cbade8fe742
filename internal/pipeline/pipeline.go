// Package pipeline runs the staged prediction for one piece of content.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"viralscope/internal/creator"
	"viralscope/internal/model"
	"viralscope/internal/progress"
	"viralscope/internal/rules"
	"viralscope/internal/understanding"
)

// ErrFatal is returned when the content-understanding call fails. No score
// can be produced without it.
var ErrFatal = errors.New("content understanding failed")

// NeutralTrendScore substitutes for a trend score that could not be computed.
const NeutralTrendScore = 50.0

// Phase names emitted while running.
const (
	PhaseUnderstanding = "understanding"
	PhaseMatching      = "matching"
)

// Stage is a sub-stage outcome: either a real value, or a default value with
// the reason the stage was degraded.
type Stage[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

// OK wraps a successful stage value.
func OK[T any](v T) Stage[T] {
	return Stage[T]{Value: v}
}

// Degrade wraps a substituted default and the reason for it.
func Degrade[T any](def T, reason string) Stage[T] {
	return Stage[T]{Value: def, Degraded: true, Reason: reason}
}

// Understander analyses raw content with the external model.
type Understander interface {
	Analyze(ctx context.Context, req understanding.Request) (*understanding.Output, error)
}

// CreatorLookup resolves creator context.
type CreatorLookup interface {
	Get(ctx context.Context, handle, niche string) (model.CreatorContext, error)
}

// TrendScorer rates content against current trends.
type TrendScorer interface {
	Score(ctx context.Context, text, niche string) (float64, error)
}

// RuleSource provides the rules evaluated on every run.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
}

// Result bundles every stage's output for the aggregator.
type Result struct {
	Input       model.AnalysisInput
	Model       *understanding.Output
	Creator     Stage[model.CreatorContext]
	Rules       Stage[rules.Result]
	Trend       Stage[float64]
	ActiveRules []model.Rule
	Warnings    []string
	Latency     time.Duration
	CompletedAt time.Time
}

// Pipeline orchestrates the two waves of stages.
type Pipeline struct {
	model        Understander
	creators     CreatorLookup
	trends       TrendScorer
	rules        RuleSource
	stageTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time
}

// New creates a Pipeline. stageTimeout bounds every stage except the model call.
func New(m Understander, creators CreatorLookup, trends TrendScorer, rs RuleSource, stageTimeout time.Duration, log *slog.Logger) *Pipeline {
	return &Pipeline{
		model:        m,
		creators:     creators,
		trends:       trends,
		rules:        rs,
		stageTimeout: stageTimeout,
		log:          log,
		now:          time.Now,
	}
}

type nopEmitter struct{}

func (nopEmitter) Phase(string, string) {}

// Run executes both waves. Wave 1 looks up the creator and calls the model
// concurrently; wave 2 matches rules and scores trends once wave 1 is done.
// A failing sub-stage is replaced by a default and reported as a warning.
func (p *Pipeline) Run(ctx context.Context, in model.AnalysisInput, emit progress.Emitter) (*Result, error) {
	if emit == nil {
		emit = nopEmitter{}
	}
	start := p.now()
	res := &Result{Input: in}

	emit.Phase(PhaseUnderstanding, "Analyzing content and creator context")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.model.Analyze(gctx, understanding.FromInput(in))
		if err != nil {
			return err
		}
		res.Model = out
		return nil
	})
	g.Go(func() error {
		res.Creator = runStage(gctx, p.stageTimeout, defaultCreator(in), "creator lookup", func(ctx context.Context) (model.CreatorContext, error) {
			return p.creators.Get(ctx, in.CreatorHandle, in.Niche)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		p.log.Error("content understanding", "mode", in.Mode, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	emit.Phase(PhaseMatching, "Matching rules and current trends")
	text := contentText(in, res.Model)
	niche := in.Niche
	if niche == "" {
		niche = res.Creator.Value.Niche
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var active []model.Rule
		res.Rules = runStage(gctx, p.stageTimeout, neutralRules(), "rule matching", func(ctx context.Context) (rules.Result, error) {
			rs, err := p.rules.ListActiveRules(ctx)
			if err != nil {
				return rules.Result{}, err
			}
			active = rs
			return rules.Evaluate(rs, rules.Content{Text: text, Signals: res.Model.Signals}), nil
		})
		res.ActiveRules = active
		return nil
	})
	g.Go(func() error {
		res.Trend = runStage(gctx, p.stageTimeout, NeutralTrendScore, "trend scoring", func(ctx context.Context) (float64, error) {
			return p.trends.Score(ctx, text, niche)
		})
		return nil
	})
	_ = g.Wait()

	for _, reason := range []string{res.Creator.Reason, res.Rules.Reason, res.Trend.Reason} {
		if reason != "" {
			res.Warnings = append(res.Warnings, reason)
		}
	}
	for _, w := range res.Warnings {
		p.log.Warn("stage degraded", "warning", w)
	}

	res.CompletedAt = p.now()
	res.Latency = res.CompletedAt.Sub(start)
	return res, nil
}

func runStage[T any](ctx context.Context, timeout time.Duration, def T, label string, fn func(context.Context) (T, error)) Stage[T] {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err != nil {
		return Degrade(def, fmt.Sprintf("%s skipped: %v", label, err))
	}
	return OK(v)
}

func defaultCreator(in model.AnalysisInput) model.CreatorContext {
	return model.CreatorContext{
		Handle:        in.CreatorHandle,
		Niche:         in.Niche,
		FollowerCount: creator.DefaultFollowers,
		AvgEngagement: creator.DefaultEngagement,
	}
}

func neutralRules() rules.Result {
	return rules.Result{
		Contributions: []model.RuleContribution{},
		RuleScore:     rules.NeutralScore,
	}
}

// contentText joins the submitted text with the model's transcript so that
// URL and upload submissions can still be matched by pattern rules.
func contentText(in model.AnalysisInput, out *understanding.Output) string {
	parts := make([]string, 0, 2)
	if in.Text != "" {
		parts = append(parts, in.Text)
	}
	if out != nil && out.Transcript != "" {
		parts = append(parts, out.Transcript)
	}
	return strings.Join(parts, "\n")
}
