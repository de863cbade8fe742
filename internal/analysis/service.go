// Package analysis runs submissions through validation, quota, the pipeline
// and persistence, streaming progress to the caller.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"viralscope/internal/aggregate"
	"viralscope/internal/events"
	"viralscope/internal/model"
	"viralscope/internal/pipeline"
	"viralscope/internal/progress"
	"viralscope/internal/storage"
	"viralscope/internal/usage"
	"viralscope/internal/validate"
)

// ErrPersistence marks a failed write of a finished analysis or its usage count.
var ErrPersistence = errors.New("persist analysis")

// PhaseScoring is emitted after the pipeline, before the result is saved.
const PhaseScoring = "scoring"

// Request is one analysis submission from an identified user.
type Request struct {
	UserID     string
	Tier       string
	Submission validate.Submission
}

// Runner executes the prediction pipeline.
type Runner interface {
	Run(ctx context.Context, in model.AnalysisInput, emit progress.Emitter) (*pipeline.Result, error)
}

// Store persists results and outcomes.
type Store interface {
	storage.ResultStore
	storage.OutcomeStore
}

// Notifier delivers a plain-text message to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// CompletedEvent is published after every successful analysis.
type CompletedEvent struct {
	AnalysisID   string           `json:"analysis_id"`
	UserID       string           `json:"user_id"`
	OverallScore float64          `json:"overall_score"`
	Confidence   model.Confidence `json:"confidence"`
	RuleScore    float64          `json:"rule_score"`
	TrendScore   float64          `json:"trend_score"`
	ModelScore   float64          `json:"model_score"`
	Warnings     int              `json:"warnings"`
}

// Service coordinates one analysis per Start call.
type Service struct {
	gate     *usage.Gate
	runner   Runner
	store    Store
	pub      events.Publisher
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
	inflight sync.WaitGroup
}

// NewService creates a Service.
func NewService(gate *usage.Gate, runner Runner, store Store, pub events.Publisher, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		gate:     gate,
		runner:   runner,
		store:    store,
		pub:      pub,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Start validates the submission and checks quota synchronously; on either
// failure no pipeline work is done and the error is returned. Otherwise the
// analysis runs in the background and its events arrive on the stream.
// Cancelling ctx stops delivery, not the work already in flight.
func (s *Service) Start(ctx context.Context, req Request) (*progress.Stream, error) {
	if req.UserID == "" {
		return nil, &validate.Error{Field: "user_id", Reason: "is required"}
	}
	in, err := validate.Validate(req.Submission)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Enforce(ctx, req.UserID, req.Tier); err != nil {
		return nil, err
	}

	stream := progress.New(ctx, progress.DefaultBuffer)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.execute(context.WithoutCancel(ctx), stream, req.UserID, in)
	}()
	return stream, nil
}

// Wait blocks until every started analysis has finished persisting, or ctx
// is done. Call it after the HTTP server stops accepting work and before the
// store is closed.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for analyses: %w", ctx.Err())
	}
}

func (s *Service) execute(ctx context.Context, stream *progress.Stream, userID string, in model.AnalysisInput) {
	res, err := s.runner.Run(ctx, in, stream)
	if err != nil {
		stream.Fail(err)
		return
	}

	stream.Phase(PhaseScoring, "Combining scores")
	result := aggregate.Aggregate(res)
	result.ID = s.newID()
	result.UserID = userID
	result.CreatedAt = s.now().UTC()

	if err := s.store.SaveResult(ctx, result); err != nil {
		s.persistenceFailure(ctx, "save result", result.ID, err)
	}
	if _, err := s.gate.Record(ctx, userID); err != nil {
		s.persistenceFailure(ctx, "record usage", result.ID, err)
	}

	ev := CompletedEvent{
		AnalysisID:   result.ID,
		UserID:       userID,
		OverallScore: result.OverallScore,
		Confidence:   result.Confidence,
		RuleScore:    result.RuleScore,
		TrendScore:   result.TrendScore,
		ModelScore:   result.ModelScore,
		Warnings:     len(result.Warnings),
	}
	if err := s.pub.Publish(ctx, events.TopicAnalysisCompleted, userID, ev); err != nil {
		s.log.Warn("publish analysis completed", "analysis_id", result.ID, "error", err)
	}

	s.log.Info("analysis complete",
		"analysis_id", result.ID,
		"user_id", userID,
		"score", result.OverallScore,
		"confidence", result.Confidence,
		"warnings", len(result.Warnings),
		"latency_ms", result.LatencyMS,
	)
	stream.Complete(result)
}

// persistenceFailure logs and reports a write failure. The caller still
// receives the computed result.
func (s *Service) persistenceFailure(ctx context.Context, op, analysisID string, err error) {
	err = fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
	s.log.Error("persistence failure", "analysis_id", analysisID, "error", err)
	if nerr := s.notifier.Notify(ctx, fmt.Sprintf("Analysis %s: %v", analysisID, err)); nerr != nil {
		s.log.Error("notify operator", "error", nerr)
	}
}

// GetResult returns a stored analysis owned by userID.
func (s *Service) GetResult(ctx context.Context, userID, id string) (*model.AnalysisResult, error) {
	result, err := s.store.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.UserID != userID {
		return nil, fmt.Errorf("analysis %s: %w", id, storage.ErrNotFound)
	}
	return result, nil
}

// ReportOutcome records the real-world score for an analysis owned by userID.
// The predicted score is taken from the stored result.
func (s *Service) ReportOutcome(ctx context.Context, userID, analysisID string, actual float64) (*model.Outcome, error) {
	if actual < 0 || actual > 100 {
		return nil, &validate.Error{Field: "actual_score", Reason: "must be between 0 and 100"}
	}
	result, err := s.GetResult(ctx, userID, analysisID)
	if err != nil {
		return nil, err
	}

	predicted := result.OverallScore
	o := &model.Outcome{
		AnalysisID:     analysisID,
		UserID:         userID,
		PredictedScore: &predicted,
		ActualScore:    &actual,
	}
	if err := s.store.RecordOutcome(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// DeleteOutcome soft-deletes an outcome owned by userID.
func (s *Service) DeleteOutcome(ctx context.Context, userID string, id int64) error {
	return s.store.SoftDeleteOutcome(ctx, id, userID)
}
