package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"viralscope/internal/model"
)

func collect(s *Stream) []Event {
	var out []Event
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}

func TestStreamOrderAndTerminal(t *testing.T) {
	s := New(context.Background(), 1)
	result := &model.AnalysisResult{ID: "a-1", OverallScore: 71}

	go func() {
		s.Phase("context", "Looking up creator")
		s.Phase("rules", "Matching rules")
		s.Complete(result)
		s.Phase("late", "dropped")
		s.Fail(errors.New("dropped too"))
	}()

	got := collect(s)
	want := []Event{
		{Kind: KindPhase, Phase: "context", Message: "Looking up creator"},
		{Kind: KindPhase, Phase: "rules", Message: "Matching rules"},
		{Kind: KindComplete, Result: result},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.AnalysisResult{}, "CreatedAt")); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if !s.Closed() {
		t.Error("stream should be closed after a terminal event")
	}
}

func TestStreamFail(t *testing.T) {
	s := New(context.Background(), 4)
	s.Phase("understanding", "Reading content")
	s.Fail(errors.New("model unavailable"))

	got := collect(s)
	want := []Event{
		{Kind: KindPhase, Phase: "understanding", Message: "Reading content"},
		{Kind: KindError, Error: "model unavailable"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamConsumerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Phase("context", "blocked until cancel")
		s.Complete(&model.AnalysisResult{ID: "never"})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer stayed blocked after consumer cancelled")
	}

	if got := collect(s); len(got) != 0 {
		t.Errorf("got %d events after cancellation, want 0", len(got))
	}
}

func TestStreamCancelledBeforeSendDeliversNothing(t *testing.T) {
	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := New(ctx, DefaultBuffer)

		s.Phase("understanding", "room in the buffer")
		s.Complete(&model.AnalysisResult{ID: "late"})

		if !s.Closed() {
			t.Fatalf("iteration %d: stream not closed after cancellation", i)
		}
		if got := collect(s); len(got) != 0 {
			t.Fatalf("iteration %d: got %d events on a cancelled stream, want 0", i, len(got))
		}
	}
}
