package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherPublish(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{writer: w, now: func() time.Time { return at }}

	payload := map[string]any{"analysis_id": "a-1", "overall_score": 68.5}
	if err := p.Publish(context.Background(), TopicAnalysisCompleted, "u-1", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != TopicAnalysisCompleted || string(msg.Key) != "u-1" {
		t.Errorf("topic=%q key=%q", msg.Topic, msg.Key)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	want := Envelope{Type: TopicAnalysisCompleted, OccurredAt: at, Data: json.RawMessage(`{"analysis_id":"a-1","overall_score":68.5}`)}
	if diff := cmp.Diff(want, env, cmpopts.IgnoreFields(Envelope{}, "ID")); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
	if env.ID == "" {
		t.Error("envelope ID should be set")
	}
}

func TestKafkaPublisherWriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, now: time.Now}
	err := p.Publish(context.Background(), TopicRulesRecalibrated, "", struct{}{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
