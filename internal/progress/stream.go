// Package progress streams ordered analysis events from one producer to one consumer.
package progress

import (
	"context"
	"sync"

	"viralscope/internal/model"
)

// Kind is the type of a stream event.
type Kind string

// Event kinds. Complete and Error are terminal.
const (
	KindPhase    Kind = "phase"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// DefaultBuffer is the channel capacity used by the HTTP handler.
const DefaultBuffer = 8

// Event is one message on the stream.
type Event struct {
	Kind    Kind                  `json:"-"`
	Phase   string                `json:"phase,omitempty"`
	Message string                `json:"message,omitempty"`
	Result  *model.AnalysisResult `json:"-"`
	Error   string                `json:"error,omitempty"`
}

// Emitter receives phase updates while work is running.
type Emitter interface {
	Phase(phase, message string)
}

// Stream is a bounded, ordered event channel. It is closed exactly once:
// after a terminal event, or when the consumer's context is done.
type Stream struct {
	ctx context.Context
	ch  chan Event

	mu     sync.Mutex
	closed bool
}

// New creates a Stream that stops delivering once ctx is done.
func New(ctx context.Context, buffer int) *Stream {
	return &Stream{ctx: ctx, ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Phase sends a phase event. It is a no-op once the stream is closed.
func (s *Stream) Phase(phase, message string) {
	s.send(Event{Kind: KindPhase, Phase: phase, Message: message}, false)
}

// Complete sends the final result and closes the stream.
func (s *Stream) Complete(result *model.AnalysisResult) {
	s.send(Event{Kind: KindComplete, Result: result}, true)
}

// Fail sends an error event and closes the stream.
func (s *Stream) Fail(err error) {
	s.send(Event{Kind: KindError, Error: err.Error()}, true)
}

// Closed reports whether no further events will be delivered.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) send(ev Event, terminal bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.ctx.Err() != nil {
		s.closeLocked()
		return false
	}

	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
		s.closeLocked()
		return false
	}
	if terminal {
		s.closeLocked()
	}
	return true
}

func (s *Stream) closeLocked() {
	s.closed = true
	close(s.ch)
}
