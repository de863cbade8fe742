package calibration

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Runner is a single calibration entry point.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Scheduler triggers calibration runs on a fixed interval.
type Scheduler struct {
	runner Runner
	log    *slog.Logger
	tick   time.Duration
}

// NewScheduler creates a Scheduler that runs every interval.
func NewScheduler(runner Runner, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, log: log, tick: interval}
}

// Run blocks until ctx is cancelled. The first run happens one interval
// after start, so restarts do not trigger extra runs. A zero interval
// disables the loop.
func (s *Scheduler) Run(ctx context.Context) {
	if s.tick <= 0 {
		s.log.Info("rule calibration schedule disabled")
		return
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Warn("skipping scheduled calibration", "error", err)
			return
		}
		s.log.Error("scheduled calibration", "error", err)
	}
}
