package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Scheduler runs a job on a standard five-field cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewScheduler schedules job at spec. Each invocation gets a context bounded
// by timeout (unbounded when zero). Runs that would overlap are skipped. Run
// durations are measured on clock.
func NewScheduler(spec string, timeout time.Duration, job func(ctx context.Context) error, clock clockwork.Clock, logger *slog.Logger) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:    spec,
		timeout: timeout,
		clock:   clock,
		logger:  logger,
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		start := s.clock.Now()
		s.logger.Info("scheduled run started", "schedule", s.spec)
		if err := job(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				s.logger.Warn("scheduled run skipped", "reason", err)
				return
			}
			s.logger.Error("scheduled run failed", "error", err, "duration", s.clock.Since(start))
			return
		}
		s.logger.Info("scheduled run finished", "duration", s.clock.Since(start))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("forecast scheduled", "schedule", s.spec, "next", e.Next)
	}
}

// Stop halts the schedule and waits for a running job to finish or for ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduled run still active at shutdown")
	}
}
