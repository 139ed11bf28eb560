package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/tendant/once/pkg/once"
)

// DefaultSchedule runs a sweep once a day
const DefaultSchedule = "@every 24h"

// Sweeper is the operation the scheduler runs
type Sweeper interface {
	Sweep(ctx context.Context) (*once.SweepResult, error)
}

// Observer receives the duration of each finished sweep
type Observer interface {
	ObserveSweep(d time.Duration)
}

// Scheduler runs sweeps on a cron schedule. Runs never overlap.
type Scheduler struct {
	sweeper  Sweeper
	schedule cron.Schedule
	spec     string
	logger   *slog.Logger
	observer Observer

	mu sync.Mutex
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithObserver records sweep durations
func WithObserver(observer Observer) Option {
	return func(s *Scheduler) {
		s.observer = observer
	}
}

// New creates a Scheduler. spec accepts standard five-field cron
// expressions and descriptors such as "@daily" or "@every 1h".
func New(sweeper Sweeper, spec string, opts ...Option) (*Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		spec:     spec,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce performs a single sweep and logs its outcome
func (s *Scheduler) RunOnce(ctx context.Context) (*once.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	start := time.Now()

	logger.Info("sweep started")
	result, err := s.sweeper.Sweep(ctx)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveSweep(elapsed)
	}
	if err != nil {
		logger.Error("sweep failed", "error", err, "duration", elapsed)
		return result, err
	}

	logger.Info("sweep finished",
		"scanned", result.Scanned,
		"deleted", result.Deleted,
		"failed", result.Failed,
		"duration", elapsed,
	)
	return result, nil
}

// Run schedules sweeps until ctx is cancelled, then waits for a running
// sweep to return.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		_, _ = s.RunOnce(ctx)
	}))

	s.logger.Info("sweeper scheduled", "schedule", s.spec)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}
