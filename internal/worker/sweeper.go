// Package worker runs background jobs on a cron schedule.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// sweepBatch bounds how many cascade jobs one sweep picks up.
const sweepBatch = 20

// CascadeRunner resumes unfinished cascade deletes.
type CascadeRunner interface {
	RunPending(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically finishes cascade deletes that failed part way.
type Sweeper struct {
	cron   *cron.Cron
	runner CascadeRunner
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper schedules a sweep at every tick of schedule, a standard
// five-field cron spec or a descriptor such as "@every 1m". A sweep that
// is still running when the next tick fires makes that tick a no-op.
func NewSweeper(schedule string, runner CascadeRunner, logger *zap.Logger) (*Sweeper, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		runner: runner,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule cascade sweep %q: %w", schedule, err)
	}
	return s, nil
}

// Sweep runs one pass and returns how many jobs finished.
func (s *Sweeper) Sweep(ctx context.Context) int {
	done, err := s.runner.RunPending(ctx, sweepBatch)
	if err != nil {
		s.logger.Warn("cascade sweep left jobs unfinished", zap.Int("finished", done), zap.Error(err))
		return done
	}
	if done > 0 {
		s.logger.Info("cascade sweep finished jobs", zap.Int("finished", done))
	}
	return done
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// an in-flight sweep to return.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("cascade sweeper started")
	s.cron.Start()

	<-ctx.Done()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("cascade sweeper stopped")
	return nil
}
