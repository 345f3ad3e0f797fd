// Package scheduler runs periodic ledger maintenance on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is the ledger operation the scheduler drives.
type Sweeper interface {
	SweepOverdue() (int, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger
}

// zapPrintf adapts zap to cron's Printf-style logger.
type zapPrintf struct {
	logger *zap.SugaredLogger
}

func (z zapPrintf) Printf(format string, args ...interface{}) {
	z.logger.Infof(format, args...)
}

// New creates a scheduler. Panicking jobs are recovered and logged.
func New(sweeper Sweeper, logger *zap.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(zapPrintf{logger: logger.Sugar()})
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger))),
		sweeper: sweeper,
		logger:  logger,
	}
}

// Start registers the overdue sweep on schedule and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.runOverdueSweep); err != nil {
		return fmt.Errorf("failed to schedule overdue sweep %q: %w", schedule, err)
	}
	s.logger.Info("scheduled overdue sweep", zap.String("op", "scheduler"), zap.String("schedule", schedule))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Shutdown stops the scheduler and waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	select {
	case <-s.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("overdue sweep still running: %w", ctx.Err())
	}
}

func (s *Scheduler) runOverdueSweep() {
	s.logger.Info("running overdue sweep", zap.String("op", "scheduler"))
	marked, err := s.sweeper.SweepOverdue()
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.String("op", "scheduler"), zap.Error(err))
		return
	}
	s.logger.Info("overdue sweep finished", zap.String("op", "scheduler"), zap.Int("marked", marked))
}
