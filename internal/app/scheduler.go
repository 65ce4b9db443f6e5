/**
 * @description
 * Cron scheduler for the periodic full resync of the live collections. Change
 * notifications cover normal operation; the resync repairs anything a lost message or a
 * failed post-commit push left behind.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Resyncer reloads every live collection.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	feed     Resyncer
	schedule string
	timeout  time.Duration
	metrics  *Metrics
	logger   *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(feed Resyncer, schedule string, metrics *Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:     c,
		feed:     feed,
		schedule: schedule,
		timeout:  time.Minute,
		metrics:  metrics,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start registers the resync job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.Resync); err != nil {
		s.logger.Error("failed to schedule resync job", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled resync job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Resync runs one full reload.
func (s *Scheduler) Resync() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	err := s.feed.Resync(ctx)
	s.metrics.observeResync("schedule", err)
	if err != nil {
		s.logger.Error("scheduled resync failed", "error", err)
		return
	}
	s.logger.Debug("scheduled resync complete", "duration_ms", time.Since(started).Milliseconds())
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
