// Package scheduler runs the sync pipeline on a cron schedule. It wraps
// gocron with a single job in singleton mode: if a run is still executing
// when the next tick fires, the tick is skipped instead of piling up. The
// pipeline enforces the same exclusivity itself, so a run triggered over
// HTTP mid-tick simply makes the tick a no-op.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/pipeline"
)

// runTimeout bounds a single scheduled run. A full sync against a large
// directory makes thousands of serial API calls; anything beyond this is a
// hung run, not a slow one.
const runTimeout = 2 * time.Hour

// Scheduler wraps gocron and triggers pipeline runs.
// The zero value is not usable — create instances with New.
type Scheduler struct {
	cron     gocron.Scheduler
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// New creates a scheduler that runs the pipeline on the given cron
// expression. Call Start to begin processing.
func New(schedule string, p *pipeline.Pipeline, logger *zap.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	s := &Scheduler{
		cron:     cron,
		pipeline: p,
		logger:   logger.Named("scheduler"),
	}

	_, err = cron.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(s.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sync run %q: %w", schedule, err)
	}

	return s, nil
}

// Start begins processing ticks. It returns immediately; runs execute on
// gocron's worker goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop gracefully shuts down the underlying gocron scheduler, waiting for a
// currently running job function to complete before returning.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown error: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	res, err := s.pipeline.Run(ctx, false)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Info("tick skipped, run already in progress")
	case err != nil:
		s.logger.Error("scheduled run failed", zap.Error(err))
	default:
		s.logger.Info("scheduled run finished",
			zap.String("run_id", res.RunID),
			zap.Int("sync_errors", res.Sync.Errors),
		)
	}
}
