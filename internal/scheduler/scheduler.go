// Package scheduler triggers the daily batch on a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guttosm/stockpulse/internal/logger"
)

// Job is the work run on every tick.
type Job func(ctx context.Context) error

// Scheduler runs one Job on a six-field (seconds first) cron expression.
// Overlapping ticks are skipped while the previous run is still going.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	ctx     context.Context
	timeout time.Duration
	job     Job
}

// New registers job under spec. ctx is the parent of every run; timeout bounds a
// single run (0 = unbounded).
func New(ctx context.Context, spec string, loc *time.Location, timeout time.Duration, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:     ctx,
		timeout: timeout,
		job:     job,
	}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("register daily batch %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.L().Info().Time("next_run", s.Next()).Msg("scheduler started")
}

// Stop stops scheduling and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		logger.L().Warn().Msg("scheduler stop timed out with a job still running")
	}
	logger.L().Info().Msg("scheduler stopped")
}

// Next returns the next activation time, zero if the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunNow executes the job immediately on the caller's goroutine.
func (s *Scheduler) RunNow() error {
	return s.run()
}

func (s *Scheduler) tick() {
	_ = s.run()
}

func (s *Scheduler) run() error {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	logger.L().Info().Msg("scheduled batch start")
	if err := s.job(ctx); err != nil {
		logger.L().Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scheduled batch finished with errors")
		return err
	}
	logger.L().Info().Dur("elapsed", time.Since(start)).Msg("scheduled batch finished")
	return nil
}

// cronLogger adapts cron's logr-style interface to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.L().Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.L().Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
