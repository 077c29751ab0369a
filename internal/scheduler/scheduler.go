package scheduler

import (
	"context"
	"errors"
	"fmt"
	"listing-tracker/internal/config"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs reconciliation cycles and cleanups on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	runner    *Runner
	config    config.ScheduleConfig
	logger    *slog.Logger
	isRunning bool
}

// NewScheduler creates a new scheduler
func NewScheduler(runner *Runner, cfg config.ScheduleConfig, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "scheduler")
	cronLogger := slogCronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner: runner,
		config: cfg,
		logger: logger,
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info("scheduled runs are disabled in configuration")
		return nil
	}

	refreshSpec := s.config.RefreshCron
	if refreshSpec == "" {
		refreshSpec = s.parseDailyRunTime(s.config.DailyRunTime)
	}

	if _, err := s.cron.AddFunc(refreshSpec, s.runRefresh); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", refreshSpec, err)
	}

	if s.config.CleanupCron != "" {
		if _, err := s.cron.AddFunc(s.config.CleanupCron, s.runCleanup); err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.config.CleanupCron, err)
		}
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("scheduler started", "refresh", refreshSpec, "cleanup", s.config.CleanupCron)

	return nil
}

// Stop stops the scheduler and returns a context that is done once running
// jobs have finished
func (s *Scheduler) Stop() context.Context {
	if !s.isRunning {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.isRunning = false
	s.logger.Info("scheduler stopping")
	return s.cron.Stop()
}

// RunNow immediately executes a cycle (for manual trigger)
func (s *Scheduler) RunNow(ctx context.Context) (*CycleReport, error) {
	s.logger.Info("manual trigger, starting cycle")
	return s.runner.RunCycle(ctx)
}

func (s *Scheduler) runRefresh() {
	_, err := s.runner.RunCycle(context.Background())
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Info("skipping scheduled cycle, another one is running")
	case err != nil:
		s.logger.Error("scheduled cycle failed", "error", err)
	}
}

func (s *Scheduler) runCleanup() {
	result, err := s.runner.Cleanup(false)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Info("skipping scheduled cleanup, a cycle is running")
	case err != nil:
		s.logger.Error("scheduled cleanup failed", "error", err)
	default:
		s.logger.Info("scheduled cleanup finished", "deleted", result.DeletedCount)
	}
}

// parseDailyRunTime converts HH:MM format to a cron expression
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	// Default to 2:00 AM if parsing fails
	s.logger.Warn("failed to parse daily run time, using default 02:00", "value", timeStr)
	return "0 2 * * *"
}

// slogCronLogger adapts slog to cron.Logger
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
