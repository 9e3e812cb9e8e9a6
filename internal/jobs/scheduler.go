// Package jobs triggers scheduled scrape runs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a cron expression. Seconds are optional and
// descriptors such as @daily are accepted.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cronParser.Parse(spec)
}

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// Scheduler runs a task on a cron schedule. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	sched  *cron.Cron
	spec   string
	task   Task
	logger *slog.Logger
}

func New(spec, timezone string, task Task, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}

	logger = logger.With("component", "scheduler")
	s := &Scheduler{
		sched: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		spec:   spec,
		task:   task,
		logger: logger,
	}
	return s, nil
}

// Run schedules the task and blocks until ctx is done. It waits for a run in
// progress to return before it does.
func (s *Scheduler) Run(ctx context.Context) error {
	id, err := s.sched.AddFunc(s.spec, func() { s.runTask(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule %q: %w", s.spec, err)
	}

	s.sched.Start()
	s.logger.Info("scheduler started", "schedule", s.spec, "next_run", s.sched.Entry(id).Next)

	<-ctx.Done()
	<-s.sched.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runTask(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked", "panic", r)
		}
	}()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.logger.Info("scheduled run started")
	if err := s.task(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled run finished", "duration", time.Since(start))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
