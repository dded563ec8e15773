package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"oddscollector/ingestion/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is a named recurring task
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job that is still running when
// its next tick or a RunNow arrives is skipped rather than stacked.
type Scheduler struct {
	cron *cron.Cron
	jobs []Job
	// running holds one lock per job name, shared by ticks and RunNow
	running map[string]*sync.Mutex
}

// NewScheduler creates a new scheduler instance
func NewScheduler(jobs ...Job) *Scheduler {
	logger := cronLogger{log.Logger}
	running := make(map[string]*sync.Mutex, len(jobs))
	for _, job := range jobs {
		running[job.Name] = &sync.Mutex{}
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		jobs:    jobs,
		running: running,
	}
}

// Start registers every job and starts the scheduler.
// ctx is handed to each job run; cancelling it asks running jobs to stop.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	for _, job := range s.jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(ctx, job) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		log.Info().
			Str("job", job.Name).
			Str("schedule", job.Schedule).
			Msg("Job scheduled")
	}

	s.cron.Start()
	return nil
}

// RunNow runs the named job immediately in the calling goroutine.
// It returns nil without running if the job is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.run(ctx, job)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

// Stop stops the scheduler and waits for running jobs to return
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if ctx.Err() != nil {
		return nil
	}

	lock := s.running[job.Name]
	if !lock.TryLock() {
		log.Warn().Str("job", job.Name).Msg("Job still running, skipping")
		return nil
	}
	defer lock.Unlock()

	start := time.Now()
	log.Info().Str("job", job.Name).Msg("Running scheduled job")

	err := job.Run(ctx)
	if err != nil {
		metrics.RecordError("scheduler", job.Name)
		log.Error().Err(err).Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Scheduled job failed")
		return err
	}

	log.Info().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Scheduled job complete")
	return nil
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
