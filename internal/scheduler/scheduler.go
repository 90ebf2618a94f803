package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/applyhook/internal/model"
)

// Job is a named unit of periodic work.
type Job struct {
	Name      string
	Interval  time.Duration
	Immediate bool // run once at startup before the first interval elapses
	Run       func(ctx context.Context) error
}

// Scheduler runs each job in its own loop. A job never overlaps itself: the
// next interval starts counting when the previous run returns.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

// NewScheduler creates a scheduler for the given jobs.
func NewScheduler(jobs []Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		logger: logger,
	}
}

// Run starts every job loop and blocks until ctx is cancelled and all loops
// have exited. It returns nil on graceful shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		s.logger.Info("starting job",
			"job", job.Name,
			"interval", job.Interval.String(),
			"immediate", job.Immediate,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	s.logger.Info("shutting down scheduler")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	if job.Immediate {
		s.runOnce(ctx, job)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(job.Interval):
			s.runOnce(ctx, job)
		}
	}
}

// runOnce runs the job and logs its outcome. Panics are recovered so one bad
// run does not stop the daemon.
func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", job.Name, "panic", r)
		}
	}()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := job.Run(ctx)
	switch {
	case err == nil:
		s.logger.Debug("job finished", "job", job.Name, "duration", time.Since(start))
	case errors.Is(err, model.ErrNotAuthenticated):
		s.logger.Info("skipping run, login required", "job", job.Name)
	case ctx.Err() != nil:
		// Shutdown in progress.
	default:
		s.logger.Error("job failed", "job", job.Name, "error", err)
	}
}

// PollJob wraps a poll pass as a Job that runs immediately at startup.
func PollJob(interval time.Duration, poll func(ctx context.Context) ([]model.Application, error)) Job {
	return Job{
		Name:      "poll",
		Interval:  interval,
		Immediate: true,
		Run: func(ctx context.Context) error {
			_, err := poll(ctx)
			return err
		},
	}
}

// CleanupJob trims the applies cache on its own interval. It does not run at
// startup.
func CleanupJob(interval time.Duration, cache model.ApplyCache, maxSize, keepSize int, logger *slog.Logger) Job {
	return Job{
		Name:     "cache_cleanup",
		Interval: interval,
		Run: func(ctx context.Context) error {
			trimmed, err := cache.Cleanup(ctx, maxSize, keepSize)
			if err != nil {
				return err
			}
			logger.Info("cache cleanup completed", "trimmed", trimmed, "max_size", maxSize, "keep_size", keepSize)
			return nil
		},
	}
}
