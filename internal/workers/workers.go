package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"glucolog/internal/engine/ratelimit"
)

type Job func(ctx context.Context) error

// Scheduler runs housekeeping jobs on cron schedules. A job never overlaps itself.
type Scheduler struct {
	c       *cron.Cron
	timeout time.Duration
}

func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		c:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
	}
}

func (s *Scheduler) Add(schedule, name string, job Job) error {
	_, err := s.c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, schedule, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop prevents new runs and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

// SweepWindows drops in-process rate limit windows that reset more than grace ago.
func SweepWindows(counter *ratelimit.MemoryCounter, grace time.Duration) Job {
	return func(ctx context.Context) error {
		removed := counter.Sweep(grace)
		log.Info().Int("removed", removed).Int("live", counter.Len()).Msg("swept rate limit windows")
		return nil
	}
}

type UsagePruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneUsage deletes usage records older than the retention horizon.
func PruneUsage(repo UsagePruner, retentionDays int, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		cutoff := now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
		n, err := repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune usage records: %w", err)
		}
		log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned usage records")
		return nil
	}
}
