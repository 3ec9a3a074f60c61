package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/pkg/metrics"
)

// JobFunc performs one sweep pass and reports how many rows it touched.
type JobFunc func(ctx context.Context) (int64, error)

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// Scheduler runs each registered job on its own ticker. Jobs are isolated:
// a panic or error in one never stops the others.
type Scheduler struct {
	jobs []job
}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Add(name string, interval time.Duration, run JobFunc) {
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: run})
}

// Run blocks until ctx is cancelled and every job goroutine has drained.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	log.Info().Msg("scheduler: stopped")
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	log.Info().Str("job", j.name).Dur("interval", j.interval).Msg("scheduler: job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.execute(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("job", j.name).Interface("panic", rec).Msg("scheduler: job panicked")
			metrics.SweepRuns.WithLabelValues(j.name, "panic").Inc()
		}
	}()

	start := time.Now()
	affected, err := j.run(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", j.name).Msg("scheduler: job failed")
		metrics.SweepRuns.WithLabelValues(j.name, "error").Inc()
		return
	}

	metrics.SweepRuns.WithLabelValues(j.name, "ok").Inc()
	metrics.SweepAffected.WithLabelValues(j.name).Add(float64(affected))

	log.Info().
		Str("job", j.name).
		Int64("affected", affected).
		Dur("took", time.Since(start)).
		Msg("scheduler: job finished")
}
