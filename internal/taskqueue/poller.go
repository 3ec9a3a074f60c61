package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/pkg/metrics"
)

// Handler processes one task payload. A returned error reschedules the task
// with exponential backoff until max_attempts is exhausted.
type Handler func(ctx context.Context, payload json.RawMessage) error

// A task left in 'running' longer than this is treated as abandoned by a
// dead worker and becomes claimable again. Must comfortably exceed the
// longest handler run.
const claimTimeout = 10 * time.Minute

// Poller claims due tasks with FOR UPDATE SKIP LOCKED so multiple poller
// instances never double-process a task. Tasks stuck in 'running' past
// claimTimeout are reclaimed, so a worker dying mid-task never strands its
// batch.
type Poller struct {
	pool      *pgxpool.Pool
	interval  time.Duration
	batchSize int
	handlers  map[string]Handler
}

func NewPoller(pool *pgxpool.Pool, interval time.Duration, batchSize int) *Poller {
	return &Poller{
		pool:      pool,
		interval:  interval,
		batchSize: batchSize,
		handlers:  make(map[string]Handler),
	}
}

func (p *Poller) Register(kind string, h Handler) {
	p.handlers[kind] = h
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.interval).Msg("taskqueue: poller started")
	for {
		select {
		case <-ticker.C:
			p.processBatch(ctx)
		case <-ctx.Done():
			log.Info().Msg("taskqueue: poller stopped")
			return
		}
	}
}

func (p *Poller) processBatch(ctx context.Context) {
	tasks, err := p.claim(ctx)
	if err != nil {
		log.Error().Err(err).Msg("taskqueue: failed to claim tasks")
		return
	}

	for i := range tasks {
		p.process(ctx, &tasks[i])
	}
}

func (p *Poller) claim(ctx context.Context) ([]Task, error) {
	query := `
		UPDATE tasks
		SET status = 'running', updated_at = now()
		WHERE id IN (
			SELECT id FROM tasks
			WHERE (status = 'pending' AND run_at <= now())
			   OR (status = 'running' AND updated_at < $2)
			ORDER BY run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, run_at, attempts, max_attempts, status, created_at, updated_at
	`

	rows, err := p.pool.Query(ctx, query, p.batchSize, time.Now().UTC().Add(-claimTimeout))
	if err != nil {
		return nil, fmt.Errorf("taskqueue: failed to claim due tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		var t Task
		err := rows.Scan(&t.ID, &t.Kind, &t.Payload, &t.RunAt, &t.Attempts, &t.MaxAttempts, &t.Status, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("taskqueue: failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func (p *Poller) process(ctx context.Context, t *Task) {
	h, ok := p.handlers[t.Kind]
	if !ok {
		log.Error().Int64("task_id", t.ID).Str("kind", t.Kind).Msg("taskqueue: no handler registered, marking failed")
		p.finish(ctx, t.ID, "failed", t.Attempts)
		return
	}

	if err := h(ctx, t.Payload); err != nil {
		attempts := t.Attempts + 1
		if attempts >= t.MaxAttempts {
			log.Error().Err(err).Int64("task_id", t.ID).Str("kind", t.Kind).Int("attempts", attempts).Msg("taskqueue: task exhausted retries")
			metrics.TasksProcessed.WithLabelValues(t.Kind, "failed").Inc()
			p.finish(ctx, t.ID, "failed", attempts)
			return
		}

		delay := backoff(attempts)
		log.Warn().Err(err).Int64("task_id", t.ID).Str("kind", t.Kind).Dur("retry_in", delay).Msg("taskqueue: task failed, rescheduling")
		metrics.TasksProcessed.WithLabelValues(t.Kind, "retried").Inc()
		p.reschedule(ctx, t.ID, attempts, delay)
		return
	}

	metrics.TasksProcessed.WithLabelValues(t.Kind, "done").Inc()
	p.finish(ctx, t.ID, "done", t.Attempts)
}

// backoff doubles per attempt: 1m, 2m, 4m, ...
func backoff(attempts int) time.Duration {
	return time.Minute << (attempts - 1)
}

func (p *Poller) finish(ctx context.Context, id int64, status string, attempts int) {
	_, err := p.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, attempts = $3, updated_at = now() WHERE id = $1`,
		id, status, attempts)
	if err != nil {
		log.Error().Err(err).Int64("task_id", id).Msg("taskqueue: failed to finish task")
	}
}

func (p *Poller) reschedule(ctx context.Context, id int64, attempts int, delay time.Duration) {
	_, err := p.pool.Exec(ctx,
		`UPDATE tasks SET status = 'pending', attempts = $2, run_at = $3, updated_at = now() WHERE id = $1`,
		id, attempts, time.Now().UTC().Add(delay))
	if err != nil {
		log.Error().Err(err).Int64("task_id", id).Msg("taskqueue: failed to reschedule task")
	}
}
