package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightcart/commerce-core/internal/db"
)

// Task kinds processed by the poller.
const (
	KindPaymentProcess = "payment.process"
	KindPaymentRetry   = "payment.retry"
)

const defaultMaxAttempts = 3

type Task struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Queue is the durable side of the work queue. Enqueue participates in the
// caller's transaction when q is non-nil, so a task becomes visible exactly
// when the enclosing business transaction commits.
type Queue interface {
	Enqueue(ctx context.Context, q db.Querier, kind string, payload any, runAt time.Time) error
	// EnqueueUnique inserts only when no pending or running task with the
	// same kind and payload exists, and reports whether a row was inserted.
	// Periodic producers use it so re-running a pass cannot pile up
	// duplicates of work that is still in flight.
	EnqueueUnique(ctx context.Context, q db.Querier, kind string, payload any, runAt time.Time) (bool, error)
}

type postgresQueue struct {
	pool *pgxpool.Pool
}

func NewQueue(pool *pgxpool.Pool) Queue {
	return &postgresQueue{pool: pool}
}

func (pq *postgresQueue) Enqueue(ctx context.Context, q db.Querier, kind string, payload any, runAt time.Time) error {
	if q == nil {
		q = pq.pool
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("taskqueue: failed to marshal payload for %s: %w", kind, err)
	}

	query := `
		INSERT INTO tasks (kind, payload, run_at, attempts, max_attempts, status)
		VALUES ($1, $2, $3, 0, $4, 'pending')
	`
	if _, err := q.Exec(ctx, query, kind, data, runAt, defaultMaxAttempts); err != nil {
		return fmt.Errorf("taskqueue: failed to enqueue %s: %w", kind, err)
	}

	return nil
}

func (pq *postgresQueue) EnqueueUnique(ctx context.Context, q db.Querier, kind string, payload any, runAt time.Time) (bool, error) {
	if q == nil {
		q = pq.pool
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("taskqueue: failed to marshal payload for %s: %w", kind, err)
	}

	query := `
		INSERT INTO tasks (kind, payload, run_at, attempts, max_attempts, status)
		SELECT $1, $2, $3, 0, $4, 'pending'
		WHERE NOT EXISTS (
			SELECT 1 FROM tasks
			WHERE kind = $1 AND payload = $2 AND status IN ('pending', 'running')
		)
	`
	tag, err := q.Exec(ctx, query, kind, data, runAt, defaultMaxAttempts)
	if err != nil {
		return false, fmt.Errorf("taskqueue: failed to enqueue %s: %w", kind, err)
	}

	return tag.RowsAffected() == 1, nil
}
