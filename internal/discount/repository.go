package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightcart/commerce-core/internal/db"
)

var ErrCodeNotFound = errors.New("discount code not found")

type Repository interface {
	GetByCode(ctx context.Context, q db.Querier, code string) (*Code, error)
	// Consume atomically increments the code's usage count, guarded by the
	// usage limit. Returns false when the cap is already reached.
	Consume(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error)
	// RecordUse bumps the per-user usage ledger for the code.
	RecordUse(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) error
	UsesByUser(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) (int, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) GetByCode(ctx context.Context, q db.Querier, code string) (*Code, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		SELECT id, code, type, value, minimum_order_amount, maximum_discount_amount,
		       usage_limit, usage_limit_per_user, usage_count, valid_from, valid_until,
		       is_active, created_at, updated_at
		FROM discount_codes
		WHERE code = $1
	`

	var c Code
	err := q.QueryRow(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.Value,
		&c.MinimumOrderAmount,
		&c.MaximumDiscountAmount,
		&c.UsageLimit,
		&c.UsageLimitPerUser,
		&c.UsageCount,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("repository: failed to select discount code %q: %w", code, err)
	}

	return &c, nil
}

func (r *postgresRepository) Consume(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error) {
	if q == nil {
		q = r.pool
	}
	// The WHERE clause re-checks the cap so two concurrent consumers can
	// never push usage_count past usage_limit.
	query := `
		UPDATE discount_codes
		SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1
		  AND is_active
		  AND (usage_limit IS NULL OR usage_count < usage_limit)
	`

	cmdTag, err := q.Exec(ctx, query, codeID)
	if err != nil {
		return false, fmt.Errorf("repository: failed to consume discount code %s: %w", codeID, err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

func (r *postgresRepository) RecordUse(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) error {
	if q == nil {
		q = r.pool
	}
	query := `
		INSERT INTO discount_usages (code_id, user_id, used_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (code_id, user_id) DO UPDATE SET used_count = discount_usages.used_count + 1
	`

	if _, err := q.Exec(ctx, query, codeID, userID); err != nil {
		return fmt.Errorf("repository: failed to record discount use for code %s: %w", codeID, err)
	}

	return nil
}

func (r *postgresRepository) UsesByUser(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) (int, error) {
	if q == nil {
		q = r.pool
	}
	query := `
		SELECT COALESCE(
			(SELECT used_count FROM discount_usages WHERE code_id = $1 AND user_id = $2), 0)
	`

	var used int
	if err := q.QueryRow(ctx, query, codeID, userID).Scan(&used); err != nil {
		return 0, fmt.Errorf("repository: failed to count discount uses for code %s: %w", codeID, err)
	}

	return used, nil
}
