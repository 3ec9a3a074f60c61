package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// purgeablePaymentStatuses are the only payment states the guest cascade is
// allowed to delete. Both queries share it: a guest owning any order outside
// these states is never listed for expiry, so the cascade never hits an
// order it must keep.
var purgeablePaymentStatuses = []string{"pending", "failed"}

// Repository manages the ephemeral (guest) side of owning identities. Guest
// accounts expire after a retention window unless they own an order whose
// payment progressed past pending/failed, in which case they are kept for
// order-history integrity.
type Repository interface {
	// ListExpiredGuests returns guest user ids created before the cutoff
	// whose every order (if any) is in a purgeable payment state.
	ListExpiredGuests(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	// DeleteGuestCascade removes the guest, their carts and cart items, and
	// their purgeable orders.
	DeleteGuestCascade(ctx context.Context, userID uuid.UUID) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) ListExpiredGuests(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT u.id
		FROM users u
		WHERE u.is_guest
		  AND u.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM orders o
			WHERE o.user_id = u.id AND o.payment_status <> ALL($2)
		  )
	`

	rows, err := r.pool.Query(ctx, query, cutoff, purgeablePaymentStatuses)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query expired guests: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: failed to scan expired guest id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *postgresRepository) DeleteGuestCascade(ctx context.Context, userID uuid.UUID) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin guest delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("user_id", userID).Msg("repository: failed to rollback guest delete")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit guest delete: %w", commitErr)
		}
	}()

	steps := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, []any{userID}},
		{`DELETE FROM carts WHERE user_id = $1`, []any{userID}},
		{`DELETE FROM order_items WHERE order_id IN
			(SELECT id FROM orders WHERE user_id = $1 AND payment_status = ANY($2))`, []any{userID, purgeablePaymentStatuses}},
		{`DELETE FROM orders WHERE user_id = $1 AND payment_status = ANY($2)`, []any{userID, purgeablePaymentStatuses}},
		{`DELETE FROM users WHERE id = $1 AND is_guest`, []any{userID}},
	}
	for _, s := range steps {
		if _, err = tx.Exec(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("repository: failed to cascade-delete guest %s: %w", userID, err)
		}
	}

	return nil
}
