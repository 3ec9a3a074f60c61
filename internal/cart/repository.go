package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brightcart/commerce-core/internal/db"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("cart item not found")
)

type Repository interface {
	GetByUserID(ctx context.Context, q db.Querier, userID uuid.UUID) (*Cart, error)
	// LockAndGet fetches the user's cart under FOR UPDATE so concurrent
	// checkouts for the same owner serialize on the cart row. Must run
	// inside a transaction.
	LockAndGet(ctx context.Context, q db.Querier, userID uuid.UUID) (*Cart, error)
	Create(ctx context.Context, q db.Querier, userID uuid.UUID) (*Cart, error)
	UpsertItem(ctx context.Context, q db.Querier, item *Item) error
	UpdateItemQuantity(ctx context.Context, q db.Querier, itemID uuid.UUID, quantity int, unitPrice, totalPrice decimal.Decimal) error
	RemoveItem(ctx context.Context, q db.Querier, cartID, itemID uuid.UUID) error
	Clear(ctx context.Context, q db.Querier, cartID uuid.UUID) error
	Touch(ctx context.Context, q db.Querier, cartID uuid.UUID) error
	// DeleteAbandonedBefore removes carts (and their items) not updated
	// since the cutoff. Returns the number of carts removed.
	DeleteAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) GetByUserID(ctx context.Context, q db.Querier, userID uuid.UUID) (*Cart, error) {
	return r.get(ctx, q, userID, false)
}

func (r *postgresRepository) LockAndGet(ctx context.Context, q db.Querier, userID uuid.UUID) (*Cart, error) {
	return r.get(ctx, q, userID, true)
}

func (r *postgresRepository) get(ctx context.Context, q db.Querier, userID uuid.UUID, forUpdate bool) (*Cart, error) {
	if q == nil {
		q = r.pool
	}

	query := `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var c Cart
	err := q.QueryRow(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart for user %s: %w", userID, err)
	}

	itemsQuery := `
		SELECT id, cart_id, product_id, quantity, unit_price, total_price, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at
	`

	rows, err := q.Query(ctx, itemsQuery, c.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items for cart %s: %w", c.ID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for cart %s: %w", c.ID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items for cart %s: %w", c.ID, err)
	}

	c.Items = items
	return &c, nil
}

func (r *postgresRepository) Create(ctx context.Context, q db.Querier, userID uuid.UUID) (*Cart, error) {
	if q == nil {
		q = r.pool
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart ID: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, $3, $3)`
	if _, err := q.Exec(ctx, query, id, userID, now); err != nil {
		return nil, fmt.Errorf("repository: failed to insert cart for user %s: %w", userID, err)
	}

	return &Cart{ID: id, UserID: userID, Items: []Item{}, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *postgresRepository) UpsertItem(ctx context.Context, q db.Querier, item *Item) error {
	if q == nil {
		q = r.pool
	}

	if item.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate cart item ID: %w", err)
		}
		item.ID = id
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, unit_price, total_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    unit_price = EXCLUDED.unit_price,
		    total_price = EXCLUDED.total_price,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := q.Exec(ctx, query,
		item.ID,
		item.CartID,
		item.ProductID,
		item.Quantity,
		item.UnitPrice,
		item.TotalPrice,
		now,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert cart item for cart %s: %w", item.CartID, err)
	}

	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (r *postgresRepository) UpdateItemQuantity(ctx context.Context, q db.Querier, itemID uuid.UUID, quantity int, unitPrice, totalPrice decimal.Decimal) error {
	if q == nil {
		q = r.pool
	}

	query := `
		UPDATE cart_items
		SET quantity = $2, unit_price = $3, total_price = $4, updated_at = now()
		WHERE id = $1
	`
	cmdTag, err := q.Exec(ctx, query, itemID, quantity, unitPrice, totalPrice)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart item %s: %w", itemID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *postgresRepository) RemoveItem(ctx context.Context, q db.Querier, cartID, itemID uuid.UUID) error {
	if q == nil {
		q = r.pool
	}

	cmdTag, err := q.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart item %s: %w", itemID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *postgresRepository) Clear(ctx context.Context, q db.Querier, cartID uuid.UUID) error {
	if q == nil {
		q = r.pool
	}

	if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("repository: failed to clear cart %s: %w", cartID, err)
	}
	if _, err := q.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("repository: failed to touch cart %s: %w", cartID, err)
	}

	return nil
}

func (r *postgresRepository) Touch(ctx context.Context, q db.Querier, cartID uuid.UUID) error {
	if q == nil {
		q = r.pool
	}

	if _, err := q.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("repository: failed to touch cart %s: %w", cartID, err)
	}
	return nil
}

func (r *postgresRepository) DeleteAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	itemsQuery := `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE updated_at < $1)
	`
	if _, err := r.pool.Exec(ctx, itemsQuery, cutoff); err != nil {
		return 0, fmt.Errorf("repository: failed to delete abandoned cart items: %w", err)
	}

	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete abandoned carts: %w", err)
	}

	return cmdTag.RowsAffected(), nil
}
