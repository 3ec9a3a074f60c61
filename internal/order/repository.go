package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightcart/commerce-core/internal/db"
)

var ErrOrderNotFound = errors.New("order not found")

// Transition is the target of a compare-and-transition update. The matching
// lifecycle timestamp (confirmed_at, shipped_at, delivered_at) is stamped by
// the repository when the corresponding status is entered.
type Transition struct {
	Status        Status
	PaymentStatus PaymentStatus
}

type Repository interface {
	Create(ctx context.Context, q db.Querier, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByUserAndID(ctx context.Context, userID, id uuid.UUID) (*Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	// CompareAndTransition performs a single guarded update: it succeeds
	// only if the row still holds the expected status pair, and reports
	// false otherwise so callers can signal a conflict instead of silently
	// overwriting a concurrent transition.
	CompareAndTransition(ctx context.Context, q db.Querier, id uuid.UUID, expectedStatus Status, expectedPayment PaymentStatus, next Transition) (bool, error)
	// ListStalePending returns orders still payment-pending that were
	// created before the cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]Order, error)
	// DeleteTerminatedBefore removes cancelled orders with failed payment
	// created before the cutoff. Returns the number removed.
	DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const orderColumns = `
	id, user_id, order_number, status, payment_status,
	subtotal, tax_amount, shipping_amount, discount_amount, total_amount,
	shipping_address, billing_address, shipping_method, payment_method,
	discount_code_id, customer_notes, confirmed_at, shipped_at, delivered_at,
	created_at, updated_at
`

func (r *postgresRepository) Create(ctx context.Context, q db.Querier, o *Order) error {
	if q == nil {
		q = r.pool
	}

	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := q.Exec(ctx, query,
		o.ID,
		o.UserID,
		o.OrderNumber,
		string(o.Status),
		string(o.PaymentStatus),
		o.Subtotal,
		o.TaxAmount,
		o.ShippingAmount,
		o.DiscountAmount,
		o.TotalAmount,
		o.ShippingAddress,
		o.BillingAddress,
		o.ShippingMethod,
		o.PaymentMethod,
		o.DiscountCodeID,
		o.CustomerNotes,
		o.ConfirmedAt,
		o.ShippedAt,
		o.DeliveredAt,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			itemID, genErr := uuid.NewV4()
			if genErr != nil {
				return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
			}
			item.ID = itemID
		}
		item.OrderID = o.ID
		item.CreatedAt = now

		itemQuery := `
			INSERT INTO order_items (id, order_id, product_id, product_name, sku, quantity, unit_price, total_price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err = q.Exec(ctx, itemQuery,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.SKU,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *postgresRepository) GetByUserAndID(ctx context.Context, userID, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, args ...any) (*Order, error) {
	var o Order
	err := scanOrder(r.pool.QueryRow(ctx, query, args...), &o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order: %w", err)
	}

	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, order_id, product_id, product_name, sku, quantity, unit_price, total_price, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.SKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %s: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order %s: %w", orderID, err)
	}

	return items, nil
}

func (r *postgresRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to scan orders for user %s: %w", userID, err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *postgresRepository) CompareAndTransition(ctx context.Context, q db.Querier, id uuid.UUID, expectedStatus Status, expectedPayment PaymentStatus, next Transition) (bool, error) {
	if q == nil {
		q = r.pool
	}

	query := `
		UPDATE orders
		SET status = $4,
		    payment_status = $5,
		    confirmed_at = CASE WHEN $4 = 'confirmed' AND confirmed_at IS NULL THEN now() ELSE confirmed_at END,
		    shipped_at   = CASE WHEN $4 = 'shipped' AND shipped_at IS NULL THEN now() ELSE shipped_at END,
		    delivered_at = CASE WHEN $4 = 'delivered' AND delivered_at IS NULL THEN now() ELSE delivered_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2 AND payment_status = $3
	`

	cmdTag, err := q.Exec(ctx, query,
		id,
		string(expectedStatus),
		string(expectedPayment),
		string(next.Status),
		string(next.PaymentStatus),
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to transition order %s: %w", id, err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

func (r *postgresRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_status = 'pending' AND created_at < $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query stale pending orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to scan stale pending orders: %w", err)
	}

	return orders, nil
}

func (r *postgresRepository) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	itemsQuery := `
		DELETE FROM order_items
		WHERE order_id IN (
			SELECT id FROM orders
			WHERE status = 'cancelled' AND payment_status = 'failed' AND created_at < $1
		)
	`
	if _, err := r.pool.Exec(ctx, itemsQuery, cutoff); err != nil {
		return 0, fmt.Errorf("repository: failed to delete terminated order items: %w", err)
	}

	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM orders WHERE status = 'cancelled' AND payment_status = 'failed' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete terminated orders: %w", err)
	}

	return cmdTag.RowsAffected(), nil
}

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(
		&o.ID,
		&o.UserID,
		&o.OrderNumber,
		&o.Status,
		&o.PaymentStatus,
		&o.Subtotal,
		&o.TaxAmount,
		&o.ShippingAmount,
		&o.DiscountAmount,
		&o.TotalAmount,
		&o.ShippingAddress,
		&o.BillingAddress,
		&o.ShippingMethod,
		&o.PaymentMethod,
		&o.DiscountCodeID,
		&o.CustomerNotes,
		&o.ConfirmedAt,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
