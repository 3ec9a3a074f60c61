package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/db"
)

type Product struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	SKU               string          `json:"sku"`
	Price             decimal.Decimal `json:"price"`
	StockQuantity     int             `json:"stock_quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Repository interface {
	GetProduct(ctx context.Context, q db.Querier, productID uuid.UUID) (*Product, error)
	// PriceAndStock satisfies the cart catalog: the current price and stock
	// of a product.
	PriceAndStock(ctx context.Context, q db.Querier, productID uuid.UUID) (decimal.Decimal, int, error)
	// DecrementStock atomically subtracts quantity from the product's stock
	// under the row's UPDATE lock and returns the product's post-decrement
	// state.
	DecrementStock(ctx context.Context, q db.Querier, productID uuid.UUID, quantity int) (*Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) GetProduct(ctx context.Context, q db.Querier, productID uuid.UUID) (*Product, error) {
	if q == nil {
		q = r.pool
	}

	query := `
		SELECT id, name, sku, price, stock_quantity, low_stock_threshold, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p Product
	err := q.QueryRow(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.Price,
		&p.StockQuantity,
		&p.LowStockThreshold,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("product")
		}
		return nil, fmt.Errorf("repository: failed to select product %s: %w", productID, err)
	}

	return &p, nil
}

func (r *postgresRepository) PriceAndStock(ctx context.Context, q db.Querier, productID uuid.UUID) (decimal.Decimal, int, error) {
	p, err := r.GetProduct(ctx, q, productID)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return p.Price, p.StockQuantity, nil
}

func (r *postgresRepository) DecrementStock(ctx context.Context, q db.Querier, productID uuid.UUID, quantity int) (*Product, error) {
	if q == nil {
		q = r.pool
	}

	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, sku, price, stock_quantity, low_stock_threshold, is_active, created_at, updated_at
	`

	var p Product
	err := q.QueryRow(ctx, query, productID, quantity).Scan(
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.Price,
		&p.StockQuantity,
		&p.LowStockThreshold,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("product")
		}
		return nil, fmt.Errorf("repository: failed to decrement stock for product %s: %w", productID, err)
	}

	return &p, nil
}

func (r *postgresRepository) ListLowStock(ctx context.Context) ([]Product, error) {
	query := `
		SELECT id, name, sku, price, stock_quantity, low_stock_threshold, is_active, created_at, updated_at
		FROM products
		WHERE stock_quantity <= low_stock_threshold AND is_active
		ORDER BY stock_quantity
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query low-stock products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.SKU,
			&p.Price,
			&p.StockQuantity,
			&p.LowStockThreshold,
			&p.IsActive,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan low-stock product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}
