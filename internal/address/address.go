package address

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/db"
)

// Snapshot is the address copy frozen onto an order. It is stored as JSONB
// on the order row, never as a live reference, so later address edits do
// not rewrite order history.
type Snapshot struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	StreetAddress1 string `json:"street_address_1"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	Phone          string `json:"phone,omitempty"`
}

// Book resolves an owner's address reference into a snapshot.
type Book interface {
	Resolve(ctx context.Context, q db.Querier, userID, addressID uuid.UUID) (Snapshot, error)
}

type postgresBook struct {
	pool *pgxpool.Pool
}

func NewBook(pool *pgxpool.Pool) Book {
	return &postgresBook{pool: pool}
}

func (b *postgresBook) Resolve(ctx context.Context, q db.Querier, userID, addressID uuid.UUID) (Snapshot, error) {
	if q == nil {
		q = b.pool
	}

	query := `
		SELECT first_name, last_name, street_address_1, city, state, postal_code, country, COALESCE(phone, '')
		FROM addresses
		WHERE id = $1 AND user_id = $2
	`

	var s Snapshot
	err := q.QueryRow(ctx, query, addressID, userID).Scan(
		&s.FirstName,
		&s.LastName,
		&s.StreetAddress1,
		&s.City,
		&s.State,
		&s.PostalCode,
		&s.Country,
		&s.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, apperr.NotFound("address")
		}
		return Snapshot{}, fmt.Errorf("repository: failed to resolve address %s: %w", addressID, err)
	}

	return s, nil
}
