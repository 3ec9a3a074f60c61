package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/db"
)

// Catalog resolves a product's current price and stock. The unit price is
// snapshotted onto the line item at add time; later catalog edits do not
// reprice the cart.
type Catalog interface {
	PriceAndStock(ctx context.Context, q db.Querier, productID uuid.UUID) (decimal.Decimal, int, error)
}

type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Cart, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo    Repository
	catalog Catalog
}

func NewService(repo Repository, catalog Catalog) Service {
	return &service{repo: repo, catalog: catalog}
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	c, err := s.repo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			// A user without a cart sees an empty one.
			return &Cart{UserID: userID, Items: []Item{}}, nil
		}
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}
	return c, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Cart, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	c, err := s.repo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if !errors.Is(err, ErrCartNotFound) {
			return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
		}
		c, err = s.repo.Create(ctx, nil, userID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to create cart: %w", err)
		}
	}

	unitPrice, _, err := s.catalog.PriceAndStock(ctx, nil, productID)
	if err != nil {
		return nil, err
	}

	item := &Item{
		CartID:    c.ID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}

	// Adding an already-present product merges quantities.
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			item.ID = c.Items[i].ID
			item.Quantity = c.Items[i].Quantity + quantity
			item.UnitPrice = c.Items[i].UnitPrice
			break
		}
	}
	if err := validateQuantity(item.Quantity); err != nil {
		return nil, err
	}
	item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

	if err := s.repo.UpsertItem(ctx, nil, item); err != nil {
		return nil, fmt.Errorf("service: failed to add cart item: %w", err)
	}
	if err := s.repo.Touch(ctx, nil, c.ID); err != nil {
		return nil, fmt.Errorf("service: failed to touch cart: %w", err)
	}

	log.Info().Stringer("cart_id", c.ID).Stringer("product_id", productID).Int("quantity", item.Quantity).Msg("service: item added to cart")
	return s.repo.GetByUserID(ctx, nil, userID)
}

func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*Cart, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	c, err := s.repo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, apperr.NotFound("cart")
		}
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	var target *Item
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			target = &c.Items[i]
			break
		}
	}
	if target == nil {
		return nil, apperr.NotFound("cart item")
	}

	totalPrice := target.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if err := s.repo.UpdateItemQuantity(ctx, nil, itemID, quantity, target.UnitPrice, totalPrice); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, apperr.NotFound("cart item")
		}
		return nil, fmt.Errorf("service: failed to update cart item: %w", err)
	}
	if err := s.repo.Touch(ctx, nil, c.ID); err != nil {
		return nil, fmt.Errorf("service: failed to touch cart: %w", err)
	}

	return s.repo.GetByUserID(ctx, nil, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*Cart, error) {
	c, err := s.repo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, apperr.NotFound("cart")
		}
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	if err := s.repo.RemoveItem(ctx, nil, c.ID, itemID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, apperr.NotFound("cart item")
		}
		return nil, fmt.Errorf("service: failed to remove cart item: %w", err)
	}
	if err := s.repo.Touch(ctx, nil, c.ID); err != nil {
		return nil, fmt.Errorf("service: failed to touch cart: %w", err)
	}

	return s.repo.GetByUserID(ctx, nil, userID)
}

func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	c, err := s.repo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil
		}
		return fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	if err := s.repo.Clear(ctx, nil, c.ID); err != nil {
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}

	log.Info().Stringer("cart_id", c.ID).Stringer("user_id", userID).Msg("service: cart cleared")
	return nil
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return apperr.Validation("quantity must be greater than zero, got %d", quantity)
	}
	if quantity > MaxItemQuantity {
		return apperr.Validation("quantity must not exceed %d, got %d", MaxItemQuantity, quantity)
	}
	return nil
}
