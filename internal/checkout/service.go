package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/brightcart/commerce-core/internal/address"
	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/cart"
	"github.com/brightcart/commerce-core/internal/db"
	"github.com/brightcart/commerce-core/internal/discount"
	"github.com/brightcart/commerce-core/internal/inventory"
	"github.com/brightcart/commerce-core/internal/notification"
	"github.com/brightcart/commerce-core/internal/order"
	"github.com/brightcart/commerce-core/internal/payment"
	"github.com/brightcart/commerce-core/internal/pricing"
	"github.com/brightcart/commerce-core/internal/taskqueue"
)

// Order numbers are random, so a unique-index collision is possible. The
// whole transaction is retried because Postgres aborts it on the first
// constraint error.
const maxOrderNumberRetries = 3

// TxRunner runs a function inside a single database transaction.
// *db.Postgres satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(q db.Querier) error) error
}

// DiscountValidator checks a promotional code without consuming it.
// *discount.Validator satisfies it.
type DiscountValidator interface {
	Validate(ctx context.Context, q db.Querier, code string, cartSubtotal decimal.Decimal, userID uuid.UUID) (discount.Result, error)
}

// Input carries everything the client supplies at checkout. Prices never
// come from the client; they are read from the cart and catalog inside the
// transaction.
type Input struct {
	UserID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  *uuid.UUID
	ShippingMethod    string
	PaymentMethod     string
	DiscountCode      string
	CustomerNotes     string
}

// Service converts a cart into a pending order in one transaction: lock the
// cart, snapshot lines and addresses, validate and consume the discount,
// price the order, insert it, enqueue payment processing and clear the cart.
// Either all of it commits or none of it does.
type Service struct {
	tx         TxRunner
	carts      cart.Repository
	products   inventory.Repository
	orders     order.Repository
	discounts  discount.Repository
	validator  DiscountValidator
	addresses  address.Book
	rates      pricing.RateTable
	tasks      taskqueue.Queue
	dispatcher notification.Dispatcher
}

func NewService(
	tx TxRunner,
	carts cart.Repository,
	products inventory.Repository,
	orders order.Repository,
	discounts discount.Repository,
	validator DiscountValidator,
	addresses address.Book,
	rates pricing.RateTable,
	tasks taskqueue.Queue,
	dispatcher notification.Dispatcher,
) *Service {
	return &Service{
		tx:         tx,
		carts:      carts,
		products:   products,
		orders:     orders,
		discounts:  discounts,
		validator:  validator,
		addresses:  addresses,
		rates:      rates,
		tasks:      tasks,
		dispatcher: dispatcher,
	}
}

// Checkout places an order from the user's current cart.
func (s *Service) Checkout(ctx context.Context, in Input) (*order.Order, error) {
	if in.UserID == uuid.Nil {
		return nil, apperr.Validation("user id is required")
	}
	if in.ShippingAddressID == uuid.Nil {
		return nil, apperr.Validation("shipping address is required")
	}
	if in.ShippingMethod == "" {
		in.ShippingMethod = "standard"
	}

	var placed *order.Order
	for attempt := 1; ; attempt++ {
		o, err := s.placeOrder(ctx, in)
		if err != nil {
			if isOrderNumberCollision(err) && attempt < maxOrderNumberRetries {
				log.Warn().Int("attempt", attempt).Msg("service: order number collision, retrying checkout")
				continue
			}
			return nil, err
		}
		placed = o
		break
	}

	s.dispatcher.Emit(ctx, notification.EventOrderCreated, map[string]any{
		"order_id":     placed.ID,
		"order_number": placed.OrderNumber,
		"user_id":      placed.UserID,
		"total_amount": placed.TotalAmount,
	})

	log.Info().
		Stringer("order_id", placed.ID).
		Str("order_number", placed.OrderNumber).
		Stringer("user_id", placed.UserID).
		Msg("service: order placed")

	return placed, nil
}

func (s *Service) placeOrder(ctx context.Context, in Input) (*order.Order, error) {
	var placed *order.Order

	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		c, err := s.lockCart(ctx, q, in.UserID)
		if err != nil {
			return err
		}

		items, err := s.snapshotItems(ctx, q, c)
		if err != nil {
			return err
		}
		subtotal := c.Subtotal()

		discountAmount := decimal.Zero
		var discountCodeID *uuid.UUID
		if in.DiscountCode != "" {
			discountAmount, discountCodeID, err = s.applyDiscount(ctx, q, in, subtotal)
			if err != nil {
				return err
			}
		}

		shipping, err := s.addresses.Resolve(ctx, q, in.UserID, in.ShippingAddressID)
		if err != nil {
			return err
		}
		billing := shipping
		if in.BillingAddressID != nil {
			billing, err = s.addresses.Resolve(ctx, q, in.UserID, *in.BillingAddressID)
			if err != nil {
				return err
			}
		}

		quote := pricing.Compute(subtotal, discountAmount, in.ShippingMethod, s.rates)

		number, err := GenerateOrderNumber()
		if err != nil {
			return err
		}

		o := &order.Order{
			UserID:          in.UserID,
			OrderNumber:     number,
			Status:          order.StatusPending,
			PaymentStatus:   order.PaymentPending,
			Subtotal:        subtotal,
			TaxAmount:       quote.TaxAmount,
			ShippingAmount:  quote.ShippingAmount,
			DiscountAmount:  discountAmount,
			TotalAmount:     quote.TotalAmount,
			ShippingAddress: shipping,
			BillingAddress:  billing,
			ShippingMethod:  in.ShippingMethod,
			PaymentMethod:   in.PaymentMethod,
			DiscountCodeID:  discountCodeID,
			CustomerNotes:   in.CustomerNotes,
			Items:           items,
		}
		if err := s.orders.Create(ctx, q, o); err != nil {
			return err
		}

		err = s.tasks.Enqueue(ctx, q, taskqueue.KindPaymentProcess,
			payment.TaskPayload{OrderID: o.ID}, time.Now().UTC())
		if err != nil {
			return err
		}

		if err := s.carts.Clear(ctx, q, c.ID); err != nil {
			return err
		}

		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return placed, nil
}

func (s *Service) lockCart(ctx context.Context, q db.Querier, userID uuid.UUID) (*cart.Cart, error) {
	c, err := s.carts.LockAndGet(ctx, q, userID)
	if err != nil {
		if errors.Is(err, cart.ErrCartNotFound) {
			return nil, apperr.Conflict("cart is empty")
		}
		return nil, fmt.Errorf("service: failed to lock cart: %w", err)
	}
	if c.IsEmpty() {
		return nil, apperr.Conflict("cart is empty")
	}
	return c, nil
}

// snapshotItems freezes the cart lines into order items. Prices come from
// the cart snapshot, names and SKUs from the catalog row; stock and active
// flags are validated here so a dead product fails the whole checkout.
func (s *Service) snapshotItems(ctx context.Context, q db.Querier, c *cart.Cart) ([]order.Item, error) {
	items := make([]order.Item, 0, len(c.Items))
	for _, line := range c.Items {
		p, err := s.products.GetProduct(ctx, q, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to load product %s: %w", line.ProductID, err)
		}
		if !p.IsActive {
			return nil, apperr.Validation("product %q is no longer available", p.Name)
		}
		if p.StockQuantity < line.Quantity {
			return nil, apperr.Conflict("insufficient stock for %q: %d available, %d requested",
				p.Name, p.StockQuantity, line.Quantity)
		}

		items = append(items, order.Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			SKU:         p.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  line.TotalPrice,
		})
	}
	return items, nil
}

func (s *Service) applyDiscount(ctx context.Context, q db.Querier, in Input, subtotal decimal.Decimal) (decimal.Decimal, *uuid.UUID, error) {
	res, err := s.validator.Validate(ctx, q, in.DiscountCode, subtotal, in.UserID)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("service: discount validation failed: %w", err)
	}
	if !res.Valid {
		return decimal.Zero, nil, apperr.DiscountInvalid(string(res.Reason), res.Message)
	}

	// Consume re-checks the global cap under the row lock; a concurrent
	// checkout may have taken the last use since validation.
	ok, err := s.discounts.Consume(ctx, q, res.Code.ID)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("service: failed to consume discount: %w", err)
	}
	if !ok {
		return decimal.Zero, nil, apperr.DiscountInvalid(
			string(discount.ReasonUsageLimitReached), discount.ReasonUsageLimitReached.Message())
	}

	if err := s.discounts.RecordUse(ctx, q, res.Code.ID, in.UserID); err != nil {
		return decimal.Zero, nil, fmt.Errorf("service: failed to record discount use: %w", err)
	}

	return res.Amount, &res.Code.ID, nil
}

func isOrderNumberCollision(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == "orders_order_number_key"
}
