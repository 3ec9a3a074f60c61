package checkout_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightcart/commerce-core/internal/address"
	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/cart"
	"github.com/brightcart/commerce-core/internal/checkout"
	"github.com/brightcart/commerce-core/internal/db"
	"github.com/brightcart/commerce-core/internal/discount"
	"github.com/brightcart/commerce-core/internal/inventory"
	"github.com/brightcart/commerce-core/internal/order"
	"github.com/brightcart/commerce-core/internal/pricing"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(q db.Querier) error) error {
	return fn(nil)
}

type mockCartRepo struct {
	cart.Repository
	lockAndGetFunc func(ctx context.Context, q db.Querier, userID uuid.UUID) (*cart.Cart, error)
	cleared        []uuid.UUID
}

func (m *mockCartRepo) LockAndGet(ctx context.Context, q db.Querier, userID uuid.UUID) (*cart.Cart, error) {
	return m.lockAndGetFunc(ctx, q, userID)
}

func (m *mockCartRepo) Clear(ctx context.Context, q db.Querier, cartID uuid.UUID) error {
	m.cleared = append(m.cleared, cartID)
	return nil
}

type mockProductRepo struct {
	inventory.Repository
	getProductFunc func(ctx context.Context, q db.Querier, productID uuid.UUID) (*inventory.Product, error)
}

func (m *mockProductRepo) GetProduct(ctx context.Context, q db.Querier, productID uuid.UUID) (*inventory.Product, error) {
	return m.getProductFunc(ctx, q, productID)
}

type mockOrderRepo struct {
	order.Repository
	createFunc func(ctx context.Context, q db.Querier, o *order.Order) error
	created    []*order.Order
}

func (m *mockOrderRepo) Create(ctx context.Context, q db.Querier, o *order.Order) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, q, o); err != nil {
			return err
		}
	}
	m.created = append(m.created, o)
	return nil
}

type mockDiscountRepo struct {
	discount.Repository
	consumeFunc func(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error)
	recorded    int
}

func (m *mockDiscountRepo) Consume(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error) {
	return m.consumeFunc(ctx, q, codeID)
}

func (m *mockDiscountRepo) RecordUse(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) error {
	m.recorded++
	return nil
}

type mockValidator struct {
	result discount.Result
	err    error
}

func (m *mockValidator) Validate(ctx context.Context, q db.Querier, code string, cartSubtotal decimal.Decimal, userID uuid.UUID) (discount.Result, error) {
	return m.result, m.err
}

type mockBook struct {
	resolved map[uuid.UUID]address.Snapshot
}

func (m *mockBook) Resolve(ctx context.Context, q db.Querier, userID, addressID uuid.UUID) (address.Snapshot, error) {
	s, ok := m.resolved[addressID]
	if !ok {
		return address.Snapshot{}, apperr.NotFound("address")
	}
	return s, nil
}

type recordingQueue struct {
	kinds []string
}

func (m *recordingQueue) Enqueue(ctx context.Context, q db.Querier, kind string, payload any, runAt time.Time) error {
	m.kinds = append(m.kinds, kind)
	return nil
}

func (m *recordingQueue) EnqueueUnique(ctx context.Context, q db.Querier, kind string, payload any, runAt time.Time) (bool, error) {
	m.kinds = append(m.kinds, kind)
	return true, nil
}

type recordingDispatcher struct {
	events []string
}

func (d *recordingDispatcher) Emit(ctx context.Context, eventType string, payload any) {
	d.events = append(d.events, eventType)
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	if err != nil {
		t.Fatal(err)
	}
	return id
}

type fixture struct {
	svc        *checkout.Service
	carts      *mockCartRepo
	orders     *mockOrderRepo
	discounts  *mockDiscountRepo
	validator  *mockValidator
	queue      *recordingQueue
	dispatcher *recordingDispatcher

	userID     uuid.UUID
	cartID     uuid.UUID
	productID  uuid.UUID
	shippingID uuid.UUID
	product    *inventory.Product
}

// newFixture wires a checkout over a cart holding 4 x $25.00 of one product.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		userID:     mustUUID(t),
		cartID:     mustUUID(t),
		productID:  mustUUID(t),
		shippingID: mustUUID(t),
	}

	f.product = &inventory.Product{
		ID:            f.productID,
		Name:          "Walnut Desk Organizer",
		SKU:           "WDO-001",
		Price:         decimal.NewFromFloat(25.00),
		StockQuantity: 10,
		IsActive:      true,
	}

	f.carts = &mockCartRepo{
		lockAndGetFunc: func(ctx context.Context, q db.Querier, userID uuid.UUID) (*cart.Cart, error) {
			return &cart.Cart{
				ID:     f.cartID,
				UserID: userID,
				Items: []cart.Item{{
					ID:         mustUUID(t),
					CartID:     f.cartID,
					ProductID:  f.productID,
					Quantity:   4,
					UnitPrice:  decimal.NewFromFloat(25.00),
					TotalPrice: decimal.NewFromFloat(100.00),
				}},
			}, nil
		},
	}

	products := &mockProductRepo{
		getProductFunc: func(ctx context.Context, q db.Querier, productID uuid.UUID) (*inventory.Product, error) {
			return f.product, nil
		},
	}

	f.orders = &mockOrderRepo{}
	f.discounts = &mockDiscountRepo{
		consumeFunc: func(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error) {
			return true, nil
		},
	}
	f.validator = &mockValidator{}
	f.queue = &recordingQueue{}
	f.dispatcher = &recordingDispatcher{}

	book := &mockBook{resolved: map[uuid.UUID]address.Snapshot{
		f.shippingID: {FirstName: "Ada", City: "Portland"},
	}}

	f.svc = checkout.NewService(
		fakeTx{}, f.carts, products, f.orders, f.discounts, f.validator,
		book, pricing.DefaultFlatRates(), f.queue, f.dispatcher,
	)
	return f
}

func (f *fixture) input() checkout.Input {
	return checkout.Input{
		UserID:            f.userID,
		ShippingAddressID: f.shippingID,
		ShippingMethod:    "standard",
		PaymentMethod:     "card",
	}
}

func TestCheckout_PlacesPendingOrder(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Checkout(context.Background(), f.input())
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromFloat(100.00)), "subtotal %s", o.Subtotal)
	assert.True(t, o.TaxAmount.Equal(decimal.NewFromFloat(8.00)), "tax %s", o.TaxAmount)
	assert.True(t, o.ShippingAmount.Equal(decimal.NewFromFloat(9.99)), "shipping %s", o.ShippingAmount)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromFloat(117.99)), "total %s", o.TotalAmount)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Walnut Desk Organizer", o.Items[0].ProductName)
	assert.Equal(t, "WDO-001", o.Items[0].SKU)

	assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD-"))
	assert.Len(t, o.OrderNumber, 12)

	assert.Equal(t, []uuid.UUID{f.cartID}, f.carts.cleared)
	assert.Equal(t, []string{"payment.process"}, f.queue.kinds)
	assert.Equal(t, []string{"order.created"}, f.dispatcher.events)
}

func TestCheckout_BillingDefaultsToShipping(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Checkout(context.Background(), f.input())
	require.NoError(t, err)

	assert.Equal(t, o.ShippingAddress, o.BillingAddress)
	assert.Equal(t, "Ada", o.BillingAddress.FirstName)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	f.carts.lockAndGetFunc = func(ctx context.Context, q db.Querier, userID uuid.UUID) (*cart.Cart, error) {
		return &cart.Cart{ID: f.cartID, UserID: userID}, nil
	}

	_, err := f.svc.Checkout(context.Background(), f.input())
	assert.True(t, apperr.IsConflict(err), "want conflict, got %v", err)
	assert.Empty(t, f.orders.created)
	assert.Empty(t, f.dispatcher.events)
}

func TestCheckout_MissingCart(t *testing.T) {
	f := newFixture(t)
	f.carts.lockAndGetFunc = func(ctx context.Context, q db.Querier, userID uuid.UUID) (*cart.Cart, error) {
		return nil, cart.ErrCartNotFound
	}

	_, err := f.svc.Checkout(context.Background(), f.input())
	assert.True(t, apperr.IsConflict(err), "want conflict, got %v", err)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.product.StockQuantity = 3

	_, err := f.svc.Checkout(context.Background(), f.input())
	assert.True(t, apperr.IsConflict(err), "want conflict, got %v", err)
	assert.Empty(t, f.orders.created)
}

func TestCheckout_InactiveProduct(t *testing.T) {
	f := newFixture(t)
	f.product.IsActive = false

	_, err := f.svc.Checkout(context.Background(), f.input())
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)
	assert.Empty(t, f.orders.created)
}

func TestCheckout_InvalidDiscountRejectsOrder(t *testing.T) {
	f := newFixture(t)
	f.validator.result = discount.Result{
		Valid:   false,
		Reason:  discount.ReasonExpired,
		Message: discount.ReasonExpired.Message(),
	}

	in := f.input()
	in.DiscountCode = "SUMMER20"

	_, err := f.svc.Checkout(context.Background(), in)
	assert.True(t, apperr.IsDiscountInvalid(err), "want discount invalid, got %v", err)

	var dErr *apperr.DiscountInvalidError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "expired", dErr.Reason)
	assert.Empty(t, f.orders.created)
}

func TestCheckout_DiscountConsumedAndApplied(t *testing.T) {
	f := newFixture(t)
	codeID := mustUUID(t)
	f.validator.result = discount.Result{
		Valid:  true,
		Amount: decimal.NewFromFloat(5.00),
		Code:   &discount.Code{ID: codeID},
	}

	in := f.input()
	in.DiscountCode = "SAVE5"

	o, err := f.svc.Checkout(context.Background(), in)
	require.NoError(t, err)

	// 100.00 - 5.00 discount, 9.99 shipping, 8% tax on 95.00 = 7.60.
	assert.True(t, o.DiscountAmount.Equal(decimal.NewFromFloat(5.00)), "discount %s", o.DiscountAmount)
	assert.True(t, o.TaxAmount.Equal(decimal.NewFromFloat(7.60)), "tax %s", o.TaxAmount)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromFloat(112.59)), "total %s", o.TotalAmount)
	require.NotNil(t, o.DiscountCodeID)
	assert.Equal(t, codeID, *o.DiscountCodeID)
	assert.Equal(t, 1, f.discounts.recorded)
}

func TestCheckout_DiscountCapLostToConcurrentCheckout(t *testing.T) {
	// Validation passed but another checkout took the last use before
	// Consume ran.
	f := newFixture(t)
	f.validator.result = discount.Result{
		Valid:  true,
		Amount: decimal.NewFromFloat(5.00),
		Code:   &discount.Code{ID: mustUUID(t)},
	}
	f.discounts.consumeFunc = func(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error) {
		return false, nil
	}

	in := f.input()
	in.DiscountCode = "SAVE5"

	_, err := f.svc.Checkout(context.Background(), in)
	assert.True(t, apperr.IsDiscountInvalid(err), "want discount invalid, got %v", err)
	assert.Empty(t, f.orders.created)
}

func TestCheckout_RetriesOnOrderNumberCollision(t *testing.T) {
	f := newFixture(t)
	attempts := 0
	f.orders.createFunc = func(ctx context.Context, q db.Querier, o *order.Order) error {
		attempts++
		if attempts == 1 {
			return &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "orders_order_number_key",
			}
		}
		return nil
	}

	o, err := f.svc.Checkout(context.Background(), f.input())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, f.orders.created, 1)
	assert.Equal(t, []string{"order.created"}, f.dispatcher.events)
	assert.NotEmpty(t, o.OrderNumber)
}

func TestCheckout_OtherUniqueViolationNotRetried(t *testing.T) {
	f := newFixture(t)
	attempts := 0
	f.orders.createFunc = func(ctx context.Context, q db.Querier, o *order.Order) error {
		attempts++
		return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "orders_pkey"}
	}

	_, err := f.svc.Checkout(context.Background(), f.input())
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCheckout_InputValidation(t *testing.T) {
	f := newFixture(t)

	in := f.input()
	in.ShippingAddressID = uuid.Nil
	_, err := f.svc.Checkout(context.Background(), in)
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)

	in = f.input()
	in.UserID = uuid.Nil
	_, err = f.svc.Checkout(context.Background(), in)
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)
}

func TestGenerateOrderNumber_Format(t *testing.T) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n, err := checkout.GenerateOrderNumber()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(n, "ORD-"))
		require.Len(t, n, 12)
		for _, c := range n[4:] {
			assert.Contains(t, alphabet, string(c))
		}
		seen[n] = true
	}
	assert.Greater(t, len(seen), 95, "order numbers should be effectively unique")
}

func TestCheckout_ValidatorErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.validator.err = errors.New("connection reset")

	in := f.input()
	in.DiscountCode = "SAVE5"

	_, err := f.svc.Checkout(context.Background(), in)
	assert.Error(t, err)
	assert.False(t, apperr.IsDiscountInvalid(err))
}
