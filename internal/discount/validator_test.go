package discount_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/brightcart/commerce-core/internal/clock"
	"github.com/brightcart/commerce-core/internal/db"
	"github.com/brightcart/commerce-core/internal/discount"
)

type mockRepository struct {
	getByCodeFunc  func(ctx context.Context, q db.Querier, code string) (*discount.Code, error)
	consumeFunc    func(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error)
	recordUseFunc  func(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) error
	usesByUserFunc func(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) (int, error)
}

func (m *mockRepository) GetByCode(ctx context.Context, q db.Querier, code string) (*discount.Code, error) {
	return m.getByCodeFunc(ctx, q, code)
}

func (m *mockRepository) Consume(ctx context.Context, q db.Querier, codeID uuid.UUID) (bool, error) {
	return m.consumeFunc(ctx, q, codeID)
}

func (m *mockRepository) RecordUse(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) error {
	return m.recordUseFunc(ctx, q, codeID, userID)
}

func (m *mockRepository) UsesByUser(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) (int, error) {
	return m.usesByUserFunc(ctx, q, codeID, userID)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(n int) *int {
	return &n
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func activeCode(mutate func(*discount.Code)) *discount.Code {
	id, _ := uuid.NewV4()
	c := &discount.Code{
		ID:        id,
		Code:      "SAVE10",
		Type:      discount.TypePercentage,
		Value:     dec("10"),
		ValidFrom: now.Add(-24 * time.Hour),
		IsActive:  true,
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestValidator_Validate(t *testing.T) {
	userID, _ := uuid.NewV4()

	tests := []struct {
		name       string
		code       *discount.Code
		subtotal   string
		usesByUser int
		wantValid  bool
		wantReason discount.Reason
		wantAmount string
	}{
		{
			name:       "inactive_code",
			code:       activeCode(func(c *discount.Code) { c.IsActive = false }),
			subtotal:   "100.00",
			wantReason: discount.ReasonCodeInactive,
		},
		{
			name:       "not_yet_valid",
			code:       activeCode(func(c *discount.Code) { c.ValidFrom = now.Add(time.Hour) }),
			subtotal:   "100.00",
			wantReason: discount.ReasonNotYetValid,
		},
		{
			name: "expired",
			code: activeCode(func(c *discount.Code) {
				until := now.Add(-time.Minute)
				c.ValidUntil = &until
			}),
			subtotal:   "100.00",
			wantReason: discount.ReasonExpired,
		},
		{
			name:       "minimum_order_not_met",
			code:       activeCode(func(c *discount.Code) { c.MinimumOrderAmount = decPtr("50.00") }),
			subtotal:   "49.99",
			wantReason: discount.ReasonMinimumNotMet,
		},
		{
			name: "usage_limit_reached",
			code: activeCode(func(c *discount.Code) {
				c.UsageLimit = intPtr(1)
				c.UsageCount = 1
			}),
			subtotal:   "100.00",
			wantReason: discount.ReasonUsageLimitReached,
		},
		{
			name:       "per_user_limit_reached",
			code:       activeCode(func(c *discount.Code) { c.UsageLimitPerUser = intPtr(2) }),
			subtotal:   "100.00",
			usesByUser: 2,
			wantReason: discount.ReasonUserLimitReached,
		},
		{
			name:       "valid_percentage",
			code:       activeCode(nil),
			subtotal:   "100.00",
			wantValid:  true,
			wantAmount: "10.00",
		},
		{
			name:       "valid_percentage_capped",
			code:       activeCode(func(c *discount.Code) { c.MaximumDiscountAmount = decPtr("5.00") }),
			subtotal:   "100.00",
			wantValid:  true,
			wantAmount: "5.00",
		},
		{
			name: "valid_fixed_capped_at_subtotal",
			code: activeCode(func(c *discount.Code) {
				c.Type = discount.TypeFixed
				c.Value = dec("25.00")
			}),
			subtotal:   "12.50",
			wantValid:  true,
			wantAmount: "12.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				getByCodeFunc: func(ctx context.Context, q db.Querier, code string) (*discount.Code, error) {
					return tt.code, nil
				},
				usesByUserFunc: func(ctx context.Context, q db.Querier, codeID, userID uuid.UUID) (int, error) {
					return tt.usesByUser, nil
				},
			}
			v := discount.NewValidator(repo, clock.Fixed(now))

			res, err := v.Validate(context.Background(), nil, tt.code.Code, dec(tt.subtotal), userID)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)
			if tt.wantValid {
				assert.True(t, dec(tt.wantAmount).Equal(res.Amount), "want %s, got %s", tt.wantAmount, res.Amount)
			} else {
				assert.Equal(t, tt.wantReason, res.Reason)
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestValidator_Validate_UnknownCode(t *testing.T) {
	repo := &mockRepository{
		getByCodeFunc: func(ctx context.Context, q db.Querier, code string) (*discount.Code, error) {
			return nil, discount.ErrCodeNotFound
		},
	}
	v := discount.NewValidator(repo, clock.Fixed(now))

	userID, _ := uuid.NewV4()
	res, err := v.Validate(context.Background(), nil, "NOPE", dec("10.00"), userID)
	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, discount.ReasonCodeNotFound, res.Reason)
}

func TestCalculateDiscount_NeverExceedsAmount(t *testing.T) {
	// Fixed discounts can never exceed the amount they apply to.
	amounts := []string{"0.01", "5.00", "24.99", "25.00", "100.00"}
	c := activeCode(func(c *discount.Code) {
		c.Type = discount.TypeFixed
		c.Value = dec("25.00")
	})

	for _, a := range amounts {
		amount := dec(a)
		got := discount.CalculateDiscount(c, amount)
		assert.True(t, got.LessThanOrEqual(amount), "discount %s exceeds amount %s", got, amount)
	}
}

func TestCalculateDiscount_PercentageCap(t *testing.T) {
	c := activeCode(func(c *discount.Code) { c.MaximumDiscountAmount = decPtr("5.00") })

	for _, a := range []string{"10.00", "50.00", "100.00", "9999.99"} {
		got := discount.CalculateDiscount(c, dec(a))
		assert.True(t, got.LessThanOrEqual(dec("5.00")), "discount %s exceeds cap for amount %s", got, a)
	}
}
