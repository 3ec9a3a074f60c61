package discount

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

type Code struct {
	ID                    uuid.UUID        `json:"id"`
	Code                  string           `json:"code"`
	Type                  Type             `json:"type"`
	Value                 decimal.Decimal  `json:"value"`
	MinimumOrderAmount    *decimal.Decimal `json:"minimum_order_amount,omitempty"`
	MaximumDiscountAmount *decimal.Decimal `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int             `json:"usage_limit,omitempty"`
	UsageLimitPerUser     *int             `json:"usage_limit_per_user,omitempty"`
	UsageCount            int              `json:"usage_count"`
	ValidFrom             time.Time        `json:"valid_from"`
	ValidUntil            *time.Time       `json:"valid_until,omitempty"`
	IsActive              bool             `json:"is_active"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// CalculateDiscount returns the amount a code takes off the given order
// amount. Percentage discounts are capped at MaximumDiscountAmount when set;
// fixed discounts can never exceed the amount they apply to.
func CalculateDiscount(c *Code, amount decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case TypePercentage:
		d := amount.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
		if c.MaximumDiscountAmount != nil && d.GreaterThan(*c.MaximumDiscountAmount) {
			return *c.MaximumDiscountAmount
		}
		return d
	case TypeFixed:
		if c.Value.GreaterThan(amount) {
			return amount
		}
		return c.Value
	}
	return decimal.Zero
}
