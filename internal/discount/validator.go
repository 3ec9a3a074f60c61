package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightcart/commerce-core/internal/clock"
	"github.com/brightcart/commerce-core/internal/db"
)

// Reason is the structured code a failed validation reports, so callers can
// present a precise message instead of a bare "invalid".
type Reason string

const (
	ReasonCodeNotFound      Reason = "code_not_found"
	ReasonCodeInactive      Reason = "code_inactive"
	ReasonNotYetValid       Reason = "not_yet_valid"
	ReasonExpired           Reason = "expired"
	ReasonMinimumNotMet     Reason = "minimum_order_not_met"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonUserLimitReached  Reason = "user_usage_limit_reached"
)

var reasonMessages = map[Reason]string{
	ReasonCodeNotFound:      "Invalid discount code.",
	ReasonCodeInactive:      "This discount code is not active.",
	ReasonNotYetValid:       "Discount is not yet valid.",
	ReasonExpired:           "Discount has expired.",
	ReasonMinimumNotMet:     "A minimum order total is required.",
	ReasonUsageLimitReached: "Discount usage limit has been reached.",
	ReasonUserLimitReached:  "You have already used this discount the maximum number of times.",
}

func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return "Invalid discount code."
}

type Result struct {
	Valid   bool
	Reason  Reason
	Message string
	Amount  decimal.Decimal
	Code    *Code
}

func invalid(reason Reason) Result {
	return Result{Valid: false, Reason: reason, Message: reason.Message()}
}

// Validator checks a promotional code against its time window, usage caps
// and minimum order amount. Validation never writes; consumption is a
// separate act performed by the checkout transaction.
type Validator struct {
	repo  Repository
	clock clock.Clock
}

func NewValidator(repo Repository, clk clock.Clock) *Validator {
	return &Validator{repo: repo, clock: clk}
}

// Validate runs the checks in order, short-circuiting on the first failure.
func (v *Validator) Validate(ctx context.Context, q db.Querier, code string, cartSubtotal decimal.Decimal, userID uuid.UUID) (Result, error) {
	c, err := v.repo.GetByCode(ctx, q, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return invalid(ReasonCodeNotFound), nil
		}
		return Result{}, fmt.Errorf("validator: failed to load discount code: %w", err)
	}

	if !c.IsActive {
		return invalid(ReasonCodeInactive), nil
	}

	now := v.clock.Now()
	if c.ValidFrom.After(now) {
		return invalid(ReasonNotYetValid), nil
	}
	if c.ValidUntil != nil && c.ValidUntil.Before(now) {
		return invalid(ReasonExpired), nil
	}

	if c.MinimumOrderAmount != nil && cartSubtotal.LessThan(*c.MinimumOrderAmount) {
		res := invalid(ReasonMinimumNotMet)
		res.Message = fmt.Sprintf("A minimum order total of $%s is required.", c.MinimumOrderAmount.StringFixed(2))
		return res, nil
	}

	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return invalid(ReasonUsageLimitReached), nil
	}

	if c.UsageLimitPerUser != nil {
		used, err := v.repo.UsesByUser(ctx, q, c.ID, userID)
		if err != nil {
			return Result{}, fmt.Errorf("validator: failed to read usage ledger: %w", err)
		}
		if used >= *c.UsageLimitPerUser {
			return invalid(ReasonUserLimitReached), nil
		}
	}

	return Result{
		Valid:   true,
		Message: "Discount applied successfully.",
		Amount:  CalculateDiscount(c, cartSubtotal),
		Code:    c,
	}, nil
}
