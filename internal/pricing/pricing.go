package pricing

import "github.com/shopspring/decimal"

// RateTable supplies shipping and tax rates. The flat placeholder below can
// be swapped for a real rate service without touching the checkout flow.
type RateTable interface {
	ShippingRate(method string) decimal.Decimal
	TaxRate() decimal.Decimal
}

// Quote is the priced remainder of an order: everything beyond the cart
// subtotal and the discount, both of which are inputs.
type Quote struct {
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// FlatRates is the placeholder rate table: one flat shipping rate for every
// method and a single tax percentage applied to (subtotal - discount).
type FlatRates struct {
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

func DefaultFlatRates() FlatRates {
	return FlatRates{
		Shipping: decimal.NewFromFloat(9.99),
		Tax:      decimal.NewFromFloat(0.08),
	}
}

func (f FlatRates) ShippingRate(method string) decimal.Decimal {
	return f.Shipping
}

func (f FlatRates) TaxRate() decimal.Decimal {
	return f.Tax
}

// Compute prices an order from its cart subtotal and an already-validated
// discount amount. Pure: no I/O, no side effects.
//
// The discount validator guarantees discount <= subtotal; it is clamped
// here again so a bad caller can never produce a negative total.
func Compute(subtotal, discount decimal.Decimal, shippingMethod string, rates RateTable) Quote {
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(rates.TaxRate()).Round(2)
	shipping := rates.ShippingRate(shippingMethod)

	return Quote{
		TaxAmount:      tax,
		ShippingAmount: shipping,
		TotalAmount:    subtotal.Sub(discount).Add(shipping).Add(tax),
	}
}
