package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightcart/commerce-core/internal/address"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

func (s Status) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// cancelled and refunded are reachable from any non-terminal status.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusRefunded:  true,
	},
	StatusConfirmed: {
		StatusProcessing: true,
		StatusCancelled:  true,
		StatusRefunded:   true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
		StatusRefunded:  true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusCancelled: true,
		StatusRefunded:  true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

var allowedPaymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending: {
		PaymentProcessing: true,
		PaymentCompleted:  true,
		PaymentFailed:     true,
	},
	PaymentProcessing: {
		PaymentCompleted: true,
		PaymentFailed:    true,
	},
	PaymentCompleted: {
		PaymentRefunded: true,
	},
	PaymentFailed:   {},
	PaymentRefunded: {},
}

// CanTransition reports whether status may move from to next.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// CanTransitionPayment reports whether payment status may move from to next.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return allowedPaymentTransitions[from][to]
}

func (s Status) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Item is a frozen snapshot of a cart line captured at checkout time. It is
// never recomputed from the live catalog.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Order struct {
	ID              uuid.UUID        `json:"id"`
	UserID          uuid.UUID        `json:"user_id"`
	OrderNumber     string           `json:"order_number"`
	Status          Status           `json:"status"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	TaxAmount       decimal.Decimal  `json:"tax_amount"`
	ShippingAmount  decimal.Decimal  `json:"shipping_amount"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	ShippingAddress address.Snapshot `json:"shipping_address"`
	BillingAddress  address.Snapshot `json:"billing_address"`
	ShippingMethod  string           `json:"shipping_method,omitempty"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	DiscountCodeID  *uuid.UUID       `json:"discount_code_id,omitempty"`
	CustomerNotes   string           `json:"customer_notes,omitempty"`
	Items           []Item           `json:"items"`
	ConfirmedAt     *time.Time       `json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time       `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
