package notification

import "context"

// Event types emitted by the core. Content rendering and delivery belong to
// an external consumer of these events.
const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventPaymentFailed  = "payment.failed"
	EventLowStock       = "inventory.low_stock"
)

// Dispatcher is fire-and-forget event emission. At-most-once: a failed emit
// is logged by the implementation and never surfaced to the caller.
type Dispatcher interface {
	Emit(ctx context.Context, eventType string, payload any)
}

type nopDispatcher struct{}

func (nopDispatcher) Emit(ctx context.Context, eventType string, payload any) {}

// Nop returns a Dispatcher that drops every event. Used in tests.
func Nop() Dispatcher {
	return nopDispatcher{}
}
