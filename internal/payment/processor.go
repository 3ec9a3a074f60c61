package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/internal/order"
)

// Gateway is the external payment provider. Real integration is out of
// scope; the core only reacts to its outcome.
type Gateway interface {
	Charge(ctx context.Context, o *order.Order) error
}

// TaskPayload is the body of payment.process / payment.retry tasks.
type TaskPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// Processor drives an order's payment sub-flow from the task queue: it
// charges the gateway and records the outcome through the order service.
type Processor struct {
	orders  order.Repository
	service order.Service
	gateway Gateway
}

func NewProcessor(orders order.Repository, service order.Service, gateway Gateway) *Processor {
	return &Processor{orders: orders, service: service, gateway: gateway}
}

// HandleTask is registered for payment.process and payment.retry. A
// returned error makes the poller reschedule with backoff; orders whose
// payment never resolves are force-failed by the stale-pending sweep.
func (p *Processor) HandleTask(ctx context.Context, payload json.RawMessage) error {
	var task TaskPayload
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("payment: failed to unmarshal task payload: %w", err)
	}

	o, err := p.orders.GetByID(ctx, task.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			// The order may have been cleaned up; nothing to retry.
			log.Warn().Stringer("order_id", task.OrderID).Msg("payment: order gone, dropping task")
			return nil
		}
		return fmt.Errorf("payment: failed to load order %s: %w", task.OrderID, err)
	}

	if o.PaymentStatus != order.PaymentPending {
		log.Info().Stringer("order_id", o.ID).Stringer("payment_status", o.PaymentStatus).Msg("payment: already resolved, dropping task")
		return nil
	}

	// The order may have been cancelled (or otherwise closed) while the
	// task sat in the queue; charging it now would resurrect it.
	if o.Status.IsTerminal() {
		log.Info().Stringer("order_id", o.ID).Stringer("status", o.Status).Msg("payment: order closed, dropping task")
		return nil
	}

	if err := p.gateway.Charge(ctx, o); err != nil {
		return fmt.Errorf("payment: charge failed for order %s: %w", o.ID, err)
	}

	if err := p.service.CompletePayment(ctx, o.ID); err != nil {
		return fmt.Errorf("payment: failed to record completion for order %s: %w", o.ID, err)
	}

	return nil
}
