package payment

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/internal/order"
)

// autoApproveGateway approves every charge. Stands in until a real provider
// integration is wired; the rest of the flow (tasks, transitions, events)
// behaves exactly as it would with one.
type autoApproveGateway struct{}

func NewAutoApproveGateway() Gateway {
	return autoApproveGateway{}
}

func (autoApproveGateway) Charge(ctx context.Context, o *order.Order) error {
	log.Info().
		Stringer("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Str("amount", o.TotalAmount.StringFixed(2)).
		Msg("gateway: charge approved")
	return nil
}
