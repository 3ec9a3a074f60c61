package inventory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/internal/notification"
	"github.com/brightcart/commerce-core/internal/order"
)

// Adjuster decrements product stock by an order's snapshotted quantities
// after payment completes, emitting a low-stock event when a product falls
// to or below its threshold.
type Adjuster struct {
	repo       Repository
	dispatcher notification.Dispatcher
}

func NewAdjuster(repo Repository, dispatcher notification.Dispatcher) *Adjuster {
	return &Adjuster{repo: repo, dispatcher: dispatcher}
}

func (a *Adjuster) ApplyOrder(ctx context.Context, o *order.Order) error {
	var firstErr error

	for i := range o.Items {
		item := &o.Items[i]

		p, err := a.repo.DecrementStock(ctx, nil, item.ProductID, item.Quantity)
		if err != nil {
			log.Error().Err(err).
				Stringer("order_id", o.ID).
				Stringer("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("adjuster: failed to decrement stock")
			if firstErr == nil {
				firstErr = fmt.Errorf("adjuster: failed to decrement stock for product %s: %w", item.ProductID, err)
			}
			continue
		}

		log.Info().
			Stringer("product_id", p.ID).
			Int("quantity_sold", item.Quantity).
			Int("remaining_stock", p.StockQuantity).
			Msg("adjuster: stock decremented")

		if p.StockQuantity <= p.LowStockThreshold {
			a.dispatcher.Emit(ctx, notification.EventLowStock, map[string]any{
				"product_id":    p.ID,
				"product_name":  p.Name,
				"sku":           p.SKU,
				"current_stock": p.StockQuantity,
				"threshold":     p.LowStockThreshold,
			})
		}
	}

	return firstErr
}
