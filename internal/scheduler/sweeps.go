package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/cart"
	"github.com/brightcart/commerce-core/internal/clock"
	"github.com/brightcart/commerce-core/internal/identity"
	"github.com/brightcart/commerce-core/internal/inventory"
	"github.com/brightcart/commerce-core/internal/notification"
	"github.com/brightcart/commerce-core/internal/order"
	"github.com/brightcart/commerce-core/internal/payment"
	"github.com/brightcart/commerce-core/internal/taskqueue"
)

// Retention and escalation windows for the reconciliation sweeps.
const (
	// A payment-pending order older than this gets a retry task.
	PaymentRetryAfter = time.Hour
	// A payment-pending order older than this is force-cancelled.
	PendingCancelAfter = 24 * time.Hour
	// Carts untouched for this long are dropped.
	CartRetention = 30 * 24 * time.Hour
	// Guest accounts with no completed order expire after this.
	GuestRetention = 7 * 24 * time.Hour
	// Cancelled orders with failed payment are purged after this.
	FailedOrderRetention = 90 * 24 * time.Hour
)

// Sweeps holds the periodic reconciliation passes. Every sweep is
// idempotent: running it twice over the same state changes nothing the
// second time.
type Sweeps struct {
	orders     order.Repository
	orderSvc   order.Service
	carts      cart.Repository
	guests     identity.Repository
	products   inventory.Repository
	tasks      taskqueue.Queue
	dispatcher notification.Dispatcher
	clock      clock.Clock
}

func NewSweeps(
	orders order.Repository,
	orderSvc order.Service,
	carts cart.Repository,
	guests identity.Repository,
	products inventory.Repository,
	tasks taskqueue.Queue,
	dispatcher notification.Dispatcher,
	clk clock.Clock,
) *Sweeps {
	return &Sweeps{
		orders:     orders,
		orderSvc:   orderSvc,
		carts:      carts,
		guests:     guests,
		products:   products,
		tasks:      tasks,
		dispatcher: dispatcher,
		clock:      clk,
	}
}

// StalePendingOrders escalates orders whose payment never resolved: after
// PaymentRetryAfter a retry task is enqueued, after PendingCancelAfter the
// order is force-cancelled through the usual guarded transition.
func (s *Sweeps) StalePendingOrders(ctx context.Context) (int64, error) {
	now := s.clock.Now()

	stale, err := s.orders.ListStalePending(ctx, now.Add(-PaymentRetryAfter))
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to list stale pending orders: %w", err)
	}

	var affected int64
	for i := range stale {
		o := &stale[i]
		age := now.Sub(o.CreatedAt)

		if age >= PendingCancelAfter {
			err := s.orderSvc.FailPayment(ctx, o.ID)
			if err != nil {
				// A conflict means a concurrent transition already resolved
				// the order; the next pass will see the new state.
				if apperr.IsConflict(err) {
					continue
				}
				log.Error().Err(err).Stringer("order_id", o.ID).Msg("sweep: failed to cancel stale order")
				continue
			}
			log.Warn().Stringer("order_id", o.ID).Str("order_number", o.OrderNumber).Dur("age", age).Msg("sweep: stale order cancelled")
			affected++
			continue
		}

		// A retry for this order may still be queued or running from an
		// earlier pass; EnqueueUnique keeps the sweep from stacking another
		// one on every tick.
		enqueued, err := s.tasks.EnqueueUnique(ctx, nil, taskqueue.KindPaymentRetry,
			payment.TaskPayload{OrderID: o.ID}, now)
		if err != nil {
			log.Error().Err(err).Stringer("order_id", o.ID).Msg("sweep: failed to enqueue payment retry")
			continue
		}
		if enqueued {
			affected++
		}
	}

	return affected, nil
}

// AbandonedCarts drops carts untouched for CartRetention.
func (s *Sweeps) AbandonedCarts(ctx context.Context) (int64, error) {
	n, err := s.carts.DeleteAbandonedBefore(ctx, s.clock.Now().Add(-CartRetention))
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to delete abandoned carts: %w", err)
	}
	return n, nil
}

// ExpiredGuests removes guest accounts past GuestRetention, keeping any
// guest who owns a payment-completed order.
func (s *Sweeps) ExpiredGuests(ctx context.Context) (int64, error) {
	ids, err := s.guests.ListExpiredGuests(ctx, s.clock.Now().Add(-GuestRetention))
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to list expired guests: %w", err)
	}

	var affected int64
	for _, id := range ids {
		if err := s.guests.DeleteGuestCascade(ctx, id); err != nil {
			log.Error().Err(err).Stringer("user_id", id).Msg("sweep: failed to delete expired guest")
			continue
		}
		affected++
	}

	return affected, nil
}

// LowStock emits an alert for every active product at or under its
// low-stock threshold.
func (s *Sweeps) LowStock(ctx context.Context) (int64, error) {
	products, err := s.products.ListLowStock(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to list low-stock products: %w", err)
	}

	for i := range products {
		p := &products[i]
		s.dispatcher.Emit(ctx, notification.EventLowStock, map[string]any{
			"product_id":     p.ID,
			"product_name":   p.Name,
			"sku":            p.SKU,
			"stock_quantity": p.StockQuantity,
			"threshold":      p.LowStockThreshold,
		})
	}

	return int64(len(products)), nil
}

// TerminalOrders purges cancelled, payment-failed orders past
// FailedOrderRetention.
func (s *Sweeps) TerminalOrders(ctx context.Context) (int64, error) {
	n, err := s.orders.DeleteTerminatedBefore(ctx, s.clock.Now().Add(-FailedOrderRetention))
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to delete terminated orders: %w", err)
	}
	return n, nil
}

// Register attaches every sweep to the scheduler at its configured cadence.
func (s *Sweeps) Register(sched *Scheduler, intervals Intervals) {
	sched.Add("stale_pending_orders", intervals.StalePending, s.StalePendingOrders)
	sched.Add("abandoned_carts", intervals.AbandonedCart, s.AbandonedCarts)
	sched.Add("expired_guests", intervals.GuestExpiry, s.ExpiredGuests)
	sched.Add("low_stock", intervals.LowStock, s.LowStock)
	sched.Add("terminal_orders", intervals.OrderCleanup, s.TerminalOrders)
}

// Intervals is the cadence of each sweep.
type Intervals struct {
	StalePending  time.Duration
	AbandonedCart time.Duration
	GuestExpiry   time.Duration
	LowStock      time.Duration
	OrderCleanup  time.Duration
}
