package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/notification"
)

// InventoryAdjuster applies an order's snapshotted quantities to product
// stock. Invoked after payment completion; its failure never rolls the
// payment back.
type InventoryAdjuster interface {
	ApplyOrder(ctx context.Context, o *Order) error
}

type Service interface {
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]Order, error)
	// CompletePayment records the external payment-completed signal:
	// payment moves to completed, status to confirmed, then inventory is
	// adjusted and a confirmation event emitted.
	CompletePayment(ctx context.Context, orderID uuid.UUID) error
	// FailPayment records the external payment-failed signal: payment
	// moves to failed and the order is cancelled.
	FailPayment(ctx context.Context, orderID uuid.UUID) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error
	MarkShipped(ctx context.Context, orderID uuid.UUID) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID) error
	// Cancel moves the order to cancelled; the payment status is left for
	// the refund flow of an external payment layer.
	Cancel(ctx context.Context, orderID uuid.UUID) error
}

type service struct {
	repo       Repository
	adjuster   InventoryAdjuster
	dispatcher notification.Dispatcher
}

func NewService(repo Repository, adjuster InventoryAdjuster, dispatcher notification.Dispatcher) Service {
	return &service{repo: repo, adjuster: adjuster, dispatcher: dispatcher}
}

func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByUserAndID(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperr.NotFound("order")
		}
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) CompletePayment(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.loadForTransition(ctx, orderID)
	if err != nil {
		return err
	}

	if !CanTransitionPayment(o.PaymentStatus, PaymentCompleted) {
		if o.PaymentStatus == PaymentCompleted {
			// Duplicate signal; nothing to do.
			log.Info().Stringer("order_id", orderID).Msg("service: payment already completed")
			return nil
		}
		return apperr.Validation("invalid payment transition from %s to %s", o.PaymentStatus, PaymentCompleted)
	}

	// The status transition is checked independently of the payment one: an
	// order cancelled while its payment was still pending must stay
	// cancelled, not resurrect to confirmed.
	if o.Status != StatusConfirmed && !CanTransition(o.Status, StatusConfirmed) {
		return apperr.Validation("invalid status transition from %s to %s", o.Status, StatusConfirmed)
	}

	ok, err := s.repo.CompareAndTransition(ctx, nil, orderID, o.Status, o.PaymentStatus,
		Transition{Status: StatusConfirmed, PaymentStatus: PaymentCompleted})
	if err != nil {
		return fmt.Errorf("service: failed to complete payment: %w", err)
	}
	if !ok {
		return apperr.Conflict("order %s changed concurrently, payment completion rejected", orderID)
	}

	log.Info().Stringer("order_id", orderID).Str("order_number", o.OrderNumber).Msg("service: payment completed, order confirmed")

	// Inventory adjustment is best-effort here: a transient failure is
	// logged and remediated by the low-stock sweep, never propagated to
	// the payment caller.
	if err := s.adjuster.ApplyOrder(ctx, o); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: inventory adjustment failed")
	}

	s.dispatcher.Emit(ctx, notification.EventOrderConfirmed, map[string]any{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"user_id":      o.UserID,
		"total_amount": o.TotalAmount,
	})

	return nil
}

func (s *service) FailPayment(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.loadForTransition(ctx, orderID)
	if err != nil {
		return err
	}

	if !CanTransitionPayment(o.PaymentStatus, PaymentFailed) {
		if o.PaymentStatus == PaymentFailed {
			return nil
		}
		return apperr.Validation("invalid payment transition from %s to %s", o.PaymentStatus, PaymentFailed)
	}

	// A delivered or refunded order cannot be cancelled by a late payment
	// signal. An already-cancelled order only gets its payment stamped.
	if o.Status != StatusCancelled && !CanTransition(o.Status, StatusCancelled) {
		return apperr.Validation("invalid status transition from %s to %s", o.Status, StatusCancelled)
	}

	ok, err := s.repo.CompareAndTransition(ctx, nil, orderID, o.Status, o.PaymentStatus,
		Transition{Status: StatusCancelled, PaymentStatus: PaymentFailed})
	if err != nil {
		return fmt.Errorf("service: failed to fail payment: %w", err)
	}
	if !ok {
		return apperr.Conflict("order %s changed concurrently, payment failure rejected", orderID)
	}

	log.Warn().Stringer("order_id", orderID).Str("order_number", o.OrderNumber).Msg("service: payment failed, order cancelled")

	s.dispatcher.Emit(ctx, notification.EventPaymentFailed, map[string]any{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"user_id":      o.UserID,
	})

	return nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error {
	o, err := s.loadForTransition(ctx, orderID)
	if err != nil {
		return err
	}

	if o.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status already set")
		return nil
	}

	if !CanTransition(o.Status, newStatus) {
		return apperr.Validation("invalid status transition from %s to %s", o.Status, newStatus)
	}

	ok, err := s.repo.CompareAndTransition(ctx, nil, orderID, o.Status, o.PaymentStatus,
		Transition{Status: newStatus, PaymentStatus: o.PaymentStatus})
	if err != nil {
		return fmt.Errorf("service: failed to update order status: %w", err)
	}
	if !ok {
		return apperr.Conflict("order %s changed concurrently, status update rejected", orderID)
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", o.Status).Stringer("new_status", newStatus).Msg("service: order status updated")
	return nil
}

func (s *service) MarkShipped(ctx context.Context, orderID uuid.UUID) error {
	return s.UpdateStatus(ctx, orderID, StatusShipped)
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) error {
	return s.UpdateStatus(ctx, orderID, StatusDelivered)
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) error {
	return s.UpdateStatus(ctx, orderID, StatusCancelled)
}

func (s *service) loadForTransition(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperr.NotFound("order")
		}
		return nil, fmt.Errorf("service: failed to fetch order for transition: %w", err)
	}
	return o, nil
}
