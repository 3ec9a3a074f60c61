package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/db"
	"github.com/brightcart/commerce-core/internal/order"
)

type mockRepository struct {
	order.Repository
	getByIDFunc     func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	getByUserFunc   func(ctx context.Context, userID, id uuid.UUID) (*order.Order, error)
	transitionFunc  func(ctx context.Context, q db.Querier, id uuid.UUID, expectedStatus order.Status, expectedPayment order.PaymentStatus, next order.Transition) (bool, error)
	transitionCalls int
	lastTransition  order.Transition
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) GetByUserAndID(ctx context.Context, userID, id uuid.UUID) (*order.Order, error) {
	return m.getByUserFunc(ctx, userID, id)
}

func (m *mockRepository) CompareAndTransition(ctx context.Context, q db.Querier, id uuid.UUID, expectedStatus order.Status, expectedPayment order.PaymentStatus, next order.Transition) (bool, error) {
	m.transitionCalls++
	m.lastTransition = next
	return m.transitionFunc(ctx, q, id, expectedStatus, expectedPayment, next)
}

type recordingAdjuster struct {
	applied []uuid.UUID
}

func (a *recordingAdjuster) ApplyOrder(ctx context.Context, o *order.Order) error {
	a.applied = append(a.applied, o.ID)
	return nil
}

type recordingDispatcher struct {
	events []string
}

func (d *recordingDispatcher) Emit(ctx context.Context, eventType string, payload any) {
	d.events = append(d.events, eventType)
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func pendingOrder(t *testing.T) *order.Order {
	t.Helper()
	return &order.Order{
		ID:            mustUUID(t),
		UserID:        mustUUID(t),
		OrderNumber:   "ORD-TESTCASE",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func newService(o *order.Order, transitionOK bool) (*mockRepository, *recordingAdjuster, *recordingDispatcher, order.Service) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return o, nil
		},
		transitionFunc: func(ctx context.Context, q db.Querier, id uuid.UUID, expectedStatus order.Status, expectedPayment order.PaymentStatus, next order.Transition) (bool, error) {
			return transitionOK, nil
		},
	}
	adjuster := &recordingAdjuster{}
	dispatcher := &recordingDispatcher{}
	return repo, adjuster, dispatcher, order.NewService(repo, adjuster, dispatcher)
}

func TestCompletePayment_ConfirmsAndAdjustsInventory(t *testing.T) {
	o := pendingOrder(t)
	repo, adjuster, dispatcher, svc := newService(o, true)

	err := svc.CompletePayment(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.transitionCalls)
	assert.Equal(t, order.Transition{Status: order.StatusConfirmed, PaymentStatus: order.PaymentCompleted}, repo.lastTransition)
	assert.Equal(t, []uuid.UUID{o.ID}, adjuster.applied)
	assert.Equal(t, []string{"order.confirmed"}, dispatcher.events)
}

func TestCompletePayment_DuplicateSignalIsNoOp(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusConfirmed
	o.PaymentStatus = order.PaymentCompleted
	repo, adjuster, dispatcher, svc := newService(o, true)

	err := svc.CompletePayment(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Zero(t, repo.transitionCalls)
	assert.Empty(t, adjuster.applied)
	assert.Empty(t, dispatcher.events)
}

func TestCompletePayment_AfterFailureRejected(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusCancelled
	o.PaymentStatus = order.PaymentFailed
	repo, _, _, svc := newService(o, true)

	err := svc.CompletePayment(context.Background(), o.ID)
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)
	assert.Zero(t, repo.transitionCalls)
}

func TestCompletePayment_CancelledOrderStaysCancelled(t *testing.T) {
	// An order cancelled while its payment was still pending must not be
	// resurrected to confirmed by a late payment signal.
	o := pendingOrder(t)
	o.Status = order.StatusCancelled
	repo, adjuster, dispatcher, svc := newService(o, true)

	err := svc.CompletePayment(context.Background(), o.ID)
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)
	assert.Zero(t, repo.transitionCalls)
	assert.Empty(t, adjuster.applied)
	assert.Empty(t, dispatcher.events)
}

func TestCompletePayment_ConcurrentChangeConflicts(t *testing.T) {
	o := pendingOrder(t)
	_, adjuster, dispatcher, svc := newService(o, false)

	err := svc.CompletePayment(context.Background(), o.ID)
	assert.True(t, apperr.IsConflict(err), "want conflict, got %v", err)
	assert.Empty(t, adjuster.applied)
	assert.Empty(t, dispatcher.events)
}

func TestCompletePayment_UnknownOrder(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return nil, order.ErrOrderNotFound
		},
	}
	svc := order.NewService(repo, &recordingAdjuster{}, &recordingDispatcher{})

	err := svc.CompletePayment(context.Background(), mustUUID(t))
	assert.True(t, apperr.IsNotFound(err), "want not found, got %v", err)
}

func TestFailPayment_CancelsOrder(t *testing.T) {
	o := pendingOrder(t)
	repo, _, dispatcher, svc := newService(o, true)

	err := svc.FailPayment(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, order.Transition{Status: order.StatusCancelled, PaymentStatus: order.PaymentFailed}, repo.lastTransition)
	assert.Equal(t, []string{"payment.failed"}, dispatcher.events)
}

func TestFailPayment_DuplicateSignalIsNoOp(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusCancelled
	o.PaymentStatus = order.PaymentFailed
	repo, _, dispatcher, svc := newService(o, true)

	err := svc.FailPayment(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Zero(t, repo.transitionCalls)
	assert.Empty(t, dispatcher.events)
}

func TestFailPayment_AfterCompletionRejected(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusConfirmed
	o.PaymentStatus = order.PaymentCompleted
	repo, _, _, svc := newService(o, true)

	err := svc.FailPayment(context.Background(), o.ID)
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)
	assert.Zero(t, repo.transitionCalls)
}

func TestFailPayment_DeliveredOrderRejected(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusDelivered
	repo, _, _, svc := newService(o, true)

	err := svc.FailPayment(context.Background(), o.ID)
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)
	assert.Zero(t, repo.transitionCalls)
}

func TestFailPayment_CancelledOrderStampsPayment(t *testing.T) {
	// Cancelling first and failing the payment second is a legal ordering;
	// only the payment status moves.
	o := pendingOrder(t)
	o.Status = order.StatusCancelled
	repo, _, _, svc := newService(o, true)

	err := svc.FailPayment(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Transition{Status: order.StatusCancelled, PaymentStatus: order.PaymentFailed}, repo.lastTransition)
}

func TestUpdateStatus_AllowedTransition(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusConfirmed
	o.PaymentStatus = order.PaymentCompleted
	repo, _, _, svc := newService(o, true)

	err := svc.UpdateStatus(context.Background(), o.ID, order.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, order.Transition{Status: order.StatusProcessing, PaymentStatus: order.PaymentCompleted}, repo.lastTransition)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusDelivered
	repo, _, _, svc := newService(o, true)

	err := svc.UpdateStatus(context.Background(), o.ID, order.StatusShipped)
	assert.True(t, apperr.IsValidation(err), "want validation, got %v", err)
	assert.Zero(t, repo.transitionCalls)
}

func TestUpdateStatus_SameStatusIsNoOp(t *testing.T) {
	o := pendingOrder(t)
	repo, _, _, svc := newService(o, true)

	err := svc.UpdateStatus(context.Background(), o.ID, order.StatusPending)
	require.NoError(t, err)
	assert.Zero(t, repo.transitionCalls)
}

func TestUpdateStatus_ConcurrentChangeConflicts(t *testing.T) {
	o := pendingOrder(t)
	_, _, _, svc := newService(o, false)

	err := svc.UpdateStatus(context.Background(), o.ID, order.StatusConfirmed)
	assert.True(t, apperr.IsConflict(err), "want conflict, got %v", err)
}

func TestMarkShipped_FromProcessing(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusProcessing
	o.PaymentStatus = order.PaymentCompleted
	repo, _, _, svc := newService(o, true)

	err := svc.MarkShipped(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, repo.lastTransition.Status)
}

func TestCancel_KeepsPaymentStatus(t *testing.T) {
	o := pendingOrder(t)
	o.Status = order.StatusConfirmed
	o.PaymentStatus = order.PaymentCompleted
	repo, _, _, svc := newService(o, true)

	err := svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Transition{Status: order.StatusCancelled, PaymentStatus: order.PaymentCompleted}, repo.lastTransition)
}

func TestGetOrder_NotFoundForOtherUser(t *testing.T) {
	repo := &mockRepository{
		getByUserFunc: func(ctx context.Context, userID, id uuid.UUID) (*order.Order, error) {
			return nil, order.ErrOrderNotFound
		},
	}
	svc := order.NewService(repo, &recordingAdjuster{}, &recordingDispatcher{})

	_, err := svc.GetOrder(context.Background(), mustUUID(t), mustUUID(t))
	assert.True(t, apperr.IsNotFound(err), "want not found, got %v", err)
}
