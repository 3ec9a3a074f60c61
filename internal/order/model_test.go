package order_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightcart/commerce-core/internal/order"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from order.Status
		to   order.Status
		want bool
	}{
		{"pending to confirmed", order.StatusPending, order.StatusConfirmed, true},
		{"pending to cancelled", order.StatusPending, order.StatusCancelled, true},
		{"confirmed to processing", order.StatusConfirmed, order.StatusProcessing, true},
		{"processing to shipped", order.StatusProcessing, order.StatusShipped, true},
		{"shipped to delivered", order.StatusShipped, order.StatusDelivered, true},
		{"shipped to cancelled", order.StatusShipped, order.StatusCancelled, true},
		{"pending to shipped skips steps", order.StatusPending, order.StatusShipped, false},
		{"delivered is terminal", order.StatusDelivered, order.StatusCancelled, false},
		{"cancelled is terminal", order.StatusCancelled, order.StatusPending, false},
		{"refunded is terminal", order.StatusRefunded, order.StatusConfirmed, false},
		{"no backwards moves", order.StatusShipped, order.StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransitionPayment(t *testing.T) {
	tests := []struct {
		name string
		from order.PaymentStatus
		to   order.PaymentStatus
		want bool
	}{
		{"pending to completed", order.PaymentPending, order.PaymentCompleted, true},
		{"pending to failed", order.PaymentPending, order.PaymentFailed, true},
		{"processing to completed", order.PaymentProcessing, order.PaymentCompleted, true},
		{"completed to refunded", order.PaymentCompleted, order.PaymentRefunded, true},
		{"completed cannot fail", order.PaymentCompleted, order.PaymentFailed, false},
		{"failed is terminal", order.PaymentFailed, order.PaymentPending, false},
		{"refunded is terminal", order.PaymentRefunded, order.PaymentCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, order.CanTransitionPayment(tt.from, tt.to))
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, order.StatusDelivered.IsTerminal())
	assert.True(t, order.StatusCancelled.IsTerminal())
	assert.True(t, order.StatusRefunded.IsTerminal())
	assert.False(t, order.StatusPending.IsTerminal())
	assert.False(t, order.StatusShipped.IsTerminal())
}
