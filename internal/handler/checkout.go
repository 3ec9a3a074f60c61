package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gofrs/uuid"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/checkout"
	"github.com/brightcart/commerce-core/pkg/metrics"
)

// CheckoutHandler converts the owner's cart into an order.
type CheckoutHandler struct {
	svc *checkout.Service
}

func NewCheckoutHandler(svc *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

type checkoutRequest struct {
	ShippingAddressID uuid.UUID  `json:"shipping_address_id"`
	BillingAddressID  *uuid.UUID `json:"billing_address_id,omitempty"`
	ShippingMethod    string     `json:"shipping_method,omitempty"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	DiscountCode      string     `json:"discount_code,omitempty"`
	CustomerNotes     string     `json:"customer_notes,omitempty"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	o, err := h.svc.Checkout(r.Context(), checkout.Input{
		UserID:            userID,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		ShippingMethod:    req.ShippingMethod,
		PaymentMethod:     req.PaymentMethod,
		DiscountCode:      req.DiscountCode,
		CustomerNotes:     req.CustomerNotes,
	})
	if err != nil {
		metrics.CheckoutTotal.WithLabelValues(checkoutResult(err)).Inc()
		writeError(w, err)
		return
	}

	metrics.CheckoutTotal.WithLabelValues("placed").Inc()
	writeJSON(w, http.StatusCreated, o)
}

func checkoutResult(err error) string {
	switch {
	case apperr.IsDiscountInvalid(err):
		return "discount_invalid"
	case apperr.IsValidation(err):
		return "validation"
	case apperr.IsConflict(err):
		return "conflict"
	case apperr.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
