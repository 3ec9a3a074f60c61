package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/brightcart/commerce-core/internal/apperr"
	"github.com/brightcart/commerce-core/internal/order"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type updateStatusRequest struct {
	Status order.Status `json:"status"`
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, apperr.Validation("order id must be a valid UUID"))
		return
	}

	o, err := h.svc.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// UpdateStatus advances an order through fulfilment. Exposed for back-office
// tooling; ownership is not checked here.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, apperr.Validation("order id must be a valid UUID"))
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if req.Status == "" {
		writeError(w, apperr.Validation("status is required"))
		return
	}

	if err := h.svc.UpdateStatus(r.Context(), orderID, req.Status); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
