package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/internal/apperr"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("handler: failed to encode response")
	}
}

// writeError maps domain errors onto HTTP statuses. Anything unclassified is
// a 500 with a generic body; the detail goes to the log only.
func writeError(w http.ResponseWriter, err error) {
	var dErr *apperr.DiscountInvalidError
	if errors.As(err, &dErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: dErr.Message, Reason: dErr.Reason})
		return
	}

	switch {
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case apperr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case apperr.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("handler: request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// userIDFromRequest reads the authenticated owner from the X-User-ID header.
// Authentication itself lives at the gateway; this service trusts the header.
func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return uuid.Nil, apperr.Validation("X-User-ID header is required")
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("X-User-ID must be a valid UUID")
	}
	return id, nil
}
