package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/fjod/go_storefront/internal/session"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, log *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, log *zap.Logger, status int, code, message string) {
	respondJSON(w, log, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps a service error onto a status code. Unexpected errors are
// logged; the client only sees a generic message for those.
func handleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var (
		status int
		code   string
		msg    = err.Error()
	)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrEmptyCart):
		status, code = http.StatusConflict, "empty_cart"
	case errors.Is(err, domain.ErrIllegalTransition):
		status, code = http.StatusConflict, "illegal_transition"
	case errors.Is(err, session.ErrConflict):
		status, code = http.StatusConflict, "concurrent_update"
	case errors.Is(err, domain.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidContact):
		status, code = http.StatusBadRequest, "invalid_contact"
	case errors.Is(err, domain.ErrPaymentProvider):
		status, code = http.StatusBadGateway, "payment_provider_error"
		msg = "the payment provider is unavailable, please try again"
	case errors.Is(err, domain.ErrPaymentNotConfirmed):
		status, code = http.StatusPaymentRequired, "payment_not_confirmed"
	case errors.Is(err, domain.ErrMaterializationFailure):
		status, code = http.StatusInternalServerError, "materialization_failure"
		msg = "your payment was received but the order could not be saved, please retry checkout"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
		msg = "request timed out"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
		msg = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.WithTrace(r.Context(), log).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	respondError(w, log, status, code, msg)
}
