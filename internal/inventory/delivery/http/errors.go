package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/pkg/logger"
)

// errorCode names the failure class for clients that branch on it.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrNotYetExpired):
		return http.StatusBadRequest, "NOT_YET_EXPIRED"
	case errors.Is(err, domain.ErrInventoryNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, domain.ErrNegativeStock):
		return http.StatusConflict, "NEGATIVE_STOCK"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict, "CONCURRENCY_CONFLICT"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "DUPLICATE_REQUEST"
	case errors.Is(err, domain.ErrInventoryExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, domain.ErrJobTerminal):
		return http.StatusConflict, "JOB_TERMINAL"
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusInternalServerError, "INVARIANT_VIOLATION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// respondError maps a domain error onto the response envelope. Internal
// failures are logged and never echoed to the caller.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := errorCode(err)

	resp := Response{Success: false, Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		logger.Error(ctx).Err(err).Str("code", code).Msg("Request failed")
		resp.Error = "Internal server error"
	}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		resp.Data = map[string]interface{}{
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		}
	}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		resp.Data = map[string]string{"field": validation.Field}
	}

	respondJSON(w, status, resp)
}
