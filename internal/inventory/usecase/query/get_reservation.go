package query

import (
	"context"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
)

// GetReservationHandler handles get reservation query
type GetReservationHandler struct {
	manager *reservation.Manager
}

// NewGetReservationHandler creates a new get reservation handler
func NewGetReservationHandler(m *reservation.Manager) *GetReservationHandler {
	return &GetReservationHandler{manager: m}
}

// Handle executes the get reservation query
func (h *GetReservationHandler) Handle(ctx context.Context, id string) (*domain.ReservationRecord, error) {
	if id == "" {
		return nil, domain.NewValidationError("reservation_id", "is required")
	}
	return h.manager.Get(ctx, id)
}
