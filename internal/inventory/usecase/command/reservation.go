package command

import (
	"context"
	"time"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
)

// ReserveStockCommand represents a checkout hold
type ReserveStockCommand struct {
	ProductID      string
	Quantity       int
	TTL            time.Duration
	OrderID        string
	CartID         string
	IdempotencyKey string
}

// ReservationHandler handles reserve, confirm and release commands
type ReservationHandler struct {
	manager *reservation.Manager
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(m *reservation.Manager) *ReservationHandler {
	return &ReservationHandler{manager: m}
}

// Reserve executes the reserve stock command
func (h *ReservationHandler) Reserve(ctx context.Context, cmd ReserveStockCommand) (*reservation.ReserveResult, error) {
	return h.manager.Reserve(ctx, reservation.ReserveRequest{
		ProductID: cmd.ProductID,
		Quantity:  cmd.Quantity,
		TTL:       cmd.TTL,
		Correlation: domain.Correlation{
			OrderID: cmd.OrderID,
			CartID:  cmd.CartID,
		},
		IdempotencyKey: cmd.IdempotencyKey,
	})
}

// Confirm executes the confirm reservation command
func (h *ReservationHandler) Confirm(ctx context.Context, id string) (*reservation.TransitionResult, error) {
	if id == "" {
		return nil, domain.NewValidationError("reservation_id", "is required")
	}
	return h.manager.Confirm(ctx, id)
}

// Release executes the release reservation command
func (h *ReservationHandler) Release(ctx context.Context, id, reason string) (*reservation.TransitionResult, error) {
	if id == "" {
		return nil, domain.NewValidationError("reservation_id", "is required")
	}
	return h.manager.Release(ctx, id, reason)
}
