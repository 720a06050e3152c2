package command

import (
	"context"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
)

// UpdateThresholdCommand represents the command to change the low-stock threshold
type UpdateThresholdCommand struct {
	ProductID         string
	LowStockThreshold int
}

// UpdateThresholdHandler handles update threshold command
type UpdateThresholdHandler struct {
	ledger *ledger.Ledger
}

// NewUpdateThresholdHandler creates a new update threshold handler
func NewUpdateThresholdHandler(l *ledger.Ledger) *UpdateThresholdHandler {
	return &UpdateThresholdHandler{ledger: l}
}

// Handle executes the update threshold command
func (h *UpdateThresholdHandler) Handle(ctx context.Context, cmd UpdateThresholdCommand) (*domain.InventoryRecord, error) {
	if cmd.ProductID == "" {
		return nil, domain.NewValidationError("product_id", "is required")
	}
	return h.ledger.UpdateThreshold(ctx, cmd.ProductID, cmd.LowStockThreshold)
}
