package command

import (
	"context"

	"github.com/tair/inventory-engine/internal/inventory/adjustment"
	"github.com/tair/inventory-engine/internal/inventory/domain"
)

// AdjustInventoryCommand represents a manual admin correction
type AdjustInventoryCommand struct {
	ProductID      string
	AdjustmentType string
	Quantity       int
	Reason         string
	ActorID        string
}

// AdjustInventoryHandler handles adjust inventory command
type AdjustInventoryHandler struct {
	processor *adjustment.Processor
}

// NewAdjustInventoryHandler creates a new adjust inventory handler
func NewAdjustInventoryHandler(p *adjustment.Processor) *AdjustInventoryHandler {
	return &AdjustInventoryHandler{processor: p}
}

// Handle executes the adjust inventory command
func (h *AdjustInventoryHandler) Handle(ctx context.Context, cmd AdjustInventoryCommand) (*domain.AdjustmentRecord, error) {
	return h.processor.Adjust(ctx, adjustment.Request{
		ProductID:      cmd.ProductID,
		AdjustmentType: domain.AdjustmentType(cmd.AdjustmentType),
		Quantity:       cmd.Quantity,
		Reason:         cmd.Reason,
		ActorID:        cmd.ActorID,
	})
}
