package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
)

// CreateInventoryCommand represents the command to open a product in the ledger
type CreateInventoryCommand struct {
	ProductID         string
	OnHand            int
	LowStockThreshold int
	UnitCost          decimal.NullDecimal
	ActorID           string
	Reason            string
}

// CreateInventoryHandler handles create inventory command
type CreateInventoryHandler struct {
	ledger *ledger.Ledger
}

// NewCreateInventoryHandler creates a new create inventory handler
func NewCreateInventoryHandler(l *ledger.Ledger) *CreateInventoryHandler {
	return &CreateInventoryHandler{ledger: l}
}

// Handle executes the create inventory command
func (h *CreateInventoryHandler) Handle(ctx context.Context, cmd CreateInventoryCommand) (*domain.InventoryRecord, error) {
	if cmd.Reason == "" {
		cmd.Reason = "initial stock"
	}

	record, err := h.ledger.Initialize(ctx, ledger.InitializeParams{
		ProductID:         cmd.ProductID,
		OnHand:            cmd.OnHand,
		LowStockThreshold: cmd.LowStockThreshold,
		UnitCost:          cmd.UnitCost,
		ActorID:           cmd.ActorID,
		Reason:            cmd.Reason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInventoryExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create inventory: %w", err)
	}

	return record, nil
}
