package command

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
)

// RecordMovementCommand represents an inbound or outbound stock movement
// from receiving, transfers or damage write-offs. Quantity is always
// positive; the type decides the direction.
type RecordMovementCommand struct {
	ProductID string
	Type      domain.MovementType
	Quantity  int
	UnitCost  decimal.NullDecimal
	ActorID   string
	Reason    string
}

// RecordMovementHandler handles record movement command
type RecordMovementHandler struct {
	ledger *ledger.Ledger
}

// NewRecordMovementHandler creates a new record movement handler
func NewRecordMovementHandler(l *ledger.Ledger) *RecordMovementHandler {
	return &RecordMovementHandler{ledger: l}
}

// Handle executes the record movement command
func (h *RecordMovementHandler) Handle(ctx context.Context, cmd RecordMovementCommand) (*ledger.Result, error) {
	if cmd.ProductID == "" {
		return nil, domain.NewValidationError("product_id", "is required")
	}
	if cmd.Quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return nil, domain.NewValidationError("actor_id", "is required")
	}

	delta := cmd.Quantity
	switch cmd.Type {
	case domain.MovementRestock, domain.MovementTransferIn:
	case domain.MovementTransferOut, domain.MovementDamage:
		delta = -cmd.Quantity
	default:
		return nil, domain.NewValidationError("type", "must be one of RESTOCK, TRANSFER_IN, TRANSFER_OUT, DAMAGE")
	}
	if cmd.UnitCost.Valid && cmd.Type != domain.MovementRestock {
		return nil, domain.NewValidationError("unit_cost", "only RESTOCK movements carry a unit cost")
	}

	return h.ledger.ApplyAdjustment(ctx, cmd.ProductID, delta, ledger.Mutation{
		Type:     cmd.Type,
		ActorID:  cmd.ActorID,
		Reason:   cmd.Reason,
		UnitCost: cmd.UnitCost,
	})
}
