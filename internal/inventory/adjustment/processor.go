// Package adjustment applies manual admin corrections. Every adjustment
// carries a reason and an actor; neither has a default.
package adjustment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/pkg/logger"
)

// Request is one manual correction.
type Request struct {
	ProductID      string
	AdjustmentType domain.AdjustmentType
	// Quantity is signed. DAMAGE, THEFT and EXPIRY must be negative.
	Quantity int
	Reason   string
	ActorID  string
}

// Validate checks the request without touching the ledger.
func (r Request) Validate() error {
	switch {
	case r.ProductID == "":
		return domain.NewValidationError("product_id", "is required")
	case strings.TrimSpace(r.Reason) == "":
		return domain.NewValidationError("reason", "is required")
	case strings.TrimSpace(r.ActorID) == "":
		return domain.NewValidationError("actor_id", "is required")
	case r.Quantity == 0:
		return domain.NewValidationError("quantity", "must not be zero")
	}
	if _, err := domain.ParseAdjustmentType(string(r.AdjustmentType)); err != nil {
		return err
	}
	if r.AdjustmentType.RequiresDecrease() && r.Quantity > 0 {
		return domain.NewValidationError("quantity", string(r.AdjustmentType)+" adjustments must be negative")
	}
	return nil
}

// Processor validates manual adjustments and records them with their movement.
type Processor struct {
	ledger *ledger.Ledger
}

// NewProcessor creates a new adjustment processor
func NewProcessor(l *ledger.Ledger) *Processor {
	return &Processor{ledger: l}
}

// Adjust writes an ADJUSTMENT movement through the ledger and the matching
// AdjustmentRecord in the same transaction.
func (p *Processor) Adjust(ctx context.Context, req Request) (*domain.AdjustmentRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var adjustment domain.AdjustmentRecord
	_, err := p.ledger.ApplyAdjustment(ctx, req.ProductID, req.Quantity, ledger.Mutation{
		Type:    domain.MovementAdjustment,
		ActorID: req.ActorID,
		Reason:  req.Reason,
		Within: func(ctx context.Context, repos domain.Repositories, result *ledger.Result) error {
			adjustment = domain.AdjustmentRecord{
				ID:              uuid.New().String(),
				MovementID:      result.Movement.ID,
				ProductID:       req.ProductID,
				AdjustmentType:  req.AdjustmentType,
				Quantity:        req.Quantity,
				Reason:          req.Reason,
				ActorID:         req.ActorID,
				ResultingOnHand: result.Record.OnHand,
				CreatedAt:       result.Movement.CreatedAt,
			}
			return repos.Adjustments().Create(ctx, &adjustment)
		},
	})
	if err != nil {
		return nil, err
	}

	// Manual corrections are audit-relevant whatever the log level
	logger.Warn(ctx).
		Str("adjustment_id", adjustment.ID).
		Str("product_id", req.ProductID).
		Str("adjustment_type", string(req.AdjustmentType)).
		Int("quantity", req.Quantity).
		Str("actor_id", req.ActorID).
		Str("reason", req.Reason).
		Msg("Manual inventory adjustment applied")

	return &adjustment, nil
}
