package query

import (
	"context"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
)

// AuditInventoryHandler replays a product's movement history against its record
type AuditInventoryHandler struct {
	ledger *ledger.Ledger
}

// NewAuditInventoryHandler creates a new audit inventory handler
func NewAuditInventoryHandler(l *ledger.Ledger) *AuditInventoryHandler {
	return &AuditInventoryHandler{ledger: l}
}

// Handle executes the audit query
func (h *AuditInventoryHandler) Handle(ctx context.Context, productID string) (*ledger.AuditReport, error) {
	if productID == "" {
		return nil, domain.NewValidationError("product_id", "is required")
	}
	return h.ledger.Audit(ctx, productID)
}
