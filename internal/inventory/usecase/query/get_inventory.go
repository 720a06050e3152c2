package query

import (
	"context"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
)

// GetInventoryQuery represents the query to get an inventory record
type GetInventoryQuery struct {
	ProductID string
}

// GetInventoryHandler handles get inventory query
type GetInventoryHandler struct {
	ledger *ledger.Ledger
}

// NewGetInventoryHandler creates a new get inventory handler
func NewGetInventoryHandler(l *ledger.Ledger) *GetInventoryHandler {
	return &GetInventoryHandler{ledger: l}
}

// Handle executes the get inventory query
func (h *GetInventoryHandler) Handle(ctx context.Context, query GetInventoryQuery) (*domain.InventoryRecord, error) {
	if query.ProductID == "" {
		return nil, domain.NewValidationError("product_id", "is required")
	}
	return h.ledger.Get(ctx, query.ProductID)
}

// Availability returns the derived stock level used by checkout
func (h *GetInventoryHandler) Availability(ctx context.Context, query GetInventoryQuery) (domain.StockLevel, error) {
	if query.ProductID == "" {
		return domain.StockLevel{}, domain.NewValidationError("product_id", "is required")
	}
	return h.ledger.GetAvailable(ctx, query.ProductID)
}
