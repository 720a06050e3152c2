package query

import (
	"context"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
)

// ListMovementsQuery represents the query to page through a product's ledger
type ListMovementsQuery struct {
	ProductID string
	Limit     int
	Offset    int
}

// ListMovementsHandler handles list movements query
type ListMovementsHandler struct {
	ledger *ledger.Ledger
}

// NewListMovementsHandler creates a new list movements handler
func NewListMovementsHandler(l *ledger.Ledger) *ListMovementsHandler {
	return &ListMovementsHandler{ledger: l}
}

// Handle executes the list movements query
func (h *ListMovementsHandler) Handle(ctx context.Context, query ListMovementsQuery) ([]domain.MovementRecord, error) {
	if query.ProductID == "" {
		return nil, domain.NewValidationError("product_id", "is required")
	}
	query.Limit, query.Offset = normalizePage(query.Limit, query.Offset, 50, 500)
	return h.ledger.Movements(ctx, query.ProductID, query.Limit, query.Offset)
}
