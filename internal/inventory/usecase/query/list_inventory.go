package query

import (
	"context"
	"fmt"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
)

// ListInventoryQuery represents the query to list inventory records
type ListInventoryQuery struct {
	Limit  int
	Offset int
}

// ListInventoryHandler handles list inventory query
type ListInventoryHandler struct {
	ledger *ledger.Ledger
}

// NewListInventoryHandler creates a new list inventory handler
func NewListInventoryHandler(l *ledger.Ledger) *ListInventoryHandler {
	return &ListInventoryHandler{ledger: l}
}

// Handle executes the list inventory query
func (h *ListInventoryHandler) Handle(ctx context.Context, query ListInventoryQuery) ([]domain.InventoryRecord, error) {
	query.Limit, query.Offset = normalizePage(query.Limit, query.Offset, 10, 100)

	records, err := h.ledger.List(ctx, query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventories: %w", err)
	}

	return records, nil
}

func normalizePage(limit, offset, def, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
