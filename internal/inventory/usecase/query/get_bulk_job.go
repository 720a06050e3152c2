package query

import (
	"context"

	"github.com/tair/inventory-engine/internal/inventory/bulk"
	"github.com/tair/inventory-engine/internal/inventory/domain"
)

// GetBulkJobHandler handles get bulk job query
type GetBulkJobHandler struct {
	coordinator *bulk.Coordinator
}

// NewGetBulkJobHandler creates a new get bulk job handler
func NewGetBulkJobHandler(c *bulk.Coordinator) *GetBulkJobHandler {
	return &GetBulkJobHandler{coordinator: c}
}

// Handle executes the get bulk job query
func (h *GetBulkJobHandler) Handle(ctx context.Context, jobID string) (*domain.BulkJob, error) {
	if jobID == "" {
		return nil, domain.NewValidationError("job_id", "is required")
	}
	return h.coordinator.Get(ctx, jobID)
}
