package command

import (
	"context"
	"time"

	"github.com/tair/inventory-engine/internal/inventory/bulk"
	"github.com/tair/inventory-engine/internal/inventory/domain"
)

// SubmitBulkJobCommand represents a batch of independent stock changes
type SubmitBulkJobCommand struct {
	Type    string
	Items   []domain.BulkItem
	Reason  string
	ActorID string
	// ChunkSize and ChunkDelay override the service defaults when set
	ChunkSize  int
	ChunkDelay *time.Duration
}

// BulkJobHandler handles submit and cancel bulk job commands
type BulkJobHandler struct {
	coordinator *bulk.Coordinator
}

// NewBulkJobHandler creates a new bulk job handler
func NewBulkJobHandler(c *bulk.Coordinator) *BulkJobHandler {
	return &BulkJobHandler{coordinator: c}
}

// Submit starts the job in the background and returns its RUNNING snapshot
func (h *BulkJobHandler) Submit(ctx context.Context, cmd SubmitBulkJobCommand) (*domain.BulkJob, error) {
	return h.coordinator.Submit(ctx, bulk.Request{
		Type:       domain.BulkJobType(cmd.Type),
		Items:      cmd.Items,
		Reason:     cmd.Reason,
		ActorID:    cmd.ActorID,
		ChunkSize:  cmd.ChunkSize,
		ChunkDelay: cmd.ChunkDelay,
	})
}

// Cancel requests that a running job stops after its current chunk
func (h *BulkJobHandler) Cancel(ctx context.Context, jobID string) (*domain.BulkJob, error) {
	return h.coordinator.Cancel(ctx, jobID)
}
