package domain

import (
	"context"
	"time"
)

// InventoryRepository stores InventoryRecords. Quantity changes go through
// CompareAndSwap only.
type InventoryRepository interface {
	// Create returns ErrInventoryExists when the product is already stocked.
	Create(ctx context.Context, record *InventoryRecord) error
	FindByProductID(ctx context.Context, productID string) (*InventoryRecord, error)
	FindAll(ctx context.Context, limit, offset int) ([]InventoryRecord, error)
	// CompareAndSwap writes record if the stored version still equals expectedVersion.
	// A lost race returns ErrVersionConflict and writes nothing.
	CompareAndSwap(ctx context.Context, record *InventoryRecord, expectedVersion int64) error
	UpdateThreshold(ctx context.Context, productID string, threshold int) error
}

// MovementRepository is append-only.
type MovementRepository interface {
	Append(ctx context.Context, movement *MovementRecord) error
	// ListByProduct returns movements in ledger order. A zero limit returns all.
	ListByProduct(ctx context.Context, productID string, limit, offset int) ([]MovementRecord, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *ReservationRecord) error
	FindByID(ctx context.Context, id string) (*ReservationRecord, error)
	// Transition applies t only while the reservation is ACTIVE. It reports
	// whether a row was changed.
	Transition(ctx context.Context, t Transition) (bool, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]ReservationRecord, error)
	SumActive(ctx context.Context, productID string) (int, error)
}

type AdjustmentRepository interface {
	Create(ctx context.Context, adjustment *AdjustmentRecord) error
	ListByProduct(ctx context.Context, productID string, limit, offset int) ([]AdjustmentRecord, error)
}

type BulkJobRepository interface {
	Create(ctx context.Context, job *BulkJob) error
	FindByID(ctx context.Context, id string) (*BulkJob, error)
	// Update overwrites a RUNNING job. A finished job returns ErrJobTerminal.
	Update(ctx context.Context, job *BulkJob) error
	// FindStale lists RUNNING jobs last updated before the cutoff, oldest first.
	FindStale(ctx context.Context, updatedBefore time.Time, limit int) ([]BulkJob, error)
}

// Repositories groups repositories that share one transaction.
type Repositories interface {
	Inventory() InventoryRepository
	Movements() MovementRepository
	Reservations() ReservationRepository
	Adjustments() AdjustmentRepository
	BulkJobs() BulkJobRepository
}

// TransactionScope runs fn atomically. Returning an error from fn rolls back
// every write made through repos.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Snapshot runs fn read-only against one consistent view of the store.
	// Writes committed by other transactions while fn runs are not visible.
	Snapshot(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Repositories returns non-transactional repositories for reads and job bookkeeping.
	Repositories() Repositories
}
