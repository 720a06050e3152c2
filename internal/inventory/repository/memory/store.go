// Package memory is an in-process implementation of the inventory ports with
// the same transactional semantics as the PostgreSQL store. Transactions are
// serialized; a failed function leaves no trace.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/tair/inventory-engine/internal/inventory/domain"
)

type state struct {
	inventory    map[string]domain.InventoryRecord
	movements    map[string][]domain.MovementRecord
	reservations map[string]domain.ReservationRecord
	adjustments  map[string][]domain.AdjustmentRecord
	jobs         map[string]domain.BulkJob
}

func newState() *state {
	return &state{
		inventory:    make(map[string]domain.InventoryRecord),
		movements:    make(map[string][]domain.MovementRecord),
		reservations: make(map[string]domain.ReservationRecord),
		adjustments:  make(map[string][]domain.AdjustmentRecord),
		jobs:         make(map[string]domain.BulkJob),
	}
}

// clone copies the maps. Slices are shared but always appended with a fresh
// backing array, so the original is never written through.
func (s *state) clone() *state {
	return &state{
		inventory:    maps.Clone(s.inventory),
		movements:    maps.Clone(s.movements),
		reservations: maps.Clone(s.reservations),
		adjustments:  maps.Clone(s.adjustments),
		jobs:         maps.Clone(s.jobs),
	}
}

// Store implements domain.TransactionScope.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{state: newState()}
}

// Execute runs fn against a private copy of the state and publishes the copy
// only if fn succeeds. fn must not call Store.Repositories.
func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(ctx, &repositories{backend: direct{tx}}); err != nil {
		return err
	}
	s.state = tx
	return nil
}

// Snapshot runs fn against a private copy of the state under the store lock.
// Anything fn writes is discarded.
func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(ctx, &repositories{backend: direct{s.state.clone()}})
}

// Repositories returns repositories that lock the store per call.
func (s *Store) Repositories() domain.Repositories {
	return &repositories{backend: s}
}

// Seed installs a record directly, bypassing the ledger. Tests only.
func (s *Store) Seed(record domain.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.inventory[record.ProductID] = record
}

func (s *Store) with(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// backend hands a state to a repository call. The store locks; a transaction
// already holds the lock.
type backend interface {
	with(fn func(st *state))
}

type direct struct{ st *state }

func (d direct) with(fn func(st *state)) { fn(d.st) }

type repositories struct {
	backend backend
}

func (r *repositories) Inventory() domain.InventoryRepository {
	return &inventoryRepository{r.backend}
}

func (r *repositories) Movements() domain.MovementRepository {
	return &movementRepository{r.backend}
}

func (r *repositories) Reservations() domain.ReservationRepository {
	return &reservationRepository{r.backend}
}

func (r *repositories) Adjustments() domain.AdjustmentRepository {
	return &adjustmentRepository{r.backend}
}

func (r *repositories) BulkJobs() domain.BulkJobRepository {
	return &bulkJobRepository{r.backend}
}

// page applies limit/offset. A zero limit means no limit.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// appendFresh appends without writing into a backing array another state may share.
func appendFresh[T any](items []T, item T) []T {
	out := make([]T, len(items), len(items)+1)
	copy(out, items)
	return append(out, item)
}
