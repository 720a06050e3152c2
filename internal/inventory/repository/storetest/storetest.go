// Package storetest is a behavioural suite every domain.TransactionScope
// implementation must pass. The memory store runs it in unit tests; the
// PostgreSQL store runs it when a test database is configured.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tair/inventory-engine/internal/inventory/domain"
)

var errRollback = errors.New("rollback")

// Run executes the suite. IDs are random so a shared database can be reused
// between runs.
func Run(t *testing.T, scope domain.TransactionScope) {
	t.Run("InventoryCreateAndFind", func(t *testing.T) { testInventoryCreateAndFind(t, scope) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, scope) })
	t.Run("CompareAndSwapRejectsInvariant", func(t *testing.T) { testCompareAndSwapInvariant(t, scope) })
	t.Run("ExecuteRollsBack", func(t *testing.T) { testExecuteRollsBack(t, scope) })
	t.Run("SnapshotIgnoresConcurrentCommits", func(t *testing.T) { testSnapshotIsolation(t, scope) })
	t.Run("MovementsOrderedAndUnique", func(t *testing.T) { testMovements(t, scope) })
	t.Run("ReservationTransitionIsConditional", func(t *testing.T) { testReservationTransition(t, scope) })
	t.Run("ReservationExpiry", func(t *testing.T) { testReservationExpiry(t, scope) })
	t.Run("BulkJobImmutableOnceFinished", func(t *testing.T) { testBulkJob(t, scope) })
	t.Run("BulkJobFindStale", func(t *testing.T) { testBulkJobFindStale(t, scope) })
}

func newProductID() string {
	return "sku-" + uuid.NewString()[:8]
}

func seed(t *testing.T, scope domain.TransactionScope, onHand, reserved int) domain.InventoryRecord {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := domain.InventoryRecord{
		ProductID:       newProductID(),
		OnHand:          onHand,
		Reserved:        reserved,
		AverageUnitCost: decimal.Zero,
		LastCost:        decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := scope.Repositories().Inventory().Create(context.Background(), &record); err != nil {
		t.Fatalf("Create inventory failed: %v", err)
	}
	return record
}

func movement(productID string, version int64, delta, onHand int) *domain.MovementRecord {
	return &domain.MovementRecord{
		ID:              uuid.NewString(),
		ProductID:       productID,
		LedgerVersion:   version,
		Type:            domain.MovementRestock,
		QuantityDelta:   delta,
		ResultingOnHand: onHand,
		ActorID:         "storetest",
		CreatedAt:       time.Now().UTC(),
	}
}

func testInventoryCreateAndFind(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().Inventory()
	record := seed(t, scope, 10, 0)

	got, err := repo.FindByProductID(ctx, record.ProductID)
	if err != nil {
		t.Fatalf("FindByProductID failed: %v", err)
	}
	if got.OnHand != 10 || got.Reserved != 0 || got.Version != 0 {
		t.Errorf("got %+v, want onHand=10 reserved=0 version=0", got)
	}

	dup := record
	if err := repo.Create(ctx, &dup); !errors.Is(err, domain.ErrInventoryExists) {
		t.Errorf("duplicate Create error = %v, want ErrInventoryExists", err)
	}

	if _, err := repo.FindByProductID(ctx, newProductID()); !errors.Is(err, domain.ErrInventoryNotFound) {
		t.Errorf("missing FindByProductID error = %v, want ErrInventoryNotFound", err)
	}

	if err := repo.UpdateThreshold(ctx, record.ProductID, 4); err != nil {
		t.Fatalf("UpdateThreshold failed: %v", err)
	}
	got, _ = repo.FindByProductID(ctx, record.ProductID)
	if got.LowStockThreshold != 4 || got.Version != 0 {
		t.Errorf("threshold=%d version=%d, want 4 and 0", got.LowStockThreshold, got.Version)
	}
}

func testCompareAndSwap(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().Inventory()
	record := seed(t, scope, 10, 0)

	next := record
	next.Reserved = 3
	next.Version = 1
	if err := repo.CompareAndSwap(ctx, &next, 0); err != nil {
		t.Fatalf("CompareAndSwap failed: %v", err)
	}

	stale := record
	stale.Reserved = 5
	stale.Version = 1
	if err := repo.CompareAndSwap(ctx, &stale, 0); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("stale CompareAndSwap error = %v, want ErrVersionConflict", err)
	}

	got, _ := repo.FindByProductID(ctx, record.ProductID)
	if got.Reserved != 3 || got.Version != 1 {
		t.Errorf("reserved=%d version=%d, want 3 and 1", got.Reserved, got.Version)
	}
}

func testCompareAndSwapInvariant(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().Inventory()
	record := seed(t, scope, 2, 0)

	bad := record
	bad.Reserved = 3
	bad.Version = 1
	if err := repo.CompareAndSwap(ctx, &bad, 0); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("CompareAndSwap error = %v, want ErrInvariantViolation", err)
	}

	got, _ := repo.FindByProductID(ctx, record.ProductID)
	if got.Reserved != 0 || got.Version != 0 {
		t.Errorf("record changed after rejected write: %+v", got)
	}
}

func testExecuteRollsBack(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	record := seed(t, scope, 5, 0)

	err := scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		next := record
		next.OnHand = 8
		next.Version = 1
		if err := repos.Inventory().CompareAndSwap(ctx, &next, 0); err != nil {
			return err
		}
		if err := repos.Movements().Append(ctx, movement(record.ProductID, 1, 3, 8)); err != nil {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("Execute error = %v, want errRollback", err)
	}

	got, _ := scope.Repositories().Inventory().FindByProductID(ctx, record.ProductID)
	if got.OnHand != 5 || got.Version != 0 {
		t.Errorf("record after rollback = %+v, want onHand=5 version=0", got)
	}
	movements, err := scope.Repositories().Movements().ListByProduct(ctx, record.ProductID, 0, 0)
	if err != nil {
		t.Fatalf("ListByProduct failed: %v", err)
	}
	if len(movements) != 0 {
		t.Errorf("%d movements survived rollback", len(movements))
	}
}

// testSnapshotIsolation commits a versioned write between two reads of one
// snapshot. The second read must agree with the first.
func testSnapshotIsolation(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	record := seed(t, scope, 5, 0)

	write := func() error {
		return scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
			next := record
			next.OnHand = 8
			next.Version = 1
			if err := repos.Inventory().CompareAndSwap(ctx, &next, 0); err != nil {
				return err
			}
			return repos.Movements().Append(ctx, movement(record.ProductID, 1, 3, 8))
		})
	}

	written := make(chan error, 1)
	err := scope.Snapshot(ctx, func(ctx context.Context, repos domain.Repositories) error {
		before, err := repos.Inventory().FindByProductID(ctx, record.ProductID)
		if err != nil {
			return err
		}

		// A store that serializes transactions blocks the writer until the
		// snapshot ends; one with MVCC lets it commit now.
		go func() { written <- write() }()
		select {
		case err := <-written:
			if err != nil {
				t.Errorf("concurrent write failed: %v", err)
			}
			written <- nil
		case <-time.After(200 * time.Millisecond):
		}

		movements, err := repos.Movements().ListByProduct(ctx, record.ProductID, 0, 0)
		if err != nil {
			return err
		}
		if int64(len(movements)) != before.Version {
			t.Errorf("snapshot saw version %d and %d movements", before.Version, len(movements))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if err := <-written; err != nil {
		t.Fatalf("concurrent write failed: %v", err)
	}
	got, _ := scope.Repositories().Inventory().FindByProductID(ctx, record.ProductID)
	if got.Version != 1 || got.OnHand != 8 {
		t.Errorf("record after snapshot = %+v, want onHand=8 version=1", got)
	}
}

func testMovements(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().Movements()
	record := seed(t, scope, 0, 0)

	for _, v := range []int64{2, 1, 3} {
		if err := repo.Append(ctx, movement(record.ProductID, v, 1, int(v))); err != nil {
			t.Fatalf("Append(v%d) failed: %v", v, err)
		}
	}
	if err := repo.Append(ctx, movement(record.ProductID, 2, 1, 2)); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("duplicate ledger version error = %v, want ErrVersionConflict", err)
	}

	all, err := repo.ListByProduct(ctx, record.ProductID, 0, 0)
	if err != nil {
		t.Fatalf("ListByProduct failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d movements, want 3", len(all))
	}
	for i, m := range all {
		if m.LedgerVersion != int64(i+1) {
			t.Errorf("movement %d has version %d, want %d", i, m.LedgerVersion, i+1)
		}
	}

	paged, _ := repo.ListByProduct(ctx, record.ProductID, 1, 1)
	if len(paged) != 1 || paged[0].LedgerVersion != 2 {
		t.Errorf("page(1,1) = %+v, want version 2", paged)
	}
}

func newReservation(productID string, qty int, expiresAt time.Time) *domain.ReservationRecord {
	return &domain.ReservationRecord{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  qty,
		State:     domain.ReservationActive,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

func testReservationTransition(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().Reservations()
	record := seed(t, scope, 10, 0)

	a := newReservation(record.ProductID, 2, time.Now().UTC().Add(time.Hour))
	b := newReservation(record.ProductID, 3, time.Now().UTC().Add(time.Hour))
	for _, r := range []*domain.ReservationRecord{a, b} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create reservation failed: %v", err)
		}
	}

	sum, err := repo.SumActive(ctx, record.ProductID)
	if err != nil || sum != 5 {
		t.Fatalf("SumActive = %d, %v; want 5", sum, err)
	}

	transition := domain.Transition{ReservationID: a.ID, To: domain.ReservationConfirmed, At: time.Now().UTC()}
	changed, err := repo.Transition(ctx, transition)
	if err != nil || !changed {
		t.Fatalf("first Transition = %v, %v; want true", changed, err)
	}
	transition.To = domain.ReservationReleased
	changed, err = repo.Transition(ctx, transition)
	if err != nil || changed {
		t.Errorf("second Transition = %v, %v; want false", changed, err)
	}

	got, err := repo.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.State != domain.ReservationConfirmed || got.FinalizedAt == nil {
		t.Errorf("reservation = %+v, want CONFIRMED with finalized_at", got)
	}

	sum, _ = repo.SumActive(ctx, record.ProductID)
	if sum != 3 {
		t.Errorf("SumActive after confirm = %d, want 3", sum)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Errorf("missing FindByID error = %v, want ErrReservationNotFound", err)
	}
}

func testReservationExpiry(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().Reservations()
	record := seed(t, scope, 10, 0)
	now := time.Now().UTC()

	expired := newReservation(record.ProductID, 1, now.Add(-time.Minute))
	live := newReservation(record.ProductID, 1, now.Add(time.Hour))
	for _, r := range []*domain.ReservationRecord{expired, live} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create reservation failed: %v", err)
		}
	}

	found, err := repo.FindExpired(ctx, now, 0)
	if err != nil {
		t.Fatalf("FindExpired failed: %v", err)
	}
	var sawExpired, sawLive bool
	for _, r := range found {
		sawExpired = sawExpired || r.ID == expired.ID
		sawLive = sawLive || r.ID == live.ID
	}
	if !sawExpired || sawLive {
		t.Errorf("FindExpired expired=%v live=%v, want true and false", sawExpired, sawLive)
	}

	// The expiry guard refuses a reservation that is not yet past its deadline
	changed, err := repo.Transition(ctx, domain.Transition{
		ReservationID: live.ID, To: domain.ReservationExpired, At: now, ExpiredBefore: now,
	})
	if err != nil || changed {
		t.Errorf("expire live = %v, %v; want false", changed, err)
	}
	changed, err = repo.Transition(ctx, domain.Transition{
		ReservationID: expired.ID, To: domain.ReservationExpired, At: now, ExpiredBefore: now,
	})
	if err != nil || !changed {
		t.Errorf("expire expired = %v, %v; want true", changed, err)
	}
}

func testBulkJob(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().BulkJobs()
	now := time.Now().UTC()

	job := &domain.BulkJob{
		ID:         uuid.NewString(),
		Type:       domain.BulkRestock,
		Reason:     "storetest",
		ActorID:    "storetest",
		TotalItems: 1,
		Items:      domain.BulkItemResults{{Index: 0, ProductID: "sku-x", Outcome: domain.ItemPending}},
		Status:     domain.BulkRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create job failed: %v", err)
	}

	job.Processed, job.Succeeded = 1, 1
	job.Items[0].Outcome = domain.ItemSucceeded
	job.Status = domain.BulkCompleted
	job.CompletedAt = &now
	if err := repo.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Status != domain.BulkCompleted || len(got.Items) != 1 || got.Items[0].Outcome != domain.ItemSucceeded {
		t.Errorf("job = %+v, want COMPLETED with one SUCCEEDED item", got)
	}

	job.Status = domain.BulkFailed
	if err := repo.Update(ctx, job); !errors.Is(err, domain.ErrJobTerminal) {
		t.Errorf("Update finished job error = %v, want ErrJobTerminal", err)
	}
	if err := repo.Update(ctx, &domain.BulkJob{ID: uuid.NewString()}); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Update missing job error = %v, want ErrJobNotFound", err)
	}
}

func testBulkJobFindStale(t *testing.T, scope domain.TransactionScope) {
	ctx := context.Background()
	repo := scope.Repositories().BulkJobs()
	now := time.Now().UTC().Truncate(time.Microsecond)

	newJob := func(updatedAt time.Time) *domain.BulkJob {
		job := &domain.BulkJob{
			ID:         uuid.NewString(),
			Type:       domain.BulkRestock,
			Reason:     "storetest",
			ActorID:    "storetest",
			TotalItems: 1,
			Items:      domain.BulkItemResults{{Index: 0, ProductID: "sku-x", Outcome: domain.ItemPending}},
			Status:     domain.BulkRunning,
			CreatedAt:  updatedAt,
			UpdatedAt:  updatedAt,
		}
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("Create job failed: %v", err)
		}
		return job
	}
	stale := newJob(now.Add(-time.Hour))
	fresh := newJob(now)

	jobs, err := repo.FindStale(ctx, now.Add(-time.Minute), 1000)
	if err != nil {
		t.Fatalf("FindStale failed: %v", err)
	}
	found := map[string]bool{}
	for i, job := range jobs {
		found[job.ID] = true
		if job.Status != domain.BulkRunning {
			t.Errorf("FindStale returned %s job %s", job.Status, job.ID)
		}
		if i > 0 && job.UpdatedAt.Before(jobs[i-1].UpdatedAt) {
			t.Error("FindStale is not ordered oldest first")
		}
	}
	if !found[stale.ID] || found[fresh.ID] {
		t.Errorf("stale found=%v fresh found=%v, want true and false", found[stale.ID], found[fresh.ID])
	}

	// leave nothing RUNNING behind in a shared database
	for _, job := range []*domain.BulkJob{stale, fresh} {
		job.Status = domain.BulkFailed
		job.CompletedAt = &now
		if err := repo.Update(ctx, job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
}
