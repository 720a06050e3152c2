package bulk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tair/inventory-engine/internal/inventory/adjustment"
	"github.com/tair/inventory-engine/internal/inventory/coordination"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/repository/memory"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
)

type fixture struct {
	store   *memory.Store
	ledger  *ledger.Ledger
	manager *reservation.Manager
	cancels *coordination.Memory
	coord   *Coordinator
}

func setup(t *testing.T, cfg Config, products ...string) *fixture {
	t.Helper()
	store := memory.NewStore()
	l := ledger.New(store, ledger.DefaultConfig)
	m := reservation.NewManager(l, store, nil, reservation.DefaultConfig)
	cancels := coordination.NewMemory()
	for _, id := range products {
		if _, err := l.Initialize(context.Background(), ledger.InitializeParams{ProductID: id, OnHand: 10}); err != nil {
			t.Fatalf("Initialize %s failed: %v", id, err)
		}
	}
	c := NewCoordinator(store.Repositories().BulkJobs(), adjustment.NewProcessor(l), l, m, cancels, cfg)
	return &fixture{store: store, ledger: l, manager: m, cancels: cancels, coord: c}
}

func noDelay() *time.Duration {
	d := time.Duration(0)
	return &d
}

func TestExecute_PartialFailure(t *testing.T) {
	f := setup(t, Config{ChunkSize: 2}, "p-1", "p-2", "p-3", "p-4", "p-5")
	ctx := context.Background()

	items := []domain.BulkItem{
		{ProductID: "p-1", AdjustmentType: domain.AdjustmentRecount, Quantity: 2},
		{ProductID: "p-2", AdjustmentType: domain.AdjustmentDamage, Quantity: -1},
		{ProductID: "p-3", AdjustmentType: domain.AdjustmentDamage, Quantity: 4}, // damage must be negative
		{ProductID: "p-4", AdjustmentType: domain.AdjustmentRecount, Quantity: -3},
		{ProductID: "p-5", AdjustmentType: domain.AdjustmentExpiry, Quantity: -10},
	}
	job, err := f.coord.Execute(ctx, Request{
		Type:       domain.BulkAdjustment,
		Items:      items,
		Reason:     "quarterly count",
		ActorID:    "admin-1",
		ChunkDelay: noDelay(),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if job.Status != domain.BulkPartiallyCompleted {
		t.Errorf("status = %s, want PARTIALLY_COMPLETED", job.Status)
	}
	if job.Succeeded != 4 || job.Failed != 1 || job.Processed != 5 {
		t.Errorf("counts = %d/%d/%d, want 4 succeeded 1 failed 5 processed", job.Succeeded, job.Failed, job.Processed)
	}
	if job.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	failed := job.Items[2]
	if failed.Outcome != domain.ItemFailed || failed.Error == "" {
		t.Errorf("item 2 = %+v, want failure with message", failed)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if job.Items[i].Outcome != domain.ItemSucceeded || job.Items[i].MovementID == "" {
			t.Errorf("item %d = %+v, want success", i, job.Items[i])
		}
	}

	level, _ := f.ledger.GetAvailable(ctx, "p-3")
	if level.OnHand != 10 {
		t.Errorf("failed item changed p-3 on_hand to %d", level.OnHand)
	}
	level, _ = f.ledger.GetAvailable(ctx, "p-5")
	if level.OnHand != 0 {
		t.Errorf("p-5 on_hand = %d, want 0", level.OnHand)
	}

	stored, err := f.coord.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != job.Status || stored.Succeeded != 4 {
		t.Errorf("stored job = %+v", stored)
	}
}

func TestExecute_AllSucceed(t *testing.T) {
	f := setup(t, Config{}, "p-1", "p-2")
	job, err := f.coord.Execute(context.Background(), Request{
		Type: domain.BulkRestock,
		Items: []domain.BulkItem{
			{ProductID: "p-1", Quantity: 5},
			{ProductID: "p-2", Quantity: 1},
		},
		Reason:  "inbound shipment",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if job.Status != domain.BulkCompleted {
		t.Errorf("status = %s, want COMPLETED", job.Status)
	}
	level, _ := f.ledger.GetAvailable(context.Background(), "p-1")
	if level.OnHand != 15 {
		t.Errorf("p-1 on_hand = %d, want 15", level.OnHand)
	}
}

func TestExecute_AllFail(t *testing.T) {
	f := setup(t, Config{})
	job, err := f.coord.Execute(context.Background(), Request{
		Type:    domain.BulkRestock,
		Items:   []domain.BulkItem{{ProductID: "missing", Quantity: 5}},
		Reason:  "inbound shipment",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if job.Status != domain.BulkFailed || job.Failed != 1 {
		t.Errorf("job = %+v, want FAILED", job)
	}
}

func TestExecute_Release(t *testing.T) {
	f := setup(t, Config{}, "p-1")
	ctx := context.Background()

	res, err := f.manager.Reserve(ctx, reservation.ReserveRequest{ProductID: "p-1", Quantity: 3})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	job, err := f.coord.Execute(ctx, Request{
		Type: domain.BulkRelease,
		Items: []domain.BulkItem{
			{ReservationID: res.Reservation.ID},
			{ReservationID: res.Reservation.ID},
			{ReservationID: "unknown"},
		},
		Reason:  "order batch cancelled",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// the second release of the same reservation is already terminal, not a failure
	if job.Succeeded != 2 || job.Failed != 1 {
		t.Errorf("counts = %d/%d, want 2 succeeded 1 failed", job.Succeeded, job.Failed)
	}
	if job.Items[0].ProductID != "p-1" {
		t.Errorf("item 0 product = %q, want p-1", job.Items[0].ProductID)
	}

	level, _ := f.ledger.GetAvailable(ctx, "p-1")
	if level.Reserved != 0 || level.Available != 10 {
		t.Errorf("level = %+v, want everything released", level)
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := setup(t, Config{MaxItems: 2}, "p-1")
	item := domain.BulkItem{ProductID: "p-1", Quantity: 1}

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"unknown type", Request{Type: "TELEPORT", Items: []domain.BulkItem{item}, Reason: "r", ActorID: "a"}, "type"},
		{"no items", Request{Type: domain.BulkRestock, Reason: "r", ActorID: "a"}, "items"},
		{"too many items", Request{Type: domain.BulkRestock, Items: []domain.BulkItem{item, item, item}, Reason: "r", ActorID: "a"}, "items"},
		{"missing reason", Request{Type: domain.BulkRestock, Items: []domain.BulkItem{item}, ActorID: "a"}, "reason"},
		{"missing actor", Request{Type: domain.BulkRestock, Items: []domain.BulkItem{item}, Reason: "r"}, "actor_id"},
		{"chunk larger than a job", Request{Type: domain.BulkRestock, Items: []domain.BulkItem{item}, Reason: "r", ActorID: "a", ChunkSize: 3}, "chunk_size"},
		{"pause as long as staleness", Request{Type: domain.BulkRestock, Items: []domain.BulkItem{item}, Reason: "r", ActorID: "a", ChunkDelay: &DefaultConfig.StaleAfter}, "chunk_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Submit(context.Background(), tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %s, want %s", ve.Field, tt.field)
			}
		})
	}
}

func waitFor(t *testing.T, c *Coordinator, jobID string) *domain.BulkJob {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		job, err := c.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s still %s", jobID, job.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmit_RunsInBackground(t *testing.T) {
	f := setup(t, Config{ChunkSize: 1}, "p-1")
	ctx, cancel := context.WithCancel(context.Background())

	job, err := f.coord.Submit(ctx, Request{
		Type:       domain.BulkRestock,
		Items:      []domain.BulkItem{{ProductID: "p-1", Quantity: 1}, {ProductID: "p-1", Quantity: 2}},
		Reason:     "inbound shipment",
		ActorID:    "admin-1",
		ChunkDelay: noDelay(),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	// the request ending must not stop the job
	cancel()

	if job.Status != domain.BulkRunning || job.TotalItems != 2 {
		t.Errorf("submitted job = %+v", job)
	}

	done := waitFor(t, f.coord, job.ID)
	if done.Status != domain.BulkCompleted {
		t.Errorf("status = %s, want COMPLETED", done.Status)
	}
	level, _ := f.ledger.GetAvailable(context.Background(), "p-1")
	if level.OnHand != 13 {
		t.Errorf("on_hand = %d, want 13", level.OnHand)
	}
}

func TestCancel_SkipsRemainingChunks(t *testing.T) {
	f := setup(t, Config{ChunkSize: 1, ChunkDelay: 50 * time.Millisecond}, "p-1")
	ctx := context.Background()

	items := make([]domain.BulkItem, 20)
	for i := range items {
		items[i] = domain.BulkItem{ProductID: "p-1", Quantity: 1}
	}
	job, err := f.coord.Submit(ctx, Request{
		Type:    domain.BulkRestock,
		Items:   items,
		Reason:  "inbound shipment",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := f.coord.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	done := waitFor(t, f.coord, job.ID)
	if done.Status != domain.BulkCancelled {
		t.Fatalf("status = %s, want CANCELLED", done.Status)
	}

	skipped := 0
	for _, item := range done.Items {
		switch item.Outcome {
		case domain.ItemSkipped:
			skipped++
		case domain.ItemPending:
			t.Errorf("item %d left PENDING", item.Index)
		}
	}
	if skipped == 0 || done.Succeeded+skipped != len(items) {
		t.Errorf("succeeded %d skipped %d, want them to cover all %d items", done.Succeeded, skipped, len(items))
	}

	// committed items stay committed
	level, _ := f.ledger.GetAvailable(ctx, "p-1")
	if level.OnHand != 10+done.Succeeded {
		t.Errorf("on_hand = %d, want %d", level.OnHand, 10+done.Succeeded)
	}

	if _, err := f.coord.Cancel(ctx, job.ID); !errors.Is(err, domain.ErrJobTerminal) {
		t.Errorf("cancel of finished job = %v, want ErrJobTerminal", err)
	}
}

func TestCancel_UnknownJob(t *testing.T) {
	f := setup(t, Config{})
	if _, err := f.coord.Cancel(context.Background(), "nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestShutdown_StopsRunningJobs(t *testing.T) {
	f := setup(t, Config{ChunkSize: 1, ChunkDelay: time.Second}, "p-1")
	job, err := f.coord.Submit(context.Background(), Request{
		Type:    domain.BulkRestock,
		Items:   []domain.BulkItem{{ProductID: "p-1", Quantity: 1}, {ProductID: "p-1", Quantity: 1}},
		Reason:  "inbound shipment",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.coord.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	done, _ := f.coord.Get(context.Background(), job.ID)
	if done.Status != domain.BulkCancelled {
		t.Errorf("status = %s, want CANCELLED", done.Status)
	}
}

// cancelEverything reports every job as cancelled.
type cancelEverything struct{ *coordination.Memory }

func (cancelEverything) IsCancelled(context.Context, string) (bool, error) { return true, nil }

func TestExecute_CancelledBeforeFirstChunk(t *testing.T) {
	f := setup(t, Config{}, "p-1")
	c := NewCoordinator(f.store.Repositories().BulkJobs(), adjustment.NewProcessor(f.ledger), f.ledger, f.manager, cancelEverything{coordination.NewMemory()}, Config{})

	job, err := c.Execute(context.Background(), Request{
		Type:    domain.BulkRestock,
		Items:   []domain.BulkItem{{ProductID: "p-1", Quantity: 1}, {ProductID: "p-1", Quantity: 1}, {ProductID: "p-1", Quantity: 1}},
		Reason:  "inbound shipment",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if job.Status != domain.BulkCancelled || job.Processed != 0 {
		t.Errorf("status=%s processed=%d, want CANCELLED with nothing processed", job.Status, job.Processed)
	}
	for _, item := range job.Items {
		if item.Outcome != domain.ItemSkipped {
			t.Errorf("item %d = %s, want SKIPPED", item.Index, item.Outcome)
		}
	}
	level, _ := f.ledger.GetAvailable(context.Background(), "p-1")
	if level.OnHand != 10 {
		t.Errorf("on_hand = %d, want 10", level.OnHand)
	}
}

func seedJob(t *testing.T, f *fixture, updatedAt time.Time, outcomes ...domain.BulkItemOutcome) string {
	t.Helper()
	job := &domain.BulkJob{
		ID:         uuid.New().String(),
		Type:       domain.BulkRestock,
		Reason:     "inbound shipment",
		ActorID:    "admin-1",
		TotalItems: len(outcomes),
		Items:      make(domain.BulkItemResults, len(outcomes)),
		Status:     domain.BulkRunning,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
	for i, outcome := range outcomes {
		job.Items[i] = domain.BulkItemResult{Index: i, ProductID: "p-1", Outcome: outcome}
		if outcome == domain.ItemSucceeded {
			job.Processed++
			job.Succeeded++
		}
	}
	if err := f.store.Repositories().BulkJobs().Create(context.Background(), job); err != nil {
		t.Fatalf("Create job failed: %v", err)
	}
	return job.ID
}

func TestRecoverStale(t *testing.T) {
	f := setup(t, Config{StaleAfter: time.Minute}, "p-1")
	ctx := context.Background()
	now := time.Now().UTC()

	interrupted := seedJob(t, f, now.Add(-5*time.Minute), domain.ItemSucceeded, domain.ItemPending)
	finished := seedJob(t, f, now.Add(-5*time.Minute), domain.ItemSucceeded, domain.ItemSucceeded)
	alive := seedJob(t, f, now, domain.ItemSucceeded, domain.ItemPending)

	recovered, err := f.coord.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale failed: %v", err)
	}
	if recovered != 2 {
		t.Errorf("recovered %d jobs, want 2", recovered)
	}

	job, _ := f.coord.Get(ctx, interrupted)
	if job.Status != domain.BulkFailed || job.CompletedAt == nil || job.Items[1].Outcome != domain.ItemSkipped {
		t.Errorf("interrupted job = %+v", job)
	}
	job, _ = f.coord.Get(ctx, finished)
	if job.Status != domain.BulkCompleted {
		t.Errorf("finished job status = %s, want COMPLETED", job.Status)
	}
	job, _ = f.coord.Get(ctx, alive)
	if job.Status != domain.BulkRunning {
		t.Errorf("live job status = %s, want RUNNING", job.Status)
	}

	if recovered, _ := f.coord.RecoverStale(ctx); recovered != 0 {
		t.Errorf("second pass recovered %d jobs", recovered)
	}
}

func TestCancel_AbandonedJob(t *testing.T) {
	f := setup(t, Config{StaleAfter: time.Minute}, "p-1")
	ctx := context.Background()
	id := seedJob(t, f, time.Now().UTC().Add(-time.Hour), domain.ItemSucceeded, domain.ItemPending, domain.ItemPending)

	job, err := f.coord.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if job.Status != domain.BulkCancelled {
		t.Errorf("status = %s, want CANCELLED", job.Status)
	}

	stored, _ := f.coord.Get(ctx, id)
	if stored.Status != domain.BulkCancelled || stored.Items[2].Outcome != domain.ItemSkipped || stored.Items[0].Outcome != domain.ItemSucceeded {
		t.Errorf("stored job = %+v", stored)
	}
	if flagged, _ := f.cancels.IsCancelled(ctx, id); flagged {
		t.Error("abandoned job should be closed directly, not flagged")
	}
}
