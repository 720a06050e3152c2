// Package bulk applies batches of independent stock changes. Each item
// commits or fails on its own; the BulkJob row is the pollable summary.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/inventory-engine/internal/inventory/adjustment"
	"github.com/tair/inventory-engine/internal/inventory/coordination"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/metrics"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/pkg/logger"
)

var tracer = otel.Tracer("inventory-bulk")

type Config struct {
	ChunkSize  int
	ChunkDelay time.Duration
	MaxItems   int
	// StaleAfter is how long a RUNNING job may go without saving progress
	// before it is treated as abandoned by a crashed process.
	StaleAfter time.Duration
}

var DefaultConfig = Config{
	ChunkSize:  50,
	ChunkDelay: 100 * time.Millisecond,
	MaxItems:   10000,
	StaleAfter: 10 * time.Minute,
}

const recoverBatch = 100

type Adjuster interface {
	Adjust(ctx context.Context, req adjustment.Request) (*domain.AdjustmentRecord, error)
}

type Restocker interface {
	ApplyAdjustment(ctx context.Context, productID string, delta int, m ledger.Mutation) (*ledger.Result, error)
}

type Releaser interface {
	Release(ctx context.Context, id, reason string) (*reservation.TransitionResult, error)
}

// Request is a batch submission. Zero ChunkSize and nil ChunkDelay fall back
// to the coordinator configuration.
type Request struct {
	Type       domain.BulkJobType
	Items      []domain.BulkItem
	Reason     string
	ActorID    string
	ChunkSize  int
	ChunkDelay *time.Duration
}

// Coordinator runs bulk jobs and keeps their BulkJob rows current.
type Coordinator struct {
	jobs      domain.BulkJobRepository
	adjuster  Adjuster
	restocker Restocker
	releaser  Releaser
	cancels   coordination.CancelRegistry
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewCoordinator creates a new bulk coordinator. A nil cancels registry is
// only visible to this process.
func NewCoordinator(
	jobs domain.BulkJobRepository,
	adjuster Adjuster,
	restocker Restocker,
	releaser Releaser,
	cancels coordination.CancelRegistry,
	cfg Config,
) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig.ChunkSize
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig.MaxItems
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig.StaleAfter
	}
	if cancels == nil {
		cancels = coordination.NewMemory()
	}
	return &Coordinator{
		jobs:      jobs,
		adjuster:  adjuster,
		restocker: restocker,
		releaser:  releaser,
		cancels:   cancels,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		running:   make(map[string]context.CancelFunc),
	}
}

func (c *Coordinator) validate(req Request) error {
	switch req.Type {
	case domain.BulkAdjustment, domain.BulkRestock, domain.BulkRelease:
	default:
		return domain.NewValidationError("type", fmt.Sprintf("unknown bulk job type %q", req.Type))
	}
	switch {
	case len(req.Items) == 0:
		return domain.NewValidationError("items", "must not be empty")
	case len(req.Items) > c.cfg.MaxItems:
		return domain.NewValidationError("items", fmt.Sprintf("at most %d items per job", c.cfg.MaxItems))
	case strings.TrimSpace(req.Reason) == "":
		return domain.NewValidationError("reason", "is required")
	case strings.TrimSpace(req.ActorID) == "":
		return domain.NewValidationError("actor_id", "is required")
	case req.ChunkSize < 0:
		return domain.NewValidationError("chunk_size", "must not be negative")
	case req.ChunkSize > c.cfg.MaxItems:
		return domain.NewValidationError("chunk_size", fmt.Sprintf("must not exceed %d", c.cfg.MaxItems))
	case req.ChunkDelay != nil && *req.ChunkDelay < 0:
		return domain.NewValidationError("chunk_delay", "must not be negative")
	case req.ChunkDelay != nil && *req.ChunkDelay >= c.cfg.StaleAfter:
		// a pause that long would look like an abandoned job
		return domain.NewValidationError("chunk_delay", fmt.Sprintf("must be shorter than %s", c.cfg.StaleAfter))
	}
	return nil
}

func (c *Coordinator) create(ctx context.Context, req Request) (*domain.BulkJob, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	now := c.now()
	job := &domain.BulkJob{
		ID:         uuid.New().String(),
		Type:       req.Type,
		Reason:     req.Reason,
		ActorID:    req.ActorID,
		TotalItems: len(req.Items),
		Items:      make(domain.BulkItemResults, len(req.Items)),
		Status:     domain.BulkRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, item := range req.Items {
		job.Items[i] = domain.BulkItemResult{Index: i, ProductID: item.ProductID, Outcome: domain.ItemPending}
	}

	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create bulk job: %w", err)
	}
	logger.Info(ctx).
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("total_items", job.TotalItems).
		Str("actor_id", job.ActorID).
		Msg("Bulk job created")
	return job, nil
}

// Submit creates a RUNNING job and processes it in the background. The
// returned snapshot is what a caller polls by id.
func (c *Coordinator) Submit(ctx context.Context, req Request) (*domain.BulkJob, error) {
	job, err := c.create(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := job.Clone()

	// The job outlives the request but keeps its trace
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.running[job.ID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.running, job.ID)
			c.mu.Unlock()
			cancel()
		}()
		c.run(jobCtx, job, req)
	}()

	return &snapshot, nil
}

// Execute processes a batch synchronously and returns the final job.
func (c *Coordinator) Execute(ctx context.Context, req Request) (*domain.BulkJob, error) {
	job, err := c.create(ctx, req)
	if err != nil {
		return nil, err
	}
	c.run(ctx, job, req)
	out := job.Clone()
	return &out, nil
}

// Get returns the stored job.
func (c *Coordinator) Get(ctx context.Context, jobID string) (*domain.BulkJob, error) {
	return c.jobs.FindByID(ctx, jobID)
}

// Cancel stops scheduling further chunks of a running job on any replica.
// Items already committed stay committed.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) (*domain.BulkJob, error) {
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, domain.ErrJobTerminal
	}
	if c.stale(job) {
		// Nobody is left to read the flag
		if err := c.abandon(ctx, job, domain.BulkCancelled); err != nil {
			return nil, err
		}
		return job, nil
	}
	if err := c.cancels.RequestCancel(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to request cancellation: %w", err)
	}
	logger.Info(ctx).Str("job_id", jobID).Msg("Bulk job cancellation requested")
	return job, nil
}

// RecoverStale finalizes RUNNING jobs whose process stopped saving progress,
// typically after a crash. Unprocessed items are SKIPPED and the job FAILED,
// or finished normally when every item had already run. It returns how many
// jobs it closed.
func (c *Coordinator) RecoverStale(ctx context.Context) (int, error) {
	jobs, err := c.jobs.FindStale(ctx, c.now().Add(-c.cfg.StaleAfter), recoverBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale bulk jobs: %w", err)
	}

	recovered := 0
	for i := range jobs {
		job := &jobs[i]
		if c.isLocal(job.ID) {
			continue
		}
		status := domain.BulkFailed
		if job.Processed == job.TotalItems {
			status = job.FinalStatus(false)
		}
		if err := c.abandon(ctx, job, status); err != nil {
			if errors.Is(err, domain.ErrJobTerminal) {
				continue
			}
			return recovered, err
		}
		recovered++
		logger.Warn(ctx).
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Int("processed", job.Processed).
			Int("total_items", job.TotalItems).
			Time("last_progress", job.UpdatedAt).
			Msg("Closed abandoned bulk job")
	}
	return recovered, nil
}

func (c *Coordinator) stale(job *domain.BulkJob) bool {
	return !c.isLocal(job.ID) && job.UpdatedAt.Before(c.now().Add(-c.cfg.StaleAfter))
}

func (c *Coordinator) isLocal(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[jobID]
	return ok
}

// abandon finishes a job that no process is running. A concurrent finisher
// wins with ErrJobTerminal.
func (c *Coordinator) abandon(ctx context.Context, job *domain.BulkJob, status domain.BulkJobStatus) error {
	for i := range job.Items {
		if job.Items[i].Outcome == domain.ItemPending {
			job.Items[i].Outcome = domain.ItemSkipped
			job.Items[i].Error = "job stopped before this item ran"
			metrics.BulkItemsTotal.WithLabelValues(string(job.Type), string(domain.ItemSkipped)).Inc()
		}
	}
	completed := c.now()
	job.Status = status
	job.CompletedAt = &completed
	job.UpdatedAt = completed
	if err := c.jobs.Update(ctx, job); err != nil {
		return err
	}
	metrics.BulkJobsTotal.WithLabelValues(string(status)).Inc()
	return nil
}

// Shutdown cancels local jobs and waits for them to record their state.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, cancel := range c.running {
		cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, job *domain.BulkJob, req Request) {
	ctx, span := tracer.Start(ctx, "bulk.run",
		trace.WithAttributes(
			attribute.String("bulk.job_id", job.ID),
			attribute.String("bulk.type", string(job.Type)),
			attribute.Int("bulk.total_items", job.TotalItems),
		),
	)
	defer span.End()
	ctx = logger.With(ctx, "job_id", job.ID)

	chunkSize := c.cfg.ChunkSize
	if req.ChunkSize > 0 {
		chunkSize = req.ChunkSize
	}
	delay := c.cfg.ChunkDelay
	if req.ChunkDelay != nil {
		delay = *req.ChunkDelay
	}

	cancelled := false
	next := 0
	for next < len(req.Items) && !cancelled {
		if next == 0 {
			cancelled = c.isCancelled(ctx, job.ID)
		} else {
			cancelled = c.pause(ctx, job.ID, delay)
		}
		if cancelled {
			break
		}

		end := min(next+chunkSize, len(req.Items))
		for ; next < end; next++ {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			c.record(job, c.process(ctx, req, next))
		}
		c.save(ctx, job)
	}

	if cancelled {
		for i := range job.Items {
			if job.Items[i].Outcome == domain.ItemPending {
				job.Items[i].Outcome = domain.ItemSkipped
				metrics.BulkItemsTotal.WithLabelValues(string(job.Type), string(domain.ItemSkipped)).Inc()
			}
		}
	}

	completed := c.now()
	job.Status = job.FinalStatus(cancelled)
	job.CompletedAt = &completed
	c.save(ctx, job)

	metrics.BulkJobsTotal.WithLabelValues(string(job.Status)).Inc()
	span.SetAttributes(
		attribute.String("bulk.status", string(job.Status)),
		attribute.Int("bulk.succeeded", job.Succeeded),
		attribute.Int("bulk.failed", job.Failed),
	)
	logger.Info(ctx).
		Str("status", string(job.Status)).
		Int("succeeded", job.Succeeded).
		Int("failed", job.Failed).
		Int("total_items", job.TotalItems).
		Msg("Bulk job finished")
}

// pause waits between chunks and reports whether the job was cancelled.
func (c *Coordinator) pause(ctx context.Context, jobID string, delay time.Duration) bool {
	if c.isCancelled(ctx, jobID) {
		return true
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true
		case <-timer.C:
		}
	}
	return c.isCancelled(ctx, jobID)
}

func (c *Coordinator) isCancelled(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	cancelled, err := c.cancels.IsCancelled(ctx, jobID)
	if err != nil {
		// Keep going; a lost flag read only delays cancellation by a chunk
		logger.Warn(ctx).Err(err).Msg("Failed to read bulk job cancel flag")
		return false
	}
	return cancelled
}

func (c *Coordinator) process(ctx context.Context, req Request, index int) domain.BulkItemResult {
	item := req.Items[index]
	result := domain.BulkItemResult{Index: index, ProductID: item.ProductID}

	reason := item.Reason
	if reason == "" {
		reason = req.Reason
	}

	var err error
	switch req.Type {
	case domain.BulkAdjustment:
		var adj *domain.AdjustmentRecord
		adj, err = c.adjuster.Adjust(ctx, adjustment.Request{
			ProductID:      item.ProductID,
			AdjustmentType: item.AdjustmentType,
			Quantity:       item.Quantity,
			Reason:         reason,
			ActorID:        req.ActorID,
		})
		if err == nil {
			result.MovementID = adj.MovementID
		}
	case domain.BulkRestock:
		var res *ledger.Result
		if item.Quantity <= 0 {
			err = domain.NewValidationError("quantity", "restock quantity must be positive")
			break
		}
		res, err = c.restocker.ApplyAdjustment(ctx, item.ProductID, item.Quantity, ledger.Mutation{
			Type:     domain.MovementRestock,
			ActorID:  req.ActorID,
			Reason:   reason,
			UnitCost: item.UnitCost,
		})
		if err == nil {
			result.MovementID = res.Movement.ID
		}
	case domain.BulkRelease:
		var tr *reservation.TransitionResult
		if item.ReservationID == "" {
			err = domain.NewValidationError("reservation_id", "is required")
			break
		}
		tr, err = c.releaser.Release(ctx, item.ReservationID, reason)
		if err == nil {
			if result.ProductID == "" {
				result.ProductID = tr.Reservation.ProductID
			}
			if tr.Movement != nil {
				result.MovementID = tr.Movement.ID
			}
		}
	}

	if err != nil {
		result.Outcome = domain.ItemFailed
		result.Error = err.Error()
		level := logger.Debug(ctx)
		if !isItemRejection(err) {
			level = logger.Warn(ctx)
		}
		level.Err(err).
			Int("index", index).
			Str("product_id", item.ProductID).
			Msg("Bulk item failed")
	} else {
		result.Outcome = domain.ItemSucceeded
	}
	metrics.BulkItemsTotal.WithLabelValues(string(req.Type), string(result.Outcome)).Inc()
	return result
}

func isItemRejection(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNegativeStock) ||
		errors.Is(err, domain.ErrInventoryNotFound) ||
		errors.Is(err, domain.ErrReservationNotFound)
}

func (c *Coordinator) record(job *domain.BulkJob, result domain.BulkItemResult) {
	job.Items[result.Index] = result
	job.Processed++
	if result.Outcome == domain.ItemSucceeded {
		job.Succeeded++
	} else {
		job.Failed++
	}
}

// save persists progress. Job bookkeeping must survive a cancelled context.
func (c *Coordinator) save(ctx context.Context, job *domain.BulkJob) {
	job.UpdatedAt = c.now()
	if err := c.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error(ctx).Err(err).Str("job_id", job.ID).Msg("Failed to persist bulk job progress")
	}
}
