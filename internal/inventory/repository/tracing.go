package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/inventory-engine/internal/inventory/domain"
)

var tracer = otel.Tracer("inventory-repository")

// TracingStore wraps a TransactionScope with a span per transaction and per
// ledger-critical repository call.
type TracingStore struct {
	next domain.TransactionScope
}

// NewTracingStore creates a new store with tracing
func NewTracingStore(next domain.TransactionScope) *TracingStore {
	return &TracingStore{next: next}
}

func (s *TracingStore) Execute(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	ctx, span := tracer.Start(ctx, "repository.Transaction")
	defer span.End()

	err := s.next.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return fn(ctx, &tracingRepositories{Repositories: repos})
	})
	if err != nil {
		addDBErrorToSpan(span, err)
		span.SetAttributes(attribute.Bool("transaction.rolled_back", true))
	}
	return err
}

func (s *TracingStore) Snapshot(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	ctx, span := tracer.Start(ctx, "repository.Snapshot",
		trace.WithAttributes(attribute.Bool("transaction.read_only", true)),
	)
	defer span.End()

	err := s.next.Snapshot(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return fn(ctx, &tracingRepositories{Repositories: repos})
	})
	if err != nil {
		addDBErrorToSpan(span, err)
	}
	return err
}

func (s *TracingStore) Repositories() domain.Repositories {
	return &tracingRepositories{Repositories: s.next.Repositories()}
}

type tracingRepositories struct {
	domain.Repositories
}

func (r *tracingRepositories) Inventory() domain.InventoryRepository {
	return &tracingInventoryRepository{next: r.Repositories.Inventory()}
}

func (r *tracingRepositories) Reservations() domain.ReservationRepository {
	return &tracingReservationRepository{next: r.Repositories.Reservations()}
}

type tracingInventoryRepository struct {
	next domain.InventoryRepository
}

// Create with tracing
func (r *tracingInventoryRepository) Create(ctx context.Context, record *domain.InventoryRecord) error {
	ctx, span := tracer.Start(ctx, "repository.Inventory.Create",
		trace.WithAttributes(
			attribute.String("inventory.product_id", record.ProductID),
			attribute.Int("inventory.on_hand", record.OnHand),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, record)
	addDBErrorToSpan(span, err)
	return err
}

// FindByProductID with tracing
func (r *tracingInventoryRepository) FindByProductID(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	ctx, span := tracer.Start(ctx, "repository.Inventory.FindByProductID",
		trace.WithAttributes(
			attribute.String("inventory.product_id", productID),
		),
	)
	defer span.End()

	record, err := r.next.FindByProductID(ctx, productID)
	if err != nil {
		addDBErrorToSpan(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("inventory.on_hand", record.OnHand),
		attribute.Int("inventory.reserved", record.Reserved),
		attribute.Int64("inventory.version", record.Version),
	)
	return record, nil
}

// FindAll with tracing
func (r *tracingInventoryRepository) FindAll(ctx context.Context, limit, offset int) ([]domain.InventoryRecord, error) {
	ctx, span := tracer.Start(ctx, "repository.Inventory.FindAll",
		trace.WithAttributes(
			attribute.Int("query.limit", limit),
			attribute.Int("query.offset", offset),
		),
	)
	defer span.End()

	records, err := r.next.FindAll(ctx, limit, offset)
	if err != nil {
		addDBErrorToSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("result.count", len(records)))
	return records, nil
}

// CompareAndSwap with tracing. A lost race is recorded as an event, not an error.
func (r *tracingInventoryRepository) CompareAndSwap(ctx context.Context, record *domain.InventoryRecord, expectedVersion int64) error {
	ctx, span := tracer.Start(ctx, "repository.Inventory.CompareAndSwap",
		trace.WithAttributes(
			attribute.String("inventory.product_id", record.ProductID),
			attribute.Int64("inventory.expected_version", expectedVersion),
			attribute.Int("inventory.on_hand", record.OnHand),
			attribute.Int("inventory.reserved", record.Reserved),
		),
	)
	defer span.End()

	err := r.next.CompareAndSwap(ctx, record, expectedVersion)
	if errors.Is(err, domain.ErrVersionConflict) {
		span.AddEvent("version_conflict")
		return err
	}
	addDBErrorToSpan(span, err)
	return err
}

// UpdateThreshold with tracing
func (r *tracingInventoryRepository) UpdateThreshold(ctx context.Context, productID string, threshold int) error {
	ctx, span := tracer.Start(ctx, "repository.Inventory.UpdateThreshold",
		trace.WithAttributes(
			attribute.String("inventory.product_id", productID),
			attribute.Int("inventory.low_stock_threshold", threshold),
		),
	)
	defer span.End()

	err := r.next.UpdateThreshold(ctx, productID, threshold)
	addDBErrorToSpan(span, err)
	return err
}

type tracingReservationRepository struct {
	next domain.ReservationRepository
}

func (r *tracingReservationRepository) Create(ctx context.Context, reservation *domain.ReservationRecord) error {
	ctx, span := tracer.Start(ctx, "repository.Reservation.Create",
		trace.WithAttributes(
			attribute.String("reservation.id", reservation.ID),
			attribute.String("reservation.product_id", reservation.ProductID),
			attribute.Int("reservation.quantity", reservation.Quantity),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, reservation)
	addDBErrorToSpan(span, err)
	return err
}

func (r *tracingReservationRepository) FindByID(ctx context.Context, id string) (*domain.ReservationRecord, error) {
	ctx, span := tracer.Start(ctx, "repository.Reservation.FindByID",
		trace.WithAttributes(attribute.String("reservation.id", id)),
	)
	defer span.End()

	reservation, err := r.next.FindByID(ctx, id)
	if err != nil {
		addDBErrorToSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation.state", string(reservation.State)))
	return reservation, nil
}

func (r *tracingReservationRepository) Transition(ctx context.Context, t domain.Transition) (bool, error) {
	ctx, span := tracer.Start(ctx, "repository.Reservation.Transition",
		trace.WithAttributes(
			attribute.String("reservation.id", t.ReservationID),
			attribute.String("reservation.to", string(t.To)),
		),
	)
	defer span.End()

	changed, err := r.next.Transition(ctx, t)
	addDBErrorToSpan(span, err)
	span.SetAttributes(attribute.Bool("reservation.changed", changed))
	return changed, err
}

func (r *tracingReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.ReservationRecord, error) {
	ctx, span := tracer.Start(ctx, "repository.Reservation.FindExpired",
		trace.WithAttributes(attribute.Int("query.limit", limit)),
	)
	defer span.End()

	reservations, err := r.next.FindExpired(ctx, now, limit)
	if err != nil {
		addDBErrorToSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("result.count", len(reservations)))
	return reservations, nil
}

func (r *tracingReservationRepository) SumActive(ctx context.Context, productID string) (int, error) {
	ctx, span := tracer.Start(ctx, "repository.Reservation.SumActive",
		trace.WithAttributes(attribute.String("reservation.product_id", productID)),
	)
	defer span.End()

	sum, err := r.next.SumActive(ctx, productID)
	addDBErrorToSpan(span, err)
	return sum, err
}

// Helper function to add database error details to span
func addDBErrorToSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("database error: %v", err))
	}
}
