// Package ledger owns the authoritative per-product quantity record. Every
// mutation re-reads the record, validates it and writes it back with a
// version compare-and-swap together with exactly one movement, in one
// transaction.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/metrics"
	"github.com/tair/inventory-engine/pkg/logger"
)

var tracer = otel.Tracer("inventory-ledger")

// Config bounds the compare-and-swap retry loop.
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig is used when a zero Config is passed to New.
var DefaultConfig = Config{
	MaxRetries:      5,
	InitialInterval: 10 * time.Millisecond,
	MaxInterval:     250 * time.Millisecond,
}

// Mutation describes the movement written with a ledger change.
type Mutation struct {
	Type          domain.MovementType
	ActorID       string
	Reason        string
	ReservationID string
	UnitCost      decimal.NullDecimal
	// Guard runs first inside the ledger transaction, before the record is
	// read. An error aborts the whole transaction.
	Guard func(ctx context.Context, repos domain.Repositories) error
	// Within runs inside the ledger transaction after the record and movement
	// are written. An error aborts the whole transaction.
	Within func(ctx context.Context, repos domain.Repositories, result *Result) error
}

// Result is the committed record and the movement that produced it.
type Result struct {
	Record   domain.InventoryRecord
	Movement domain.MovementRecord
}

// Ledger owns every quantity change of an InventoryRecord. Each mutation is a
// version compare-and-swap committed together with its movement.
type Ledger struct {
	scope     domain.TransactionScope
	recorder  *MovementRecorder
	publisher domain.StockEventPublisher
	cfg       Config
	now       func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPublisher sets where low and out-of-stock signals go.
func WithPublisher(p domain.StockEventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// New creates a new ledger over scope
func New(scope domain.TransactionScope, cfg Config, opts ...Option) *Ledger {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultConfig.InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}

	l := &Ledger{
		scope:     scope,
		publisher: domain.NopPublisher{},
		cfg:       cfg,
		now:       utcNow,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.recorder = NewMovementRecorder(l.now)
	return l
}

// Now is the ledger clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// GetAvailable is read-only.
func (l *Ledger) GetAvailable(ctx context.Context, productID string) (domain.StockLevel, error) {
	record, err := l.Get(ctx, productID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return record.Level(), nil
}

// Get returns the full record.
func (l *Ledger) Get(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	return l.scope.Repositories().Inventory().FindByProductID(ctx, productID)
}

// List pages through records ordered by product id.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]domain.InventoryRecord, error) {
	return l.scope.Repositories().Inventory().FindAll(ctx, limit, offset)
}

// Movements pages through a product's movement history in ledger order.
func (l *Ledger) Movements(ctx context.Context, productID string, limit, offset int) ([]domain.MovementRecord, error) {
	if _, err := l.Get(ctx, productID); err != nil {
		return nil, err
	}
	return l.scope.Repositories().Movements().ListByProduct(ctx, productID, limit, offset)
}

// TryReserve moves qty from available to reserved, or fails with an
// InsufficientStockError carrying the available count. This is the only
// place oversell is prevented.
func (l *Ledger) TryReserve(ctx context.Context, productID string, qty int, m Mutation) (*Result, error) {
	if qty <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}
	m.Type = domain.MovementReserve

	return l.mutate(ctx, "try_reserve", productID, m, func(rec *domain.InventoryRecord) (int, error) {
		if available := rec.Available(); available < qty {
			return 0, &domain.InsufficientStockError{
				ProductID: productID,
				Requested: qty,
				Available: available,
			}
		}
		rec.Reserved += qty
		return qty, nil
	})
}

// CommitReservation consumes reserved units as a sale.
func (l *Ledger) CommitReservation(ctx context.Context, productID string, qty int, m Mutation) (*Result, error) {
	if qty <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}
	m.Type = domain.MovementSale

	return l.mutate(ctx, "commit_reservation", productID, m, func(rec *domain.InventoryRecord) (int, error) {
		if rec.Reserved < qty {
			return 0, &domain.InvariantViolationError{
				ProductID: productID,
				Operation: "commit_reservation",
				Detail:    "reserved is below the committed quantity",
				OnHand:    rec.OnHand,
				Reserved:  rec.Reserved,
				Quantity:  qty,
			}
		}
		rec.OnHand -= qty
		rec.Reserved -= qty
		return -qty, nil
	})
}

// ReleaseReservation returns reserved units to available. m.Type must be
// RELEASE or EXPIRED_RESERVE; it defaults to RELEASE.
func (l *Ledger) ReleaseReservation(ctx context.Context, productID string, qty int, m Mutation) (*Result, error) {
	if qty <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}
	switch m.Type {
	case "":
		m.Type = domain.MovementRelease
	case domain.MovementRelease, domain.MovementExpiredReserve:
	default:
		return nil, domain.NewValidationError("type", "release must be RELEASE or EXPIRED_RESERVE")
	}

	return l.mutate(ctx, "release_reservation", productID, m, func(rec *domain.InventoryRecord) (int, error) {
		if rec.Reserved < qty {
			return 0, &domain.InvariantViolationError{
				ProductID: productID,
				Operation: "release_reservation",
				Detail:    "reserved is below the released quantity",
				OnHand:    rec.OnHand,
				Reserved:  rec.Reserved,
				Quantity:  qty,
			}
		}
		rec.Reserved -= qty
		return -qty, nil
	})
}

// ApplyAdjustment adds delta to on-hand. m.Type must be an on-hand movement
// type; it defaults to ADJUSTMENT. A RESTOCK carrying a unit cost also
// updates lastCost and the weighted average cost.
func (l *Ledger) ApplyAdjustment(ctx context.Context, productID string, delta int, m Mutation) (*Result, error) {
	if delta == 0 {
		return nil, domain.NewValidationError("quantity", "must not be zero")
	}
	if m.Type == "" {
		m.Type = domain.MovementAdjustment
	}
	if !m.Type.IsOnHandChange() {
		return nil, domain.NewValidationError("type", "movement type "+string(m.Type)+" does not change on-hand")
	}
	if err := validateDirection(m.Type, delta); err != nil {
		return nil, err
	}
	if m.UnitCost.Valid && m.UnitCost.Decimal.IsNegative() {
		return nil, domain.NewValidationError("unit_cost", "must not be negative")
	}

	return l.mutate(ctx, "apply_adjustment", productID, m, func(rec *domain.InventoryRecord) (int, error) {
		if rec.OnHand+delta < rec.Reserved {
			return 0, &domain.NegativeStockError{
				ProductID: productID,
				OnHand:    rec.OnHand,
				Reserved:  rec.Reserved,
				Delta:     delta,
			}
		}
		if m.Type == domain.MovementRestock && delta > 0 && m.UnitCost.Valid {
			rec.AverageUnitCost = WeightedAverageCost(rec.AverageUnitCost, rec.OnHand, m.UnitCost.Decimal, delta)
			rec.LastCost = m.UnitCost.Decimal
		}
		rec.OnHand += delta
		return delta, nil
	})
}

func validateDirection(t domain.MovementType, delta int) error {
	switch t {
	case domain.MovementRestock, domain.MovementTransferIn:
		if delta < 0 {
			return domain.NewValidationError("quantity", string(t)+" must be positive")
		}
	case domain.MovementTransferOut, domain.MovementDamage:
		if delta > 0 {
			return domain.NewValidationError("quantity", string(t)+" must be negative")
		}
	}
	return nil
}

// WeightedAverageCost blends the current average over onHand units with
// qty units bought at cost.
func WeightedAverageCost(avg decimal.Decimal, onHand int, cost decimal.Decimal, qty int) decimal.Decimal {
	if onHand <= 0 {
		return cost.Round(4)
	}
	total := avg.Mul(decimal.NewFromInt(int64(onHand))).Add(cost.Mul(decimal.NewFromInt(int64(qty))))
	return total.Div(decimal.NewFromInt(int64(onHand + qty))).Round(4)
}

// InitializeParams opens a product in the ledger.
type InitializeParams struct {
	ProductID         string
	OnHand            int
	LowStockThreshold int
	UnitCost          decimal.NullDecimal
	ActorID           string
	Reason            string
}

// Initialize creates the record for a newly stocked product. A non-zero
// opening quantity is written as a RESTOCK movement at version 1.
func (l *Ledger) Initialize(ctx context.Context, p InitializeParams) (*domain.InventoryRecord, error) {
	switch {
	case p.ProductID == "":
		return nil, domain.NewValidationError("product_id", "is required")
	case p.OnHand < 0:
		return nil, domain.NewValidationError("on_hand", "must not be negative")
	case p.LowStockThreshold < 0:
		return nil, domain.NewValidationError("low_stock_threshold", "must not be negative")
	case p.UnitCost.Valid && p.UnitCost.Decimal.IsNegative():
		return nil, domain.NewValidationError("unit_cost", "must not be negative")
	}

	ctx, span := tracer.Start(ctx, "ledger.initialize",
		trace.WithAttributes(
			attribute.String("inventory.product_id", p.ProductID),
			attribute.Int("inventory.on_hand", p.OnHand),
		),
	)
	defer span.End()

	now := l.now()
	record := domain.InventoryRecord{
		ProductID:         p.ProductID,
		OnHand:            p.OnHand,
		LowStockThreshold: p.LowStockThreshold,
		AverageUnitCost:   decimal.Zero,
		LastCost:          decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.UnitCost.Valid {
		record.AverageUnitCost = p.UnitCost.Decimal.Round(4)
		record.LastCost = p.UnitCost.Decimal
	}
	if p.OnHand > 0 {
		record.Version = 1
	}

	err := l.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Inventory().Create(ctx, &record); err != nil {
			return err
		}
		if p.OnHand == 0 {
			return nil
		}
		m := Mutation{Type: domain.MovementRestock, ActorID: p.ActorID, Reason: p.Reason, UnitCost: p.UnitCost}
		if m.Reason == "" {
			m.Reason = "opening stock"
		}
		_, err := l.recorder.Record(ctx, repos.Movements(), record, m, p.OnHand)
		return err
	})
	l.observe(ctx, span, "initialize", p.ProductID, err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx).
		Str("product_id", p.ProductID).
		Int("on_hand", p.OnHand).
		Msg("Inventory record initialized")

	l.publish(ctx, record, domain.MovementRestock)
	return &record, nil
}

// UpdateThreshold changes the low-stock threshold. It is not a quantity
// change, so no movement is written and the version is unchanged.
func (l *Ledger) UpdateThreshold(ctx context.Context, productID string, threshold int) (*domain.InventoryRecord, error) {
	if threshold < 0 {
		return nil, domain.NewValidationError("low_stock_threshold", "must not be negative")
	}

	var record *domain.InventoryRecord
	err := l.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Inventory().UpdateThreshold(ctx, productID, threshold); err != nil {
			return err
		}
		var err error
		record, err = repos.Inventory().FindByProductID(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

type step func(rec *domain.InventoryRecord) (delta int, err error)

// mutate runs read, validate, compare-and-swap and movement append as one
// transaction, retrying the whole sequence on a lost compare-and-swap.
func (l *Ledger) mutate(ctx context.Context, op, productID string, m Mutation, apply step) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ledger."+op,
		trace.WithAttributes(
			attribute.String("inventory.product_id", productID),
			attribute.String("movement.type", string(m.Type)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.LedgerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var result *Result
	attempts, err := l.retry(ctx, op, productID, func() error {
		result = nil
		return l.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
			if m.Guard != nil {
				if err := m.Guard(ctx, repos); err != nil {
					return err
				}
			}

			current, err := repos.Inventory().FindByProductID(ctx, productID)
			if err != nil {
				return err
			}
			if err := current.CheckInvariant(); err != nil {
				return err
			}

			next := *current
			delta, err := apply(&next)
			if err != nil {
				return err
			}
			next.Version = current.Version + 1
			next.UpdatedAt = l.now()
			if err := next.CheckInvariant(); err != nil {
				return err
			}

			if err := repos.Inventory().CompareAndSwap(ctx, &next, current.Version); err != nil {
				return err
			}
			movement, err := l.recorder.Record(ctx, repos.Movements(), next, m, delta)
			if err != nil {
				return err
			}

			res := &Result{Record: next, Movement: *movement}
			if m.Within != nil {
				if err := m.Within(ctx, repos, res); err != nil {
					return err
				}
			}
			result = res
			return nil
		})
	})
	span.SetAttributes(attribute.Int("ledger.attempts", attempts))
	l.observe(ctx, span, op, productID, err)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("inventory.on_hand", result.Record.OnHand),
		attribute.Int("inventory.reserved", result.Record.Reserved),
		attribute.Int64("inventory.version", result.Record.Version),
	)
	l.publish(ctx, result.Record, m.Type)
	return result, nil
}

// observe records the outcome of an operation. Expected business outcomes
// are not span errors.
func (l *Ledger) observe(ctx context.Context, span trace.Span, op, productID string, err error) {
	outcome := outcomeOf(err)
	metrics.LedgerOperationsTotal.WithLabelValues(op, outcome).Inc()

	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrInvariantViolation):
		metrics.InvariantViolationsTotal.WithLabelValues(op).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Critical(ctx).
			Err(err).
			Str("operation", op).
			Str("product_id", productID).
			Msg("Ledger invariant violated, operation aborted")
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrNegativeStock),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInventoryNotFound),
		errors.Is(err, domain.ErrInventoryExists):
		span.SetAttributes(attribute.String("ledger.outcome", outcome))
		logger.Debug(ctx).
			Err(err).
			Str("operation", op).
			Str("product_id", productID).
			Msg("Ledger operation rejected")
	case errors.Is(err, domain.ErrConcurrencyConflict):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn(ctx).
			Err(err).
			Str("operation", op).
			Str("product_id", productID).
			Msg("Ledger retry budget exhausted")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(ctx).
			Err(err).
			Str("operation", op).
			Str("product_id", productID).
			Msg("Ledger operation failed")
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNegativeStock):
		return "negative_stock"
	case errors.Is(err, domain.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInventoryNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInventoryExists):
		return "exists"
	default:
		return "error"
	}
}

// publish emits a stock signal after commit. Delivery failures never undo
// a committed mutation.
func (l *Ledger) publish(ctx context.Context, record domain.InventoryRecord, movementType domain.MovementType) {
	signal := record.Signal()
	if signal == domain.SignalHealthy {
		return
	}

	event := domain.NewStockLevelEvent(record, movementType, l.now())
	if err := l.publisher.PublishStockLevel(ctx, event); err != nil {
		metrics.StockEventsTotal.WithLabelValues(string(signal), "error").Inc()
		logger.Warn(ctx).
			Err(err).
			Str("product_id", record.ProductID).
			Str("signal", string(signal)).
			Msg("Failed to publish stock level event")
		return
	}
	metrics.StockEventsTotal.WithLabelValues(string(signal), "ok").Inc()
}
