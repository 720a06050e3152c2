// Package reservation runs the hold lifecycle
// (none) -> ACTIVE -> {CONFIRMED | RELEASED | EXPIRED} on top of the ledger.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tair/inventory-engine/internal/inventory/coordination"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/metrics"
	"github.com/tair/inventory-engine/pkg/logger"
)

type Config struct {
	DefaultTTL     time.Duration
	MaxTTL         time.Duration
	IdempotencyTTL time.Duration
}

var DefaultConfig = Config{
	DefaultTTL:     15 * time.Minute,
	MaxTTL:         2 * time.Hour,
	IdempotencyTTL: 24 * time.Hour,
}

// TransitionStatus tells an applied transition from a benign repeat.
type TransitionStatus string

const (
	StatusApplied         TransitionStatus = "APPLIED"
	StatusAlreadyTerminal TransitionStatus = "ALREADY_TERMINAL"
)

type TransitionResult struct {
	Status      TransitionStatus
	Reservation domain.ReservationRecord
	// Movement is nil when nothing was applied.
	Movement *domain.MovementRecord
}

// AlreadyApplied reports a no-op on a terminal reservation.
func (r *TransitionResult) AlreadyApplied() bool {
	return r.Status == StatusAlreadyTerminal
}

type ReserveRequest struct {
	ProductID   string
	Quantity    int
	TTL         time.Duration
	Correlation domain.Correlation
	Reason      string
	// IdempotencyKey makes a retried checkout return the original hold.
	IdempotencyKey string
}

type ReserveResult struct {
	Reservation domain.ReservationRecord
	// Replayed is set when the idempotency key matched an earlier call.
	Replayed bool
}

// Manager places and finalizes time-boxed holds on available stock.
type Manager struct {
	ledger      *ledger.Ledger
	scope       domain.TransactionScope
	idempotency coordination.IdempotencyStore
	cfg         Config
}

// NewManager wires a manager. idempotency may be nil, in which case keys are ignored.
func NewManager(l *ledger.Ledger, scope domain.TransactionScope, idempotency coordination.IdempotencyStore, cfg Config) *Manager {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig.DefaultTTL
	}
	if cfg.MaxTTL < cfg.DefaultTTL {
		cfg.MaxTTL = cfg.DefaultTTL
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultConfig.IdempotencyTTL
	}
	return &Manager{ledger: l, scope: scope, idempotency: idempotency, cfg: cfg}
}

// Reserve places an ACTIVE hold. On InsufficientStock nothing is written.
func (m *Manager) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	ttl, err := m.ttl(req.TTL)
	if err != nil {
		return nil, err
	}
	if req.ProductID == "" {
		return nil, domain.NewValidationError("product_id", "is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}

	id := uuid.New().String()

	claimed := false
	if req.IdempotencyKey != "" && m.idempotency != nil {
		replay, ok, err := m.claim(ctx, req, id)
		if err != nil || replay != nil {
			return replay, err
		}
		claimed = ok
	}

	now := m.ledger.Now()
	record := domain.ReservationRecord{
		ID:        id,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		State:     domain.ReservationActive,
		ExpiresAt: now.Add(ttl),
		OrderID:   req.Correlation.OrderID,
		CartID:    req.Correlation.CartID,
		Reason:    req.Reason,
		CreatedAt: now,
	}

	_, err = m.ledger.TryReserve(ctx, req.ProductID, req.Quantity, ledger.Mutation{
		ReservationID: id,
		Reason:        req.Reason,
		Within: func(ctx context.Context, repos domain.Repositories, _ *ledger.Result) error {
			return repos.Reservations().Create(ctx, &record)
		},
	})
	if err != nil {
		if claimed {
			if ferr := m.idempotency.Forget(ctx, req.IdempotencyKey, id); ferr != nil {
				logger.Warn(ctx).Err(ferr).Str("idempotency_key", req.IdempotencyKey).Msg("Failed to release idempotency key")
			}
		}
		result := "error"
		if errors.Is(err, domain.ErrInsufficientStock) {
			result = "insufficient_stock"
		}
		metrics.ReservationTransitionsTotal.WithLabelValues(string(domain.ReservationActive), result).Inc()
		return nil, err
	}

	metrics.ReservationTransitionsTotal.WithLabelValues(string(domain.ReservationActive), "applied").Inc()
	logger.Info(ctx).
		Str("reservation_id", id).
		Str("product_id", req.ProductID).
		Int("quantity", req.Quantity).
		Time("expires_at", record.ExpiresAt).
		Msg("Reservation created")

	return &ReserveResult{Reservation: record}, nil
}

// claim returns a non-nil result when the key belongs to an earlier call.
func (m *Manager) claim(ctx context.Context, req ReserveRequest, id string) (*ReserveResult, bool, error) {
	stored, claimed, err := m.idempotency.Claim(ctx, req.IdempotencyKey, id, m.cfg.IdempotencyTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if claimed {
		return nil, true, nil
	}

	existing, err := m.Get(ctx, stored)
	if errors.Is(err, domain.ErrReservationNotFound) {
		// The first call has not committed yet
		return nil, false, domain.ErrDuplicateRequest
	}
	if err != nil {
		return nil, false, err
	}
	if existing.ProductID != req.ProductID || existing.Quantity != req.Quantity {
		return nil, false, domain.NewValidationError("idempotency_key", "already used for a different reservation")
	}

	logger.Debug(ctx).
		Str("reservation_id", existing.ID).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("Reserve replayed from idempotency key")
	return &ReserveResult{Reservation: *existing, Replayed: true}, false, nil
}

func (m *Manager) ttl(requested time.Duration) (time.Duration, error) {
	switch {
	case requested == 0:
		return m.cfg.DefaultTTL, nil
	case requested < 0:
		return 0, domain.NewValidationError("ttl", "must be positive")
	case requested > m.cfg.MaxTTL:
		return 0, domain.NewValidationError("ttl", fmt.Sprintf("must not exceed %s", m.cfg.MaxTTL))
	}
	return requested, nil
}

// Get loads a reservation.
func (m *Manager) Get(ctx context.Context, id string) (*domain.ReservationRecord, error) {
	return m.scope.Repositories().Reservations().FindByID(ctx, id)
}

// Confirm consumes the held units as a sale.
func (m *Manager) Confirm(ctx context.Context, id string) (*TransitionResult, error) {
	return m.finalize(ctx, id, domain.ReservationConfirmed, "", time.Time{})
}

// Release returns the held units to available stock.
func (m *Manager) Release(ctx context.Context, id, reason string) (*TransitionResult, error) {
	return m.finalize(ctx, id, domain.ReservationReleased, reason, time.Time{})
}

// Expire releases a hold whose expiresAt is before now, recorded as
// EXPIRED_RESERVE. Only the sweeper calls it.
func (m *Manager) Expire(ctx context.Context, id string, now time.Time) (*TransitionResult, error) {
	return m.finalize(ctx, id, domain.ReservationExpired, "reservation expired", now)
}

// FindExpired lists ACTIVE holds with expiresAt before now, oldest first.
func (m *Manager) FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.ReservationRecord, error) {
	return m.scope.Repositories().Reservations().FindExpired(ctx, now, limit)
}

func (m *Manager) finalize(ctx context.Context, id string, to domain.ReservationState, reason string, expiredBefore time.Time) (*TransitionResult, error) {
	res, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.State.IsTerminal() {
		return m.alreadyTerminal(ctx, *res, to), nil
	}
	if to == domain.ReservationExpired && !res.IsExpiredAt(expiredBefore) {
		return nil, domain.ErrNotYetExpired
	}

	at := m.ledger.Now()
	mutation := ledger.Mutation{
		ReservationID: id,
		Reason:        reason,
		// The conditional transition goes first so a losing finalizer stops
		// before the quantity checks.
		Guard: func(ctx context.Context, repos domain.Repositories) error {
			changed, err := repos.Reservations().Transition(ctx, domain.Transition{
				ReservationID: id,
				To:            to,
				At:            at,
				Reason:        reason,
				ExpiredBefore: expiredBefore,
			})
			if err != nil {
				return err
			}
			if !changed {
				return domain.ErrAlreadyTerminal
			}
			return nil
		},
	}

	var result *ledger.Result
	switch to {
	case domain.ReservationConfirmed:
		result, err = m.ledger.CommitReservation(ctx, res.ProductID, res.Quantity, mutation)
	case domain.ReservationExpired:
		mutation.Type = domain.MovementExpiredReserve
		result, err = m.ledger.ReleaseReservation(ctx, res.ProductID, res.Quantity, mutation)
	default:
		mutation.Type = domain.MovementRelease
		result, err = m.ledger.ReleaseReservation(ctx, res.ProductID, res.Quantity, mutation)
	}

	if errors.Is(err, domain.ErrAlreadyTerminal) {
		// Lost the race to another finalizer
		current, gerr := m.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return m.alreadyTerminal(ctx, *current, to), nil
	}
	if err != nil {
		metrics.ReservationTransitionsTotal.WithLabelValues(string(to), "error").Inc()
		return nil, err
	}

	res.State = to
	res.FinalizedAt = &at
	if reason != "" {
		res.Reason = reason
	}
	metrics.ReservationTransitionsTotal.WithLabelValues(string(to), "applied").Inc()
	logger.Info(ctx).
		Str("reservation_id", id).
		Str("product_id", res.ProductID).
		Str("state", string(to)).
		Int("quantity", res.Quantity).
		Msg("Reservation finalized")

	return &TransitionResult{Status: StatusApplied, Reservation: *res, Movement: &result.Movement}, nil
}

func (m *Manager) alreadyTerminal(ctx context.Context, res domain.ReservationRecord, requested domain.ReservationState) *TransitionResult {
	metrics.ReservationTransitionsTotal.WithLabelValues(string(requested), "already_terminal").Inc()
	logger.Debug(ctx).
		Str("reservation_id", res.ID).
		Str("state", string(res.State)).
		Str("requested", string(requested)).
		Msg("Reservation already terminal")
	return &TransitionResult{Status: StatusAlreadyTerminal, Reservation: res}
}
