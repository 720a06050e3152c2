// Package sweeper expires ACTIVE reservations whose expiresAt has passed.
// Expiry is driven by stored data, so a restarted process picks up where the
// last tick left off.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tair/inventory-engine/internal/inventory/coordination"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/metrics"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/pkg/logger"
)

const lockName = "expiration-sweeper"

var tracer = otel.Tracer("inventory-sweeper")

type Config struct {
	Interval  time.Duration
	BatchSize int
	// LockTTL must be shorter than Interval so a crashed leader is replaced
	// by the next tick.
	LockTTL time.Duration
}

var DefaultConfig = Config{
	Interval:  30 * time.Second,
	BatchSize: 500,
	LockTTL:   25 * time.Second,
}

// Expirer is the part of the reservation manager the sweeper drives.
type Expirer interface {
	FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.ReservationRecord, error)
	Expire(ctx context.Context, id string, now time.Time) (*reservation.TransitionResult, error)
}

// TickResult summarizes one sweep.
type TickResult struct {
	Skipped bool
	Found   int
	Expired int
	Already int
	Failed  int
}

// Sweeper expires ACTIVE reservations past their deadline.
type Sweeper struct {
	expirer Expirer
	locker  coordination.Locker
	cfg     Config
	now     func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New creates a sweeper. A nil locker means this is the only replica.
func New(expirer Expirer, locker coordination.Locker, cfg Config, now func() time.Time) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.LockTTL <= 0 || cfg.LockTTL >= cfg.Interval {
		cfg.LockTTL = cfg.Interval * 5 / 6
	}
	if locker == nil {
		locker = coordination.NoopLocker{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{expirer: expirer, locker: locker, cfg: cfg, now: now}
}

// Start runs the tick loop until ctx is cancelled. It returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(logger.With(ctx, "component", "sweeper"))

	logger.Logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("batch_size", s.cfg.BatchSize).
		Msg("Expiration sweeper started")
}

// Wait blocks until the loop started by Start has exited.
func (s *Sweeper) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.done)
		s.mu.Unlock()
		logger.Logger.Info().Msg("Expiration sweeper stopped")
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx).Err(err).Msg("Sweeper tick failed")
			}
		}
	}
}

// RunOnce performs a single sweep. One reservation failing does not stop
// the rest of the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (TickResult, error) {
	ctx, span := tracer.Start(ctx, "sweeper.tick")
	defer span.End()

	lock, ok, err := s.locker.TryLock(ctx, lockName, s.cfg.LockTTL)
	if err != nil {
		metrics.SweeperRunsTotal.WithLabelValues("lock_error").Inc()
		return TickResult{}, err
	}
	if !ok {
		metrics.SweeperRunsTotal.WithLabelValues("not_leader").Inc()
		span.SetAttributes(attribute.Bool("sweeper.skipped", true))
		return TickResult{Skipped: true}, nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx).Err(err).Msg("Failed to release sweeper lock")
		}
	}()

	now := s.now()
	expired, err := s.expirer.FindExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		metrics.SweeperRunsTotal.WithLabelValues("error").Inc()
		return TickResult{}, err
	}

	result := TickResult{Found: len(expired)}
	for _, res := range expired {
		if ctx.Err() != nil {
			break
		}
		out, err := s.expirer.Expire(ctx, res.ID, now)
		switch {
		case err != nil:
			result.Failed++
			metrics.SweeperFailuresTotal.Inc()
			logger.Error(ctx).
				Err(err).
				Str("reservation_id", res.ID).
				Str("product_id", res.ProductID).
				Msg("Failed to expire reservation")
		case out.AlreadyApplied():
			result.Already++
		default:
			result.Expired++
			metrics.SweeperExpiredTotal.Inc()
		}
	}

	span.SetAttributes(
		attribute.Int("sweeper.found", result.Found),
		attribute.Int("sweeper.expired", result.Expired),
		attribute.Int("sweeper.failed", result.Failed),
	)
	metrics.SweeperRunsTotal.WithLabelValues("ok").Inc()
	if result.Found > 0 {
		logger.Info(ctx).
			Int("found", result.Found).
			Int("expired", result.Expired).
			Int("already_terminal", result.Already).
			Int("failed", result.Failed).
			Msg("Sweeper tick completed")
	}
	return result, ctx.Err()
}
