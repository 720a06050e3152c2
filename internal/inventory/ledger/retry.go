package ledger

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/metrics"
	"github.com/tair/inventory-engine/pkg/logger"
)

func (l *Ledger) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = l.cfg.InitialInterval
	exp.MaxInterval = l.cfg.MaxInterval
	// Bounded by attempt count only
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(l.cfg.MaxRetries)), ctx)
}

// retry runs attempt until it succeeds, fails with something other than a
// version conflict, or the retry budget runs out. An exhausted budget is
// reported as a ConcurrencyConflictError.
func (l *Ledger) retry(ctx context.Context, op, productID string, attempt func() error) (int, error) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := attempt()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.LedgerVersionConflictsTotal.WithLabelValues(op).Inc()
			logger.Debug(ctx).
				Str("operation", op).
				Str("product_id", productID).
				Int("attempt", attempts).
				Msg("Ledger compare-and-swap lost, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, l.newBackOff(ctx))

	if errors.Is(err, domain.ErrVersionConflict) {
		return attempts, &domain.ConcurrencyConflictError{
			ProductID: productID,
			Operation: op,
			Attempts:  attempts,
		}
	}
	return attempts, err
}
