package ledger

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/metrics"
	"github.com/tair/inventory-engine/pkg/logger"
)

// ReplayResult is the fold of a movement history.
type ReplayResult struct {
	OnHand        int
	Reserved      int
	LastVersion   int64
	Count         int
	Discrepancies []string
}

// Replay folds movements in ledger-version order from an empty record and
// checks that each movement's resulting quantities match the fold.
func Replay(movements []domain.MovementRecord) ReplayResult {
	ordered := make([]domain.MovementRecord, len(movements))
	copy(ordered, movements)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LedgerVersion < ordered[j].LedgerVersion
	})

	var out ReplayResult
	for i, m := range ordered {
		expectedVersion := int64(i + 1)
		if m.LedgerVersion != expectedVersion {
			out.Discrepancies = append(out.Discrepancies,
				fmt.Sprintf("movement %s: ledger version %d, expected %d", m.ID, m.LedgerVersion, expectedVersion))
		}

		dOnHand, dReserved, ok := m.Type.Effect(m.QuantityDelta)
		if !ok {
			out.Discrepancies = append(out.Discrepancies,
				fmt.Sprintf("movement %s: unknown type %q", m.ID, m.Type))
			continue
		}
		out.OnHand += dOnHand
		out.Reserved += dReserved

		if out.OnHand != m.ResultingOnHand || out.Reserved != m.ResultingReserved {
			out.Discrepancies = append(out.Discrepancies,
				fmt.Sprintf("movement %s: replay gives on_hand=%d reserved=%d, recorded on_hand=%d reserved=%d",
					m.ID, out.OnHand, out.Reserved, m.ResultingOnHand, m.ResultingReserved))
		}
		if out.OnHand < 0 || out.Reserved < 0 || out.Reserved > out.OnHand {
			out.Discrepancies = append(out.Discrepancies,
				fmt.Sprintf("movement %s: replay leaves on_hand=%d reserved=%d", m.ID, out.OnHand, out.Reserved))
		}
		out.LastVersion = m.LedgerVersion
		out.Count++
	}
	return out
}

// AuditReport compares a product's record with its replayed history.
type AuditReport struct {
	ProductID      string            `json:"product_id"`
	Consistent     bool              `json:"consistent"`
	Current        domain.StockLevel `json:"current"`
	Replayed       domain.StockLevel `json:"replayed"`
	Version        int64             `json:"version"`
	MovementCount  int               `json:"movement_count"`
	ActiveReserved int               `json:"active_reserved"`
	Discrepancies  []string          `json:"discrepancies,omitempty"`
}

// Audit replays a product's movements from one read snapshot and checks the
// result against the record, the version counter and the ACTIVE reservations.
func (l *Ledger) Audit(ctx context.Context, productID string) (*AuditReport, error) {
	ctx, span := tracer.Start(ctx, "ledger.audit",
		trace.WithAttributes(attribute.String("inventory.product_id", productID)),
	)
	defer span.End()

	var report *AuditReport
	err := l.scope.Snapshot(ctx, func(ctx context.Context, repos domain.Repositories) error {
		record, err := repos.Inventory().FindByProductID(ctx, productID)
		if err != nil {
			return err
		}
		movements, err := repos.Movements().ListByProduct(ctx, productID, 0, 0)
		if err != nil {
			return err
		}
		activeReserved, err := repos.Reservations().SumActive(ctx, productID)
		if err != nil {
			return err
		}
		report = buildReport(*record, movements, activeReserved)
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("audit.consistent", report.Consistent),
		attribute.Int("audit.movements", report.MovementCount),
	)
	if !report.Consistent {
		metrics.InvariantViolationsTotal.WithLabelValues("audit").Inc()
		logger.Critical(ctx).
			Str("product_id", productID).
			Strs("discrepancies", report.Discrepancies).
			Msg("Inventory record diverged from movement history")
	}
	return report, nil
}

func buildReport(record domain.InventoryRecord, movements []domain.MovementRecord, activeReserved int) *AuditReport {
	replay := Replay(movements)

	report := &AuditReport{
		ProductID: record.ProductID,
		Current:   record.Level(),
		Replayed: domain.StockLevel{
			ProductID: record.ProductID,
			OnHand:    replay.OnHand,
			Reserved:  replay.Reserved,
			Available: replay.OnHand - replay.Reserved,
		},
		Version:        record.Version,
		MovementCount:  replay.Count,
		ActiveReserved: activeReserved,
		Discrepancies:  replay.Discrepancies,
	}

	if replay.OnHand != record.OnHand || replay.Reserved != record.Reserved {
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("record on_hand=%d reserved=%d, replay on_hand=%d reserved=%d",
				record.OnHand, record.Reserved, replay.OnHand, replay.Reserved))
	}
	if int64(len(movements)) != record.Version {
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("record version %d, %d movements", record.Version, len(movements)))
	}
	if activeReserved != record.Reserved {
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("record reserved=%d, active reservations hold %d", record.Reserved, activeReserved))
	}
	if err := record.CheckInvariant(); err != nil {
		report.Discrepancies = append(report.Discrepancies, err.Error())
	}

	report.Consistent = len(report.Discrepancies) == 0
	return report
}
