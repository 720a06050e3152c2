package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tair/inventory-engine/internal/inventory/domain"
)

// MovementRecorder builds the movement row for a ledger write and appends it
// through the repository of the surrounding transaction.
type MovementRecorder struct {
	now func() time.Time
}

func NewMovementRecorder(now func() time.Time) *MovementRecorder {
	if now == nil {
		now = utcNow
	}
	return &MovementRecorder{now: now}
}

// Record appends the movement that produced record. record.Version becomes the
// movement's ledger version.
func (r *MovementRecorder) Record(ctx context.Context, repo domain.MovementRepository, record domain.InventoryRecord, m Mutation, delta int) (*domain.MovementRecord, error) {
	if _, _, ok := m.Type.Effect(delta); !ok {
		return nil, fmt.Errorf("unknown movement type %q", m.Type)
	}

	actor := m.ActorID
	if actor == "" {
		actor = domain.SystemActor
	}

	movement := &domain.MovementRecord{
		ID:                uuid.New().String(),
		ProductID:         record.ProductID,
		LedgerVersion:     record.Version,
		Type:              m.Type,
		QuantityDelta:     delta,
		UnitCost:          m.UnitCost,
		ResultingOnHand:   record.OnHand,
		ResultingReserved: record.Reserved,
		ReservationID:     m.ReservationID,
		ActorID:           actor,
		Reason:            m.Reason,
		CreatedAt:         r.now(),
	}

	if err := repo.Append(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
