package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrImmutableRecord is returned by storage hooks when an append-only row is modified.
var ErrImmutableRecord = errors.New("append-only record cannot be modified")

// MovementType names a quantity-affecting event.
type MovementType string

const (
	MovementReserve        MovementType = "RESERVE"
	MovementRelease        MovementType = "RELEASE"
	MovementSale           MovementType = "SALE"
	MovementRestock        MovementType = "RESTOCK"
	MovementAdjustment     MovementType = "ADJUSTMENT"
	MovementTransferIn     MovementType = "TRANSFER_IN"
	MovementTransferOut    MovementType = "TRANSFER_OUT"
	MovementDamage         MovementType = "DAMAGE"
	MovementExpiredReserve MovementType = "EXPIRED_RESERVE"
)

// Effect returns how a movement's signed delta maps onto (onHand, reserved).
func (t MovementType) Effect(delta int) (onHand, reserved int, ok bool) {
	switch t {
	case MovementReserve, MovementRelease, MovementExpiredReserve:
		return 0, delta, true
	case MovementSale:
		// Reserved units are consumed
		return delta, delta, true
	case MovementRestock, MovementAdjustment, MovementTransferIn, MovementTransferOut, MovementDamage:
		return delta, 0, true
	default:
		return 0, 0, false
	}
}

// IsOnHandChange reports whether the type is applied through ApplyAdjustment.
func (t MovementType) IsOnHandChange() bool {
	switch t {
	case MovementRestock, MovementAdjustment, MovementTransferIn, MovementTransferOut, MovementDamage:
		return true
	}
	return false
}

// MovementRecord is an immutable audit entry. LedgerVersion is the InventoryRecord
// version produced by the mutation, so (product_id, ledger_version) orders replay.
type MovementRecord struct {
	ID                string              `json:"movement_id" gorm:"primaryKey;size:36"`
	ProductID         string              `json:"product_id" gorm:"size:64;not null;uniqueIndex:idx_movements_product_version,priority:1"`
	LedgerVersion     int64               `json:"ledger_version" gorm:"not null;uniqueIndex:idx_movements_product_version,priority:2"`
	Type              MovementType        `json:"type" gorm:"size:24;not null;index"`
	QuantityDelta     int                 `json:"quantity_delta" gorm:"not null"`
	UnitCost          decimal.NullDecimal `json:"unit_cost" gorm:"type:numeric(18,4)"`
	ResultingOnHand   int                 `json:"resulting_on_hand" gorm:"not null"`
	ResultingReserved int                 `json:"resulting_reserved" gorm:"not null"`
	ReservationID     string              `json:"reservation_id,omitempty" gorm:"size:36;index"`
	ActorID           string              `json:"actor_id" gorm:"size:64;not null"`
	Reason            string              `json:"reason,omitempty" gorm:"size:255"`
	CreatedAt         time.Time           `json:"created_at" gorm:"not null;index"`
}

// TableName specifies the table name
func (MovementRecord) TableName() string {
	return "inventory_movements"
}

// BeforeUpdate rejects any update of a movement row.
func (m *MovementRecord) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableRecord
}

// BeforeDelete rejects any deletion of a movement row.
func (m *MovementRecord) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableRecord
}

// SystemActor is recorded on movements produced by automated flows.
const SystemActor = "system"
