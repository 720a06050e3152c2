package domain

import (
	"time"

	"gorm.io/gorm"
)

// AdjustmentType is the reason code of a manual correction.
type AdjustmentType string

const (
	AdjustmentRecount    AdjustmentType = "RECOUNT"
	AdjustmentDamage     AdjustmentType = "DAMAGE"
	AdjustmentTheft      AdjustmentType = "THEFT"
	AdjustmentExpiry     AdjustmentType = "EXPIRY"
	AdjustmentCorrection AdjustmentType = "CORRECTION"
)

// ParseAdjustmentType validates a wire value.
func ParseAdjustmentType(s string) (AdjustmentType, error) {
	switch t := AdjustmentType(s); t {
	case AdjustmentRecount, AdjustmentDamage, AdjustmentTheft, AdjustmentExpiry, AdjustmentCorrection:
		return t, nil
	}
	return "", &ValidationError{Field: "adjustment_type", Message: "unknown adjustment type " + s}
}

// RequiresDecrease is true for types that can only remove stock.
func (t AdjustmentType) RequiresDecrease() bool {
	return t == AdjustmentDamage || t == AdjustmentTheft || t == AdjustmentExpiry
}

// AdjustmentRecord accompanies the ADJUSTMENT movement written for a manual correction.
type AdjustmentRecord struct {
	ID              string         `json:"adjustment_id" gorm:"primaryKey;size:36"`
	MovementID      string         `json:"movement_id" gorm:"size:36;not null;uniqueIndex"`
	ProductID       string         `json:"product_id" gorm:"size:64;not null;index"`
	AdjustmentType  AdjustmentType `json:"adjustment_type" gorm:"size:16;not null"`
	Quantity        int            `json:"quantity" gorm:"not null"`
	Reason          string         `json:"reason" gorm:"size:255;not null"`
	ActorID         string         `json:"actor_id" gorm:"size:64;not null"`
	ResultingOnHand int            `json:"resulting_on_hand" gorm:"not null"`
	CreatedAt       time.Time      `json:"created_at"`
}

// TableName specifies the table name
func (AdjustmentRecord) TableName() string {
	return "inventory_adjustments"
}

// BeforeUpdate rejects any update of an adjustment row.
func (a *AdjustmentRecord) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableRecord
}

// BeforeDelete rejects any deletion of an adjustment row.
func (a *AdjustmentRecord) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableRecord
}
