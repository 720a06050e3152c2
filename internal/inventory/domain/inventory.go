package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryRecord is the authoritative per-product quantity record.
// It is never hard-deleted; a discontinued product is zeroed instead.
type InventoryRecord struct {
	ProductID         string          `json:"product_id" gorm:"primaryKey;size:64"`
	OnHand            int             `json:"on_hand" gorm:"not null;default:0;check:chk_inventory_on_hand,on_hand >= 0"`
	Reserved          int             `json:"reserved" gorm:"not null;default:0;check:chk_inventory_reserved,reserved >= 0 AND reserved <= on_hand"`
	LowStockThreshold int             `json:"low_stock_threshold" gorm:"not null;default:0"`
	AverageUnitCost   decimal.Decimal `json:"average_unit_cost" gorm:"type:numeric(18,4);not null;default:0"`
	LastCost          decimal.Decimal `json:"last_cost" gorm:"type:numeric(18,4);not null;default:0"`
	Version           int64           `json:"version" gorm:"not null;default:0"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName specifies the table name
func (InventoryRecord) TableName() string {
	return "inventory_records"
}

// Available is what can be newly reserved.
func (r InventoryRecord) Available() int {
	return r.OnHand - r.Reserved
}

// Level returns the quantity triple.
func (r InventoryRecord) Level() StockLevel {
	return StockLevel{
		ProductID: r.ProductID,
		OnHand:    r.OnHand,
		Reserved:  r.Reserved,
		Available: r.Available(),
	}
}

// CheckInvariant verifies 0 <= reserved <= onHand.
func (r InventoryRecord) CheckInvariant() error {
	if r.OnHand < 0 || r.Reserved < 0 || r.Reserved > r.OnHand {
		return &InvariantViolationError{
			ProductID: r.ProductID,
			Detail:    "quantities out of range",
			OnHand:    r.OnHand,
			Reserved:  r.Reserved,
		}
	}
	return nil
}

// Signal classifies the record against its low-stock threshold.
func (r InventoryRecord) Signal() StockSignal {
	available := r.Available()
	switch {
	case available == 0:
		return SignalOutOfStock
	case available <= r.LowStockThreshold:
		return SignalLowStock
	default:
		return SignalHealthy
	}
}

// StockLevel is the read-only result of GetAvailable.
type StockLevel struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

// StockSignal is emitted to the notification service after mutations.
type StockSignal string

const (
	SignalHealthy    StockSignal = "HEALTHY"
	SignalLowStock   StockSignal = "LOW_STOCK"
	SignalOutOfStock StockSignal = "OUT_OF_STOCK"
)
