package domain

import (
	"context"
	"time"
)

// StockLevelEvent is published after a committed mutation leaves a product
// low or out of stock.
type StockLevelEvent struct {
	ProductID         string       `json:"product_id"`
	Signal            StockSignal  `json:"signal"`
	OnHand            int          `json:"on_hand"`
	Reserved          int          `json:"reserved"`
	Available         int          `json:"available"`
	LowStockThreshold int          `json:"low_stock_threshold"`
	Version           int64        `json:"version"`
	MovementType      MovementType `json:"movement_type"`
	OccurredAt        time.Time    `json:"occurred_at"`
}

// NewStockLevelEvent builds the event for a record after a movement of the given type.
func NewStockLevelEvent(record InventoryRecord, movementType MovementType, at time.Time) StockLevelEvent {
	return StockLevelEvent{
		ProductID:         record.ProductID,
		Signal:            record.Signal(),
		OnHand:            record.OnHand,
		Reserved:          record.Reserved,
		Available:         record.Available(),
		LowStockThreshold: record.LowStockThreshold,
		Version:           record.Version,
		MovementType:      movementType,
		OccurredAt:        at,
	}
}

// StockEventPublisher delivers stock signals to the notification service.
type StockEventPublisher interface {
	PublishStockLevel(ctx context.Context, event StockLevelEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishStockLevel(context.Context, StockLevelEvent) error { return nil }
