package kafka

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tair/inventory-engine/internal/inventory/domain"
)

// ProductCreatedEvent is announced by the catalog when a sellable product appears
type ProductCreatedEvent struct {
	EventID           string              `json:"event_id"`
	EventType         string              `json:"event_type"`
	ProductID         string              `json:"product_id"`
	InitialStock      int                 `json:"initial_stock"`
	LowStockThreshold int                 `json:"low_stock_threshold"`
	UnitCost          decimal.NullDecimal `json:"unit_cost"`
	Timestamp         time.Time           `json:"timestamp"`
}

// OrderPaidEvent confirms the holds placed for an order
type OrderPaidEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	OrderID        string    `json:"order_id"`
	ReservationIDs []string  `json:"reservation_ids"`
	Timestamp      time.Time `json:"timestamp"`
}

// OrderCancelledEvent releases the holds placed for an order
type OrderCancelledEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	OrderID        string    `json:"order_id"`
	ReservationIDs []string  `json:"reservation_ids"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// StockLevelChangedEvent tells the notification service a product is low or out of stock
type StockLevelChangedEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	domain.StockLevelEvent
}

// Event types
const (
	EventTypeProductCreated    = "product.created"
	EventTypeOrderPaid         = "order.paid"
	EventTypeOrderCancelled    = "order.cancelled"
	EventTypeStockLevelChanged = "stock.level_changed"
)

// Kafka topics
const (
	TopicCatalogProducts = "catalog-products"
	TopicOrderEvents     = "order-events"
	TopicStockEvents     = "inventory-stock-events"
)

// Header keys
const (
	HeaderEventType   = "event_type"
	HeaderEventID     = "event_id"
	HeaderContentType = "content-type"
)
