package grpc

import "time"

type ReserveRequest struct {
	ProductID      string `json:"product_id"`
	Quantity       int32  `json:"quantity"`
	TTLSeconds     int64  `json:"ttl_seconds,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	CartID         string `json:"cart_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type Reservation struct {
	ReservationID string    `json:"reservation_id"`
	ProductID     string    `json:"product_id"`
	Quantity      int32     `json:"quantity"`
	State         string    `json:"state"`
	ExpiresAt     time.Time `json:"expires_at"`
	OrderID       string    `json:"order_id,omitempty"`
	CartID        string    `json:"cart_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReserveResponse struct {
	Reservation *Reservation `json:"reservation"`
	Replayed    bool         `json:"replayed"`
}

type ReservationIDRequest struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason,omitempty"`
}

type TransitionResponse struct {
	Reservation    *Reservation `json:"reservation"`
	AlreadyApplied bool         `json:"already_applied"`
	MovementID     string       `json:"movement_id,omitempty"`
}

type AvailabilityRequest struct {
	ProductID string `json:"product_id"`
}

type AvailabilityResponse struct {
	ProductID string `json:"product_id"`
	OnHand    int32  `json:"on_hand"`
	Reserved  int32  `json:"reserved"`
	Available int32  `json:"available"`
	Signal    string `json:"signal"`
}
