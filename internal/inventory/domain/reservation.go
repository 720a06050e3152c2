package domain

import "time"

// ReservationState is the lifecycle state of a hold.
type ReservationState string

const (
	ReservationActive    ReservationState = "ACTIVE"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationReleased  ReservationState = "RELEASED"
	ReservationExpired   ReservationState = "EXPIRED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ReservationState) IsTerminal() bool {
	return s == ReservationConfirmed || s == ReservationReleased || s == ReservationExpired
}

// Correlation links a reservation to the checkout that created it. Both fields are optional.
type Correlation struct {
	OrderID string `json:"order_id,omitempty"`
	CartID  string `json:"cart_id,omitempty"`
}

// ReservationRecord is a time-boxed hold against available stock.
// Indexed by (state, expires_at) for the sweeper scan.
type ReservationRecord struct {
	ID          string           `json:"reservation_id" gorm:"primaryKey;size:36"`
	ProductID   string           `json:"product_id" gorm:"size:64;not null;index"`
	Quantity    int              `json:"quantity" gorm:"not null;check:chk_reservation_quantity,quantity > 0"`
	State       ReservationState `json:"state" gorm:"size:16;not null;index:idx_reservations_state_expires,priority:1"`
	ExpiresAt   time.Time        `json:"expires_at" gorm:"not null;index:idx_reservations_state_expires,priority:2"`
	OrderID     string           `json:"order_id,omitempty" gorm:"size:64;index"`
	CartID      string           `json:"cart_id,omitempty" gorm:"size:64"`
	Reason      string           `json:"reason,omitempty" gorm:"size:255"`
	CreatedAt   time.Time        `json:"created_at"`
	FinalizedAt *time.Time       `json:"finalized_at,omitempty"`
}

// TableName specifies the table name
func (ReservationRecord) TableName() string {
	return "reservations"
}

// IsExpiredAt reports whether the hold lapsed strictly before now.
func (r ReservationRecord) IsExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Transition describes a guarded ACTIVE -> terminal state change.
type Transition struct {
	ReservationID string
	To            ReservationState
	At            time.Time
	Reason        string
	// ExpiredBefore, when set, additionally requires expires_at < ExpiredBefore.
	ExpiredBefore time.Time
}
