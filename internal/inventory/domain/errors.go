package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInventoryNotFound   = errors.New("inventory record not found")
	ErrInventoryExists     = errors.New("inventory record already exists")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrJobNotFound         = errors.New("bulk job not found")
	ErrJobTerminal         = errors.New("bulk job is already finished")

	// ErrInsufficientStock is a business outcome, not a fault.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrAlreadyTerminal marks a transition on a reservation that is already final.
	ErrAlreadyTerminal  = errors.New("reservation already in a terminal state")
	ErrNotYetExpired    = errors.New("reservation has not expired")
	ErrDuplicateRequest = errors.New("duplicate request in progress")

	// ErrVersionConflict is a single failed compare-and-swap. The ledger retries it.
	ErrVersionConflict = errors.New("inventory version conflict")

	// ErrConcurrencyConflict is surfaced once the bounded retry is exhausted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrInvariantViolation = errors.New("ledger invariant violation")
	ErrNegativeStock      = errors.New("adjustment would make on-hand negative or below reserved")
	ErrValidation         = errors.New("validation error")
)

// InsufficientStockError carries the available count observed when TryReserve failed.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NegativeStockError is returned when an on-hand change would drop below reserved.
type NegativeStockError struct {
	ProductID string
	OnHand    int
	Reserved  int
	Delta     int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("product %s: applying %+d to on-hand %d would fall below reserved %d", e.ProductID, e.Delta, e.OnHand, e.Reserved)
}

func (e *NegativeStockError) Is(target error) bool {
	return target == ErrNegativeStock
}

// InvariantViolationError means the ledger state or caller discipline is broken.
type InvariantViolationError struct {
	ProductID string
	Operation string
	Detail    string
	OnHand    int
	Reserved  int
	Quantity  int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on product %s (%s): %s [on_hand=%d reserved=%d qty=%d]",
		e.ProductID, e.Operation, e.Detail, e.OnHand, e.Reserved, e.Quantity)
}

func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConcurrencyConflictError reports how many attempts were made.
type ConcurrencyConflictError struct {
	ProductID string
	Operation string
	Attempts  int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on product %s (%s) after %d attempts", e.ProductID, e.Operation, e.Attempts)
}

func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}
