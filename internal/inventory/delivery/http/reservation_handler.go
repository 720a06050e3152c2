package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/internal/inventory/usecase/query"
)

// IdempotencyHeader carries the caller's retry key for Reserve.
const IdempotencyHeader = "Idempotency-Key"

// ReservationHandler handles HTTP requests for checkout holds
type ReservationHandler struct {
	reservations *command.ReservationHandler
	getHandler   *query.GetReservationHandler
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservations *command.ReservationHandler, getHandler *query.GetReservationHandler) *ReservationHandler {
	return &ReservationHandler{reservations: reservations, getHandler: getHandler}
}

// Reserve handles POST /api/reservations
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID  string `json:"product_id"`
		Quantity   int    `json:"quantity"`
		TTLSeconds int    `json:"ttl_seconds"`
		OrderID    string `json:"order_id"`
		CartID     string `json:"cart_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.reservations.Reserve(r.Context(), command.ReserveStockCommand{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		TTL:            time.Duration(req.TTLSeconds) * time.Second,
		OrderID:        req.OrderID,
		CartID:         req.CartID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	status := http.StatusCreated
	message := "Reservation created successfully"
	if result.Replayed {
		status = http.StatusOK
		message = "Reservation already exists for this idempotency key"
	}
	respondJSON(w, status, Response{
		Success: true,
		Message: message,
		Data:    result.Reservation,
	})
}

// GetReservation handles GET /api/reservations/{id}
func (h *ReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.getHandler.Handle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    res,
	})
}

// ConfirmReservation handles POST /api/reservations/{id}/confirm
func (h *ReservationHandler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	result, err := h.reservations.Confirm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondTransition(w, result, "Reservation confirmed")
}

// ReleaseReservation handles POST /api/reservations/{id}/release
func (h *ReservationHandler) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The body is optional
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	result, err := h.reservations.Release(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondTransition(w, result, "Reservation released")
}

type transitionResponse struct {
	AlreadyApplied bool        `json:"already_applied"`
	Reservation    interface{} `json:"reservation"`
	Movement       interface{} `json:"movement,omitempty"`
}

// respondTransition answers 200 for both an applied and an already terminal
// transition; the flag tells them apart.
func respondTransition(w http.ResponseWriter, result *reservation.TransitionResult, message string) {
	data := transitionResponse{
		AlreadyApplied: result.AlreadyApplied(),
		Reservation:    result.Reservation,
	}
	if result.Movement != nil {
		data.Movement = result.Movement
	}
	if result.AlreadyApplied() {
		message = "Reservation already " + string(result.Reservation.State)
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RegisterRoutes registers all reservation routes. limit, when non-nil,
// wraps the write routes.
func (h *ReservationHandler) RegisterRoutes(router *mux.Router, limit mux.MiddlewareFunc) {
	write := func(fn http.HandlerFunc) http.Handler {
		if limit == nil {
			return fn
		}
		return limit(fn)
	}

	router.Handle("/api/reservations", write(h.Reserve)).Methods("POST")
	router.HandleFunc("/api/reservations/{id}", h.GetReservation).Methods("GET")
	router.Handle("/api/reservations/{id}/confirm", write(h.ConfirmReservation)).Methods("POST")
	router.Handle("/api/reservations/{id}/release", write(h.ReleaseReservation)).Methods("POST")
}
