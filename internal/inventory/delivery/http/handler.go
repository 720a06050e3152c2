package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/internal/inventory/usecase/query"
)

// InventoryHandler handles HTTP requests for inventory records
type InventoryHandler struct {
	// Command handlers
	createHandler    *command.CreateInventoryHandler
	movementHandler  *command.RecordMovementHandler
	thresholdHandler *command.UpdateThresholdHandler
	adjustHandler    *command.AdjustInventoryHandler

	// Query handlers
	getHandler       *query.GetInventoryHandler
	listHandler      *query.ListInventoryHandler
	movementsHandler *query.ListMovementsHandler
	auditHandler     *query.AuditInventoryHandler
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(
	createHandler *command.CreateInventoryHandler,
	movementHandler *command.RecordMovementHandler,
	thresholdHandler *command.UpdateThresholdHandler,
	adjustHandler *command.AdjustInventoryHandler,
	getHandler *query.GetInventoryHandler,
	listHandler *query.ListInventoryHandler,
	movementsHandler *query.ListMovementsHandler,
	auditHandler *query.AuditInventoryHandler,
) *InventoryHandler {
	return &InventoryHandler{
		createHandler:    createHandler,
		movementHandler:  movementHandler,
		thresholdHandler: thresholdHandler,
		adjustHandler:    adjustHandler,
		getHandler:       getHandler,
		listHandler:      listHandler,
		movementsHandler: movementsHandler,
		auditHandler:     auditHandler,
	}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// CreateInventory handles POST /api/inventory
func (h *InventoryHandler) CreateInventory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID         string              `json:"product_id"`
		OnHand            int                 `json:"on_hand"`
		LowStockThreshold int                 `json:"low_stock_threshold"`
		UnitCost          decimal.NullDecimal `json:"unit_cost"`
		Reason            string              `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.createHandler.Handle(r.Context(), command.CreateInventoryCommand{
		ProductID:         req.ProductID,
		OnHand:            req.OnHand,
		LowStockThreshold: req.LowStockThreshold,
		UnitCost:          req.UnitCost,
		ActorID:           ActorFromContext(r.Context()),
		Reason:            req.Reason,
	})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Inventory created successfully",
		Data:    record,
	})
}

// GetInventory handles GET /api/inventory/{product_id}
func (h *InventoryHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	record, err := h.getHandler.Handle(r.Context(), query.GetInventoryQuery{ProductID: mux.Vars(r)["product_id"]})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: struct {
			*domain.InventoryRecord
			Available int                `json:"available"`
			Signal    domain.StockSignal `json:"signal"`
		}{record, record.Available(), record.Signal()},
	})
}

// ListInventory handles GET /api/inventory
func (h *InventoryHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	records, err := h.listHandler.Handle(r.Context(), query.ListInventoryQuery{Limit: limit, Offset: offset})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    records,
	})
}

// ListMovements handles GET /api/inventory/{product_id}/movements
func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	movements, err := h.movementsHandler.Handle(r.Context(), query.ListMovementsQuery{
		ProductID: mux.Vars(r)["product_id"],
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    movements,
	})
}

// RecordMovement handles POST /api/inventory/{product_id}/movements
func (h *InventoryHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     domain.MovementType `json:"type"`
		Quantity int                 `json:"quantity"`
		UnitCost decimal.NullDecimal `json:"unit_cost"`
		Reason   string              `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.movementHandler.Handle(r.Context(), command.RecordMovementCommand{
		ProductID: mux.Vars(r)["product_id"],
		Type:      req.Type,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		ActorID:   ActorFromContext(r.Context()),
		Reason:    req.Reason,
	})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Movement recorded successfully",
		Data:    result.Movement,
	})
}

// UpdateThreshold handles PATCH /api/inventory/{product_id}/threshold
func (h *InventoryHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LowStockThreshold int `json:"low_stock_threshold"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.thresholdHandler.Handle(r.Context(), command.UpdateThresholdCommand{
		ProductID:         mux.Vars(r)["product_id"],
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Threshold updated successfully",
		Data:    record,
	})
}

// AdjustInventory handles POST /api/inventory/{product_id}/adjustments
func (h *InventoryHandler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdjustmentType string `json:"adjustment_type"`
		Quantity       int    `json:"quantity"`
		Reason         string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	adjustment, err := h.adjustHandler.Handle(r.Context(), command.AdjustInventoryCommand{
		ProductID:      mux.Vars(r)["product_id"],
		AdjustmentType: req.AdjustmentType,
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		ActorID:        ActorFromContext(r.Context()),
	})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Adjustment applied successfully",
		Data:    adjustment,
	})
}

// AuditInventory handles GET /api/inventory/{product_id}/audit
func (h *InventoryHandler) AuditInventory(w http.ResponseWriter, r *http.Request) {
	report, err := h.auditHandler.Handle(r.Context(), mux.Vars(r)["product_id"])
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    report,
	})
}

// RegisterRoutes registers all inventory routes. Writes and the audit
// require an admin token.
func (h *InventoryHandler) RegisterRoutes(router *mux.Router, auth *Authenticator) {
	router.HandleFunc("/api/inventory", h.ListInventory).Methods("GET")
	router.HandleFunc("/api/inventory", auth.RequireAdmin(h.CreateInventory)).Methods("POST")
	router.HandleFunc("/api/inventory/{product_id}", h.GetInventory).Methods("GET")
	router.HandleFunc("/api/inventory/{product_id}/movements", h.ListMovements).Methods("GET")
	router.HandleFunc("/api/inventory/{product_id}/movements", auth.RequireAdmin(h.RecordMovement)).Methods("POST")
	router.HandleFunc("/api/inventory/{product_id}/audit", auth.RequireAdmin(h.AuditInventory)).Methods("GET")
	router.HandleFunc("/api/inventory/{product_id}/threshold", auth.RequireAdmin(h.UpdateThreshold)).Methods("PATCH")
	router.HandleFunc("/api/inventory/{product_id}/adjustments", auth.RequireAdmin(h.AdjustInventory)).Methods("POST")
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// RegisterHealthCheck registers health check endpoint
func RegisterHealthCheck(router *mux.Router, check HealthChecker) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, Response{
					Success: false,
					Error:   "Storage unavailable",
				})
				return
			}
		}

		respondJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "Inventory service is healthy",
		})
	}).Methods("GET")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request body",
			Code:    "VALIDATION",
		})
		return false
	}
	return true
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
