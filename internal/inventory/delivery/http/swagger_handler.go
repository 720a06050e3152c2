package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterSwaggerDocs registers Swagger documentation routes
// @Summary Swagger documentation
// @Description Swagger API documentation for Inventory Service
// @Tags Swagger
// @Success 200 {string} string "Swagger UI"
// @Router /swagger/ [get]
func RegisterSwaggerDocs(router *mux.Router, swaggerHandler http.Handler) {
	// Swagger UI
	router.PathPrefix("/swagger/").Handler(swaggerHandler)
}

// CreateInventory godoc
// @Summary Open a product in the ledger
// @Description Create the inventory record for a product. A non-zero opening quantity is written as a RESTOCK movement (Admin only)
// @Tags Inventory
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{product_id=string,on_hand=int,low_stock_threshold=int,unit_cost=string,reason=string} true "Inventory data"
// @Success 201 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Failure 403 {object} object{success=bool,error=string,code=string}
// @Failure 409 {object} object{success=bool,error=string,code=string}
// @Router /api/inventory [post]
func (h *InventoryHandler) CreateInventoryDoc() {}

// ListInventory godoc
// @Summary List all inventory
// @Description Get a page of inventory records ordered by product id
// @Tags Inventory
// @Produce json
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} object{success=bool,data=array}
// @Failure 500 {object} object{success=bool,error=string}
// @Router /api/inventory [get]
func (h *InventoryHandler) ListInventoryDoc() {}

// GetInventory godoc
// @Summary Get inventory by product ID
// @Description Get onHand, reserved, available and the stock signal for a product
// @Tags Inventory
// @Produce json
// @Param product_id path string true "Product ID"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/inventory/{product_id} [get]
func (h *InventoryHandler) GetInventoryDoc() {}

// ListMovements godoc
// @Summary List movements
// @Description Page through a product's movement history in ledger order
// @Tags Inventory
// @Produce json
// @Param product_id path string true "Product ID"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} object{success=bool,data=array}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/inventory/{product_id}/movements [get]
func (h *InventoryHandler) ListMovementsDoc() {}

// RecordMovement godoc
// @Summary Record an inbound or outbound movement
// @Description RESTOCK, TRANSFER_IN, TRANSFER_OUT or DAMAGE with a positive quantity. A RESTOCK unit cost updates the weighted average cost (Admin only)
// @Tags Inventory
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param product_id path string true "Product ID"
// @Param request body object{type=string,quantity=int,unit_cost=string,reason=string} true "Movement data"
// @Success 201 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Failure 409 {object} object{success=bool,error=string,code=string}
// @Router /api/inventory/{product_id}/movements [post]
func (h *InventoryHandler) RecordMovementDoc() {}

// UpdateThreshold godoc
// @Summary Update the low-stock threshold
// @Description Change lowStockThreshold. Writes no movement and does not bump the version (Admin only)
// @Tags Inventory
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param product_id path string true "Product ID"
// @Param request body object{low_stock_threshold=int} true "Threshold data"
// @Success 200 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/inventory/{product_id}/threshold [patch]
func (h *InventoryHandler) UpdateThresholdDoc() {}

// AdjustInventory godoc
// @Summary Apply a manual adjustment
// @Description DAMAGE, THEFT, EXPIRY (negative only), RECOUNT or CORRECTION with a mandatory reason (Admin only)
// @Tags Inventory
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param product_id path string true "Product ID"
// @Param request body object{adjustment_type=string,quantity=int,reason=string} true "Adjustment data"
// @Success 201 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Failure 409 {object} object{success=bool,error=string,code=string}
// @Router /api/inventory/{product_id}/adjustments [post]
func (h *InventoryHandler) AdjustInventoryDoc() {}

// AuditInventory godoc
// @Summary Replay audit
// @Description Replay a product's movements and compare the result with its record (Admin only)
// @Tags Inventory
// @Security BearerAuth
// @Produce json
// @Param product_id path string true "Product ID"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/inventory/{product_id}/audit [get]
func (h *InventoryHandler) AuditInventoryDoc() {}

// Reserve godoc
// @Summary Reserve stock
// @Description Place a time-boxed hold against available stock. A repeated Idempotency-Key returns the original hold
// @Tags Reservations
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Caller retry key"
// @Param request body object{product_id=string,quantity=int,ttl_seconds=int,order_id=string,cart_id=string} true "Reservation data"
// @Success 201 {object} object{success=bool,message=string,data=object}
// @Success 200 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Failure 409 {object} object{success=bool,error=string,code=string,data=object{requested=int,available=int}}
// @Failure 429 {object} object{success=bool,error=string,code=string}
// @Router /api/reservations [post]
func (h *ReservationHandler) ReserveDoc() {}

// GetReservation godoc
// @Summary Get reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/reservations/{id} [get]
func (h *ReservationHandler) GetReservationDoc() {}

// ConfirmReservation godoc
// @Summary Confirm reservation
// @Description Convert the hold into a sale. A reservation that is already terminal answers with already_applied=true
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} object{success=bool,message=string,data=object{already_applied=bool,reservation=object,movement=object}}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/reservations/{id}/confirm [post]
func (h *ReservationHandler) ConfirmReservationDoc() {}

// ReleaseReservation godoc
// @Summary Release reservation
// @Description Return the held units to available stock. A reservation that is already terminal answers with already_applied=true
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param request body object{reason=string} false "Release reason"
// @Success 200 {object} object{success=bool,message=string,data=object{already_applied=bool,reservation=object,movement=object}}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/reservations/{id}/release [post]
func (h *ReservationHandler) ReleaseReservationDoc() {}

// SubmitJob godoc
// @Summary Submit a bulk job
// @Description Apply ADJUSTMENT, RESTOCK or RELEASE items asynchronously. Each item commits or fails on its own (Admin only)
// @Tags BulkJobs
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{type=string,reason=string,items=array,chunk_size=int,chunk_delay_ms=int} true "Bulk job"
// @Success 202 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Router /api/bulk-jobs [post]
func (h *BulkJobHandler) SubmitJobDoc() {}

// GetJob godoc
// @Summary Get bulk job status
// @Tags BulkJobs
// @Security BearerAuth
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Router /api/bulk-jobs/{id} [get]
func (h *BulkJobHandler) GetJobDoc() {}

// CancelJob godoc
// @Summary Cancel a bulk job
// @Description Stop scheduling further chunks. Committed items stay committed; the rest are SKIPPED (Admin only)
// @Tags BulkJobs
// @Security BearerAuth
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} object{success=bool,message=string,data=object}
// @Failure 404 {object} object{success=bool,error=string,code=string}
// @Failure 409 {object} object{success=bool,error=string,code=string}
// @Router /api/bulk-jobs/{id}/cancel [post]
func (h *BulkJobHandler) CancelJobDoc() {}

// HealthCheck godoc
// @Summary Health check
// @Description Check service health and storage connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} object{success=bool,message=string}
// @Failure 503 {object} object{success=bool,error=string}
// @Router /health [get]
func (h *InventoryHandler) HealthCheckDoc() {}
