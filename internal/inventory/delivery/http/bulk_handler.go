package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/internal/inventory/usecase/query"
)

// BulkJobHandler handles HTTP requests for bulk jobs
type BulkJobHandler struct {
	jobs       *command.BulkJobHandler
	getHandler *query.GetBulkJobHandler
}

// NewBulkJobHandler creates a new bulk job handler
func NewBulkJobHandler(jobs *command.BulkJobHandler, getHandler *query.GetBulkJobHandler) *BulkJobHandler {
	return &BulkJobHandler{jobs: jobs, getHandler: getHandler}
}

// SubmitJob handles POST /api/bulk-jobs
func (h *BulkJobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type         string            `json:"type"`
		Reason       string            `json:"reason"`
		Items        []domain.BulkItem `json:"items"`
		ChunkSize    int               `json:"chunk_size"`
		ChunkDelayMS *int64            `json:"chunk_delay_ms"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var delay *time.Duration
	if req.ChunkDelayMS != nil {
		d := time.Duration(*req.ChunkDelayMS) * time.Millisecond
		delay = &d
	}

	job, err := h.jobs.Submit(r.Context(), command.SubmitBulkJobCommand{
		Type:       req.Type,
		Items:      req.Items,
		Reason:     req.Reason,
		ActorID:    ActorFromContext(r.Context()),
		ChunkSize:  req.ChunkSize,
		ChunkDelay: delay,
	})
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/api/bulk-jobs/"+job.ID)
	respondJSON(w, http.StatusAccepted, Response{
		Success: true,
		Message: "Bulk job accepted",
		Data:    job,
	})
}

// GetJob handles GET /api/bulk-jobs/{id}
func (h *BulkJobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.getHandler.Handle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    job,
	})
}

// CancelJob handles POST /api/bulk-jobs/{id}/cancel
func (h *BulkJobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, Response{
		Success: true,
		Message: "Cancellation requested",
		Data:    job,
	})
}

// RegisterRoutes registers all bulk job routes. Every route is admin only.
func (h *BulkJobHandler) RegisterRoutes(router *mux.Router, auth *Authenticator) {
	router.HandleFunc("/api/bulk-jobs", auth.RequireAdmin(h.SubmitJob)).Methods("POST")
	router.HandleFunc("/api/bulk-jobs/{id}", auth.RequireAdmin(h.GetJob)).Methods("GET")
	router.HandleFunc("/api/bulk-jobs/{id}/cancel", auth.RequireAdmin(h.CancelJob)).Methods("POST")
}
