package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/tair/inventory-engine/internal/inventory/adjustment"
	"github.com/tair/inventory-engine/internal/inventory/bulk"
	"github.com/tair/inventory-engine/internal/inventory/coordination"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/repository/memory"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/internal/inventory/usecase/query"
	"github.com/tair/inventory-engine/pkg/auth"
)

const testSecret = "test-secret"

type testServer struct {
	router *mux.Router
	ledger *ledger.Ledger
	tokens *auth.Validator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	l := ledger.New(store, ledger.DefaultConfig)
	coord := coordination.NewMemory()
	manager := reservation.NewManager(l, store, coord, reservation.DefaultConfig)
	processor := adjustment.NewProcessor(l)
	coordinator := bulk.NewCoordinator(store.Repositories().BulkJobs(), processor, l, manager, coord, bulk.Config{ChunkDelay: time.Millisecond})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		coordinator.Shutdown(ctx)
	})

	if _, err := l.Initialize(context.Background(), ledger.InitializeParams{ProductID: "sku-1", OnHand: 10, LowStockThreshold: 2}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	validator := auth.NewValidator(testSecret)
	authn := NewAuthenticator(validator)
	router := mux.NewRouter()

	NewInventoryHandler(
		command.NewCreateInventoryHandler(l),
		command.NewRecordMovementHandler(l),
		command.NewUpdateThresholdHandler(l),
		command.NewAdjustInventoryHandler(processor),
		query.NewGetInventoryHandler(l),
		query.NewListInventoryHandler(l),
		query.NewListMovementsHandler(l),
		query.NewAuditInventoryHandler(l),
	).RegisterRoutes(router, authn)
	NewReservationHandler(command.NewReservationHandler(manager), query.NewGetReservationHandler(manager)).RegisterRoutes(router, nil)
	NewBulkJobHandler(command.NewBulkJobHandler(coordinator), query.NewGetBulkJobHandler(coordinator)).RegisterRoutes(router, authn)
	RegisterHealthCheck(router, nil)

	return &testServer{router: router, ledger: l, tokens: validator}
}

func (s *testServer) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken("actor-7", "ops", role, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func dataField(t *testing.T, resp Response, key string) interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", resp.Data)
	}
	return m[key]
}

func TestReserveConfirmFlow(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, "POST", "/api/reservations", map[string]interface{}{"product_id": "sku-1", "quantity": 4}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("reserve status = %d, body %s", rec.Code, rec.Body.String())
	}
	id, _ := dataField(t, resp, "reservation_id").(string)
	if id == "" {
		t.Fatal("reserve returned no reservation_id")
	}

	rec, resp = s.do(t, "POST", "/api/reservations/"+id+"/confirm", nil, nil)
	if rec.Code != http.StatusOK || dataField(t, resp, "already_applied") != false {
		t.Fatalf("confirm = %d %s", rec.Code, rec.Body.String())
	}

	rec, resp = s.do(t, "POST", "/api/reservations/"+id+"/confirm", nil, nil)
	if rec.Code != http.StatusOK || dataField(t, resp, "already_applied") != true {
		t.Errorf("second confirm = %d %s, want 200 already_applied", rec.Code, rec.Body.String())
	}

	rec, resp = s.do(t, "GET", "/api/inventory/sku-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get inventory = %d", rec.Code)
	}
	if dataField(t, resp, "on_hand") != float64(6) || dataField(t, resp, "reserved") != float64(0) || dataField(t, resp, "available") != float64(6) {
		t.Errorf("inventory = %v", resp.Data)
	}
}

func TestReserve_InsufficientStock(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, "POST", "/api/reservations", map[string]interface{}{"product_id": "sku-1", "quantity": 11}, nil)
	if rec.Code != http.StatusConflict || resp.Code != "INSUFFICIENT_STOCK" {
		t.Fatalf("reserve = %d %s", rec.Code, rec.Body.String())
	}
	if dataField(t, resp, "available") != float64(10) || dataField(t, resp, "requested") != float64(11) {
		t.Errorf("data = %v", resp.Data)
	}
}

func TestReserve_IdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{IdempotencyHeader: "checkout-42"}
	body := map[string]interface{}{"product_id": "sku-1", "quantity": 2}

	rec, first := s.do(t, "POST", "/api/reservations", body, headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first reserve = %d", rec.Code)
	}
	rec, second := s.do(t, "POST", "/api/reservations", body, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed reserve = %d", rec.Code)
	}
	if dataField(t, first, "reservation_id") != dataField(t, second, "reservation_id") {
		t.Error("replay returned a different reservation")
	}

	level, _ := s.ledger.GetAvailable(context.Background(), "sku-1")
	if level.Reserved != 2 {
		t.Errorf("reserved = %d, want 2", level.Reserved)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown reservation", "POST", "/api/reservations/nope/confirm", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown product", "GET", "/api/inventory/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"zero quantity", "POST", "/api/reservations", map[string]interface{}{"product_id": "sku-1", "quantity": 0}, http.StatusBadRequest, "VALIDATION"},
		{"ttl too long", "POST", "/api/reservations", map[string]interface{}{"product_id": "sku-1", "quantity": 1, "ttl_seconds": 86400}, http.StatusBadRequest, "VALIDATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := s.do(t, tt.method, tt.path, tt.body, nil)
			if rec.Code != tt.status || resp.Code != tt.code {
				t.Errorf("got %d %s, want %d %s", rec.Code, resp.Code, tt.status, tt.code)
			}
		})
	}
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	s := newTestServer(t)
	body := map[string]interface{}{"adjustment_type": "DAMAGE", "quantity": -2, "reason": "forklift"}

	rec, _ := s.do(t, "POST", "/api/inventory/sku-1/adjustments", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}

	rec, _ = s.do(t, "POST", "/api/inventory/sku-1/adjustments", body, map[string]string{"Authorization": "Bearer " + s.token(t, "user")})
	if rec.Code != http.StatusForbidden {
		t.Errorf("user token = %d, want 403", rec.Code)
	}

	rec, resp := s.do(t, "POST", "/api/inventory/sku-1/adjustments", body, map[string]string{"Authorization": "Bearer " + s.token(t, auth.RoleAdmin)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin token = %d %s", rec.Code, rec.Body.String())
	}
	if dataField(t, resp, "actor_id") != "actor-7" || dataField(t, resp, "resulting_on_hand") != float64(8) {
		t.Errorf("adjustment = %v", resp.Data)
	}

	rec, resp = s.do(t, "POST", "/api/inventory/sku-1/adjustments",
		map[string]interface{}{"adjustment_type": "DAMAGE", "quantity": -20, "reason": "forklift"},
		map[string]string{"Authorization": "Bearer " + s.token(t, auth.RoleAdmin)})
	if rec.Code != http.StatusConflict || resp.Code != "NEGATIVE_STOCK" {
		t.Errorf("oversized damage = %d %s", rec.Code, resp.Code)
	}
}

func TestRecordMovementAndAudit(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{"Authorization": "Bearer " + s.token(t, auth.RoleAdmin)}

	rec, _ := s.do(t, "POST", "/api/inventory/sku-1/movements", map[string]interface{}{"type": "RESTOCK", "quantity": 5, "unit_cost": "2.50"}, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("restock = %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = s.do(t, "POST", "/api/inventory/sku-1/movements", map[string]interface{}{"type": "TRANSFER_OUT", "quantity": 3}, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer out = %d %s", rec.Code, rec.Body.String())
	}

	rec, resp := s.do(t, "GET", "/api/inventory/sku-1/movements", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("movements = %d", rec.Code)
	}
	if movements, ok := resp.Data.([]interface{}); !ok || len(movements) != 3 {
		t.Errorf("movements = %v, want 3", resp.Data)
	}

	rec, resp = s.do(t, "GET", "/api/inventory/sku-1/audit", nil, admin)
	if rec.Code != http.StatusOK || dataField(t, resp, "consistent") != true {
		t.Errorf("audit = %d %s", rec.Code, rec.Body.String())
	}
}

func TestBulkJob_SubmitAndPoll(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{"Authorization": "Bearer " + s.token(t, auth.RoleAdmin)}

	rec, resp := s.do(t, "POST", "/api/bulk-jobs", map[string]interface{}{
		"type":   "RESTOCK",
		"reason": "inbound",
		"items":  []map[string]interface{}{{"product_id": "sku-1", "quantity": 1}, {"product_id": "missing", "quantity": 1}},
	}, admin)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d %s", rec.Code, rec.Body.String())
	}
	id, _ := dataField(t, resp, "job_id").(string)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, resp = s.do(t, "GET", "/api/bulk-jobs/"+id, nil, admin)
		if rec.Code != http.StatusOK {
			t.Fatalf("poll = %d", rec.Code)
		}
		if dataField(t, resp, "status") != "RUNNING" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if dataField(t, resp, "status") != "PARTIALLY_COMPLETED" {
		t.Errorf("status = %v", dataField(t, resp, "status"))
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, resp := s.do(t, "GET", "/health", nil, nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("health = %d", rec.Code)
	}
}

func TestBulkJob_ChunkOptions(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{"Authorization": "Bearer " + s.token(t, auth.RoleAdmin)}
	items := []map[string]interface{}{{"product_id": "sku-1", "quantity": 1}, {"product_id": "sku-1", "quantity": 2}}

	rec, resp := s.do(t, "POST", "/api/bulk-jobs", map[string]interface{}{
		"type":           "RESTOCK",
		"reason":         "inbound",
		"items":          items,
		"chunk_size":     1,
		"chunk_delay_ms": 60000,
	}, admin)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d %s", rec.Code, rec.Body.String())
	}
	id, _ := dataField(t, resp, "job_id").(string)

	// one item per chunk, then a minute-long pause
	deadline := time.Now().Add(2 * time.Second)
	for dataField(t, resp, "processed") != float64(1) {
		if time.Now().After(deadline) {
			t.Fatalf("first chunk never finished: %s", rec.Body.String())
		}
		time.Sleep(5 * time.Millisecond)
		rec, resp = s.do(t, "GET", "/api/bulk-jobs/"+id, nil, admin)
	}
	time.Sleep(50 * time.Millisecond)
	_, resp = s.do(t, "GET", "/api/bulk-jobs/"+id, nil, admin)
	if dataField(t, resp, "status") != "RUNNING" || dataField(t, resp, "processed") != float64(1) {
		t.Errorf("job did not pause between chunks: status=%v processed=%v", dataField(t, resp, "status"), dataField(t, resp, "processed"))
	}

	for name, body := range map[string]map[string]interface{}{
		"negative delay": {"chunk_delay_ms": -1},
		"huge chunk":     {"chunk_size": 1 << 20},
	} {
		body["type"] = "RESTOCK"
		body["reason"] = "inbound"
		body["items"] = items
		rec, resp := s.do(t, "POST", "/api/bulk-jobs", body, admin)
		if rec.Code != http.StatusBadRequest || resp.Code != "VALIDATION" {
			t.Errorf("%s: submit = %d %s, want 400 VALIDATION", name, rec.Code, rec.Body.String())
		}
	}
}

func TestListInventory_DefaultPage(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 14; i++ {
		if _, err := s.ledger.Initialize(context.Background(), ledger.InitializeParams{ProductID: fmt.Sprintf("bulk-%02d", i)}); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
	}

	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", 10},
		{"?limit=0", 10},
		{"?limit=1000", 15},
		{"?limit=5&offset=12", 3},
	} {
		rec, resp := s.do(t, "GET", "/api/inventory"+tc.query, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("list%s = %d", tc.query, rec.Code)
		}
		records, _ := resp.Data.([]interface{})
		if len(records) != tc.want {
			t.Errorf("list%s returned %d records, want %d", tc.query, len(records), tc.want)
		}
	}
}
