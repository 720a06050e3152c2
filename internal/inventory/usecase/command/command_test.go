package command

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/repository/memory"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(memory.NewStore(), ledger.DefaultConfig)
}

func TestCreateInventoryHandler(t *testing.T) {
	l := newLedger(t)
	h := NewCreateInventoryHandler(l)
	ctx := context.Background()

	record, err := h.Handle(ctx, CreateInventoryCommand{ProductID: "sku-1", OnHand: 7, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if record.OnHand != 7 || record.Version != 1 {
		t.Errorf("record = %+v, want onHand=7 version=1", record)
	}

	movements, _ := l.Movements(ctx, "sku-1", 0, 0)
	if len(movements) != 1 || movements[0].Reason != "initial stock" {
		t.Errorf("movements = %+v, want one RESTOCK with the default reason", movements)
	}

	if _, err := h.Handle(ctx, CreateInventoryCommand{ProductID: "sku-1"}); !errors.Is(err, domain.ErrInventoryExists) {
		t.Errorf("second Handle error = %v, want ErrInventoryExists", err)
	}
}

func TestRecordMovementHandler_Direction(t *testing.T) {
	tests := []struct {
		name       string
		typ        domain.MovementType
		wantOnHand int
	}{
		{"restock adds", domain.MovementRestock, 13},
		{"transfer in adds", domain.MovementTransferIn, 13},
		{"transfer out removes", domain.MovementTransferOut, 7},
		{"damage removes", domain.MovementDamage, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			ctx := context.Background()
			if _, err := l.Initialize(ctx, ledger.InitializeParams{ProductID: "sku-1", OnHand: 10}); err != nil {
				t.Fatalf("Initialize failed: %v", err)
			}

			result, err := NewRecordMovementHandler(l).Handle(ctx, RecordMovementCommand{
				ProductID: "sku-1",
				Type:      tt.typ,
				Quantity:  3,
				ActorID:   "receiving",
			})
			if err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if result.Record.OnHand != tt.wantOnHand {
				t.Errorf("onHand = %d, want %d", result.Record.OnHand, tt.wantOnHand)
			}
			if result.Movement.Type != tt.typ {
				t.Errorf("movement type = %s, want %s", result.Movement.Type, tt.typ)
			}
		})
	}
}

func TestRecordMovementHandler_Validation(t *testing.T) {
	cost := decimal.NewNullDecimal(decimal.RequireFromString("2.50"))

	tests := []struct {
		name  string
		cmd   RecordMovementCommand
		field string
	}{
		{"missing product", RecordMovementCommand{Type: domain.MovementRestock, Quantity: 1, ActorID: "a"}, "product_id"},
		{"zero quantity", RecordMovementCommand{ProductID: "sku-1", Type: domain.MovementRestock, ActorID: "a"}, "quantity"},
		{"missing actor", RecordMovementCommand{ProductID: "sku-1", Type: domain.MovementRestock, Quantity: 1}, "actor_id"},
		{"ledger-only type", RecordMovementCommand{ProductID: "sku-1", Type: domain.MovementSale, Quantity: 1, ActorID: "a"}, "type"},
		{"cost on transfer", RecordMovementCommand{ProductID: "sku-1", Type: domain.MovementTransferIn, Quantity: 1, ActorID: "a", UnitCost: cost}, "unit_cost"},
	}

	h := NewRecordMovementHandler(newLedger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("error = %v, want validation error on %s", err, tt.field)
			}
		})
	}
}
