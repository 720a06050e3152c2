package grpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/repository/memory"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/internal/inventory/usecase/query"
)

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	store := memory.NewStore()
	l := ledger.New(store, ledger.DefaultConfig)
	m := reservation.NewManager(l, store, nil, reservation.DefaultConfig)
	if _, err := l.Initialize(context.Background(), ledger.InitializeParams{ProductID: "sku-1", OnHand: 5}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	server, _ := NewServer(NewInventoryGRPCServer(command.NewReservationHandler(m), query.NewGetInventoryHandler(l)))
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReserveConfirm(t *testing.T) {
	client := NewInventoryServiceClient(dial(t))
	ctx := context.Background()

	res, err := client.Reserve(ctx, &ReserveRequest{ProductID: "sku-1", Quantity: 2, OrderID: "order-1"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if res.Reservation.State != "ACTIVE" || res.Reservation.OrderID != "order-1" {
		t.Errorf("reservation = %+v", res.Reservation)
	}

	avail, err := client.GetAvailability(ctx, &AvailabilityRequest{ProductID: "sku-1"})
	if err != nil {
		t.Fatalf("GetAvailability failed: %v", err)
	}
	if avail.Available != 3 || avail.Reserved != 2 {
		t.Errorf("availability = %+v", avail)
	}

	out, err := client.Confirm(ctx, &ReservationIDRequest{ReservationID: res.Reservation.ReservationID})
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if out.AlreadyApplied || out.MovementID == "" {
		t.Errorf("confirm = %+v", out)
	}

	again, err := client.Release(ctx, &ReservationIDRequest{ReservationID: res.Reservation.ReservationID})
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !again.AlreadyApplied || again.Reservation.State != "CONFIRMED" {
		t.Errorf("release after confirm = %+v, want already applied", again)
	}
}

func TestErrorCodes(t *testing.T) {
	client := NewInventoryServiceClient(dial(t))
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"insufficient stock", func() error {
			_, err := client.Reserve(ctx, &ReserveRequest{ProductID: "sku-1", Quantity: 6})
			return err
		}, codes.FailedPrecondition},
		{"invalid quantity", func() error {
			_, err := client.Reserve(ctx, &ReserveRequest{ProductID: "sku-1", Quantity: -1})
			return err
		}, codes.InvalidArgument},
		{"unknown reservation", func() error {
			_, err := client.Confirm(ctx, &ReservationIDRequest{ReservationID: "nope"})
			return err
		}, codes.NotFound},
		{"unknown product", func() error {
			_, err := client.GetAvailability(ctx, &AvailabilityRequest{ProductID: "nope"})
			return err
		}, codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(tt.call()); got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestHealthService(t *testing.T) {
	resp, err := healthpb.NewHealthClient(dial(t)).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %s, want SERVING", resp.Status)
	}
}
