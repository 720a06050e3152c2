package grpc

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/internal/inventory/usecase/query"
)

// InventoryGRPCServer implements the InventoryService gRPC server
type InventoryGRPCServer struct {
	// Command handlers
	reservations *command.ReservationHandler

	// Query handlers
	getHandler *query.GetInventoryHandler
}

// NewInventoryGRPCServer creates a new gRPC server
func NewInventoryGRPCServer(reservations *command.ReservationHandler, getHandler *query.GetInventoryHandler) *InventoryGRPCServer {
	return &InventoryGRPCServer{reservations: reservations, getHandler: getHandler}
}

// NewServer builds a grpc.Server with tracing, metrics and the health service.
// The returned health server is flipped to NOT_SERVING on shutdown.
func NewServer(srv InventoryServiceServer) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			MetricsInterceptor,
			LoggingInterceptor,
		),
	)
	RegisterInventoryServiceServer(server, srv)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service (for grpcurl and grpc tools)
	reflection.Register(server)

	return server, healthServer
}

// Reserve places a checkout hold
func (s *InventoryGRPCServer) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	result, err := s.reservations.Reserve(ctx, command.ReserveStockCommand{
		ProductID:      req.ProductID,
		Quantity:       int(req.Quantity),
		TTL:            time.Duration(req.TTLSeconds) * time.Second,
		OrderID:        req.OrderID,
		CartID:         req.CartID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &ReserveResponse{
		Reservation: reservationToMessage(&result.Reservation),
		Replayed:    result.Replayed,
	}, nil
}

// Confirm converts a hold into a sale
func (s *InventoryGRPCServer) Confirm(ctx context.Context, req *ReservationIDRequest) (*TransitionResponse, error) {
	result, err := s.reservations.Confirm(ctx, req.ReservationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return transitionToMessage(result), nil
}

// Release returns held units to available stock
func (s *InventoryGRPCServer) Release(ctx context.Context, req *ReservationIDRequest) (*TransitionResponse, error) {
	result, err := s.reservations.Release(ctx, req.ReservationID, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return transitionToMessage(result), nil
}

// GetAvailability returns the derived stock level of a product
func (s *InventoryGRPCServer) GetAvailability(ctx context.Context, req *AvailabilityRequest) (*AvailabilityResponse, error) {
	record, err := s.getHandler.Handle(ctx, query.GetInventoryQuery{ProductID: req.ProductID})
	if err != nil {
		return nil, toStatus(err)
	}

	return &AvailabilityResponse{
		ProductID: record.ProductID,
		OnHand:    int32(record.OnHand),
		Reserved:  int32(record.Reserved),
		Available: int32(record.Available()),
		Signal:    string(record.Signal()),
	}, nil
}

// toStatus maps domain errors onto gRPC codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotYetExpired):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInventoryNotFound), errors.Is(err, domain.ErrReservationNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrNegativeStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func reservationToMessage(r *domain.ReservationRecord) *Reservation {
	return &Reservation{
		ReservationID: r.ID,
		ProductID:     r.ProductID,
		Quantity:      int32(r.Quantity),
		State:         string(r.State),
		ExpiresAt:     r.ExpiresAt,
		OrderID:       r.OrderID,
		CartID:        r.CartID,
		CreatedAt:     r.CreatedAt,
	}
}

func transitionToMessage(result *reservation.TransitionResult) *TransitionResponse {
	resp := &TransitionResponse{
		Reservation:    reservationToMessage(&result.Reservation),
		AlreadyApplied: result.AlreadyApplied(),
	}
	if result.Movement != nil {
		resp.MovementID = result.Movement.ID
	}
	return resp
}
