package inventory

import (
	"github.com/tair/inventory-engine/internal/config"
	"github.com/tair/inventory-engine/internal/inventory/adjustment"
	"github.com/tair/inventory-engine/internal/inventory/bulk"
	"github.com/tair/inventory-engine/internal/inventory/coordination"
	grpcDelivery "github.com/tair/inventory-engine/internal/inventory/delivery/grpc"
	"github.com/tair/inventory-engine/internal/inventory/delivery/events"
	httpDelivery "github.com/tair/inventory-engine/internal/inventory/delivery/http"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/internal/inventory/sweeper"
	"github.com/tair/inventory-engine/pkg/auth"
)

// Coordination is the cross-replica state: the sweeper leader lock, Reserve
// idempotency keys and bulk-job cancel flags. coordination.Redis and
// coordination.Memory both satisfy it.
type Coordination interface {
	coordination.Locker
	coordination.IdempotencyStore
	coordination.CancelRegistry
}

// App is everything cmd/inventory starts and stops.
type App struct {
	InventoryHandler   *httpDelivery.InventoryHandler
	ReservationHandler *httpDelivery.ReservationHandler
	BulkJobHandler     *httpDelivery.BulkJobHandler
	Authenticator      *httpDelivery.Authenticator
	GRPCServer         *grpcDelivery.InventoryGRPCServer
	EventHandler       *events.Handler
	Sweeper            *sweeper.Sweeper
	Bulk               *bulk.Coordinator
}

// ProvideLedger provides the stock ledger
func ProvideLedger(scope domain.TransactionScope, cfg *config.Config, publisher domain.StockEventPublisher) *ledger.Ledger {
	var opts []ledger.Option
	if publisher != nil {
		opts = append(opts, ledger.WithPublisher(publisher))
	}
	return ledger.New(scope, ledger.Config{
		MaxRetries:      cfg.Ledger.MaxRetries,
		InitialInterval: cfg.Ledger.RetryInitialInterval,
		MaxInterval:     cfg.Ledger.RetryMaxInterval,
	}, opts...)
}

// ProvideReservationManager provides the reservation manager
func ProvideReservationManager(l *ledger.Ledger, scope domain.TransactionScope, coord Coordination, cfg *config.Config) *reservation.Manager {
	return reservation.NewManager(l, scope, coord, reservation.Config{
		DefaultTTL:     cfg.Reservation.DefaultTTL,
		MaxTTL:         cfg.Reservation.MaxTTL,
		IdempotencyTTL: cfg.Reservation.IdempotencyTTL,
	})
}

// ProvideBulkCoordinator provides the bulk update coordinator
func ProvideBulkCoordinator(
	scope domain.TransactionScope,
	processor *adjustment.Processor,
	l *ledger.Ledger,
	manager *reservation.Manager,
	coord Coordination,
	cfg *config.Config,
) *bulk.Coordinator {
	return bulk.NewCoordinator(scope.Repositories().BulkJobs(), processor, l, manager, coord, bulk.Config{
		ChunkSize:  cfg.Bulk.ChunkSize,
		ChunkDelay: cfg.Bulk.ChunkDelay,
		MaxItems:   cfg.Bulk.MaxItems,
		StaleAfter: cfg.Bulk.StaleAfter,
	})
}

// ProvideSweeper provides the expiration sweeper
func ProvideSweeper(manager *reservation.Manager, coord Coordination, cfg *config.Config) *sweeper.Sweeper {
	return sweeper.New(manager, coord, sweeper.Config{
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
		LockTTL:   cfg.Sweeper.LockTTL,
	}, nil)
}

// ProvideAuthenticator provides the bearer token middleware
func ProvideAuthenticator(cfg *config.Config) *httpDelivery.Authenticator {
	return httpDelivery.NewAuthenticator(auth.NewValidator(cfg.Auth.JWTSecret))
}
