//go:build wireinject
// +build wireinject

package inventory

import (
	"github.com/google/wire"

	"github.com/tair/inventory-engine/internal/config"
	"github.com/tair/inventory-engine/internal/inventory/adjustment"
	grpcDelivery "github.com/tair/inventory-engine/internal/inventory/delivery/grpc"
	"github.com/tair/inventory-engine/internal/inventory/delivery/events"
	httpDelivery "github.com/tair/inventory-engine/internal/inventory/delivery/http"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/internal/inventory/usecase/query"
)

// Wire sets
var EngineSet = wire.NewSet(
	ProvideLedger,
	ProvideReservationManager,
	adjustment.NewProcessor,
	ProvideBulkCoordinator,
	ProvideSweeper,
)

var UsecaseSet = wire.NewSet(
	command.NewCreateInventoryHandler,
	command.NewRecordMovementHandler,
	command.NewUpdateThresholdHandler,
	command.NewAdjustInventoryHandler,
	command.NewReservationHandler,
	command.NewBulkJobHandler,
	query.NewGetInventoryHandler,
	query.NewListInventoryHandler,
	query.NewListMovementsHandler,
	query.NewAuditInventoryHandler,
	query.NewGetReservationHandler,
	query.NewGetBulkJobHandler,
)

var DeliverySet = wire.NewSet(
	ProvideAuthenticator,
	httpDelivery.NewInventoryHandler,
	httpDelivery.NewReservationHandler,
	httpDelivery.NewBulkJobHandler,
	grpcDelivery.NewInventoryGRPCServer,
	events.NewHandler,
)

// InitializeApp initializes the engine and its delivery surfaces with all dependencies
func InitializeApp(cfg *config.Config, scope domain.TransactionScope, coord Coordination, publisher domain.StockEventPublisher) (*App, error) {
	wire.Build(
		EngineSet,
		UsecaseSet,
		DeliverySet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil
}
