package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tair/inventory-engine/docs"
	"github.com/tair/inventory-engine/internal/config"
	"github.com/tair/inventory-engine/internal/inventory"
	"github.com/tair/inventory-engine/internal/inventory/coordination"
	grpcDelivery "github.com/tair/inventory-engine/internal/inventory/delivery/grpc"
	httpDelivery "github.com/tair/inventory-engine/internal/inventory/delivery/http"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/repository"
	"github.com/tair/inventory-engine/internal/inventory/repository/memory"
	"github.com/tair/inventory-engine/kafka"
	"github.com/tair/inventory-engine/pkg/database"
	"github.com/tair/inventory-engine/pkg/logger"
	"github.com/tair/inventory-engine/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet
		logger.Init(logger.Options{Service: "inventory-service", Pretty: true})
		logger.Logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(logger.Options{
		Service:     cfg.Service.Name,
		Version:     cfg.Service.Version,
		Environment: cfg.Service.Environment,
		Pretty:      cfg.Service.IsDevelopment(),
	})
	if err := logger.SetLevel(cfg.Service.LogLevel); err != nil {
		logger.Logger.Warn().Err(err).Str("log_level", cfg.Service.LogLevel).Msg("Unknown log level, using info")
	}

	logger.Logger.Info().
		Str("log_level", cfg.Service.LogLevel).
		Str("store_driver", cfg.StoreDriver).
		Msg("Starting inventory service")

	// Initialize tracing
	var tp trace.TracerProvider = noop.NewTracerProvider()
	if cfg.Tracing.Enabled {
		tp, err = tracing.InitTracer(tracing.Options{
			ServiceName:    cfg.Service.Name,
			Version:        cfg.Service.Version,
			Environment:    cfg.Service.Environment,
			JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		}
	}

	// Storage
	scope, healthChecks, closeStore := openStore(cfg)
	defer closeStore()

	// Coordination state shared between replicas
	var coord inventory.Coordination = coordination.NewMemory()
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			cancel()
			logger.Logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		cancel()

		coord = coordination.NewRedis(client)
		redisClient = client
		healthChecks = append(healthChecks, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis coordination enabled")
	}

	// Stock level events
	var publisher domain.StockEventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.StockTopic,
			ClientID: cfg.Service.Name,
		})
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create Kafka publisher")
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	// Initialize application with Wire DI
	app, err := inventory.InitializeApp(cfg, scope, coord, publisher)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize application")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Catalog and order events
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topics:  []string{cfg.Kafka.CatalogTopic, cfg.Kafka.OrderTopic},
		})
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create Kafka consumer")
		}
		app.EventHandler.Register(consumer)
		if err := consumer.Start(ctx); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to start Kafka consumer")
		}
	}

	app.Sweeper.Start(ctx)

	if recovered, err := app.Bulk.RecoverStale(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to close abandoned bulk jobs")
	} else if recovered > 0 {
		logger.Logger.Warn().Int("jobs", recovered).Msg("Closed bulk jobs abandoned by a previous process")
	}

	reserveLimit, err := httpDelivery.NewRateLimiter(cfg.HTTP.ReserveRateLimit, redisClient)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to configure reservation rate limit")
	}

	httpServer := newHTTPServer(cfg, app, healthChecks, reserveLimit)
	go func() {
		logger.Logger.Info().
			Str("port", cfg.HTTP.Port).
			Str("metrics_endpoint", "/metrics").
			Str("swagger_endpoint", "/swagger/").
			Msg("HTTP server started")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	grpcServer, healthServer := grpcDelivery.NewServer(app.GRPCServer)
	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("port", cfg.GRPC.Port).Msg("Failed to listen for gRPC")
	}
	go func() {
		logger.Logger.Info().
			Str("port", cfg.GRPC.Port).
			Msg("gRPC server started")

		if err := grpcServer.Serve(lis); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to start gRPC server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	healthServer.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	// Stops the sweeper loop and the consumer session
	stop()
	app.Sweeper.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Logger.Error().Err(err).Msg("Kafka consumer close failed")
		}
	}

	if err := app.Bulk.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("Bulk jobs did not stop in time")
	}

	if err := tracing.Shutdown(shutdownCtx, tp); err != nil {
		logger.Logger.Error().Err(err).Msg("Tracer shutdown failed")
	}

	logger.Logger.Info().Msg("Inventory service stopped")
}

// openStore returns the transaction scope for the configured driver.
func openStore(cfg *config.Config) (domain.TransactionScope, []httpDelivery.HealthChecker, func()) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Logger.Warn().Msg("Using in-memory store, data is lost on restart")
		return memory.NewStore(), nil, func() {}
	}

	// Connect to database
	db, err := database.NewGormConnection(cfg.Database)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to get database instance")
	}

	store := repository.NewGormStore(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	logger.Logger.Info().Msg("Database initialized successfully")

	checks := []httpDelivery.HealthChecker{sqlDB.PingContext}
	return repository.NewTracingStore(store), checks, func() { sqlDB.Close() }
}

func newHTTPServer(cfg *config.Config, app *inventory.App, checks []httpDelivery.HealthChecker, reserveLimit mux.MiddlewareFunc) *http.Server {
	docs.SwaggerInfo.Version = cfg.Service.Version

	// Setup router
	router := mux.NewRouter()

	middlewareConfig := httpDelivery.DefaultMiddlewareConfig(cfg.HTTP.RequestTimeout, int64(cfg.HTTP.MaxBodyBytes), cfg.HTTP.AllowedOrigins)
	httpDelivery.RegisterMiddlewares(router, middlewareConfig)

	// Register routes
	app.InventoryHandler.RegisterRoutes(router, app.Authenticator)
	app.ReservationHandler.RegisterRoutes(router, reserveLimit)
	app.BulkJobHandler.RegisterRoutes(router, app.Authenticator)

	// Health check endpoint
	httpDelivery.RegisterHealthCheck(router, func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	httpDelivery.RegisterSwaggerDocs(router, httpSwagger.WrapHandler)

	return &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           httpDelivery.SetupCORS(middlewareConfig)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
