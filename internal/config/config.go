package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tair/inventory-engine/pkg/database"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config is the full runtime configuration of the inventory service.
type Config struct {
	Service     ServiceConfig
	HTTP        HTTPConfig
	GRPC        GRPCConfig
	StoreDriver string
	Database    database.Config
	Redis       RedisConfig
	Kafka       KafkaConfig
	Tracing     TracingConfig
	Auth        AuthConfig
	Ledger      LedgerConfig
	Reservation ReservationConfig
	Sweeper     SweeperConfig
	Bulk        BulkConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

// IsDevelopment reports whether console logging should be used.
func (s ServiceConfig) IsDevelopment() bool {
	return s.Environment == "development"
}

type HTTPConfig struct {
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int
	AllowedOrigins  []string

	// ReserveRateLimit is a limiter rate such as "100-S"; empty disables it.
	ReserveRateLimit string
}

type GRPCConfig struct {
	Port string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	GroupID      string
	StockTopic   string
	CatalogTopic string
	OrderTopic   string
}

type TracingConfig struct {
	Enabled        bool
	JaegerEndpoint string
	SampleRatio    float64
}

type AuthConfig struct {
	JWTSecret string
}

// LedgerConfig bounds the optimistic-concurrency retry loop.
type LedgerConfig struct {
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

type ReservationConfig struct {
	DefaultTTL     time.Duration
	MaxTTL         time.Duration
	IdempotencyTTL time.Duration
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

type BulkConfig struct {
	ChunkSize  int
	ChunkDelay time.Duration
	MaxItems   int
	StaleAfter time.Duration
}

// Load reads an optional .env file and the process environment.
func Load() (*Config, error) {
	// Missing .env is normal outside local development
	_ = godotenv.Load()

	p := &parser{}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("OTEL_SERVICE_NAME", "inventory-service"),
			Version:     getEnv("SERVICE_VERSION", "1.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		HTTP: HTTPConfig{
			Port:             getEnv("HTTP_PORT", "8082"),
			RequestTimeout:   p.duration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout:  p.duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:     p.int("HTTP_MAX_BODY_BYTES", 4<<20),
			AllowedOrigins:   splitList(getEnv("HTTP_CORS_ORIGINS", "*")),
			ReserveRateLimit: getEnv("HTTP_RESERVE_RATE_LIMIT", ""),
		},
		GRPC: GRPCConfig{
			Port: getEnv("GRPC_PORT", "9092"),
		},
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		Database: database.Config{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			DBName:       getEnv("DB_NAME", "inventorydb"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: p.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: p.int("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  p.bool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:      p.bool("KAFKA_ENABLED", false),
			Brokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			GroupID:      getEnv("KAFKA_GROUP_ID", "inventory-service"),
			StockTopic:   getEnv("KAFKA_STOCK_TOPIC", "inventory-stock-levels"),
			CatalogTopic: getEnv("KAFKA_CATALOG_TOPIC", "catalog-products"),
			OrderTopic:   getEnv("KAFKA_ORDER_TOPIC", "order-events"),
		},
		Tracing: TracingConfig{
			Enabled:        p.bool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
			SampleRatio:    p.float("TRACING_SAMPLE_RATIO", 1),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			MaxRetries:           p.int("LEDGER_MAX_RETRIES", 5),
			RetryInitialInterval: p.duration("LEDGER_RETRY_INITIAL_INTERVAL", 10*time.Millisecond),
			RetryMaxInterval:     p.duration("LEDGER_RETRY_MAX_INTERVAL", 250*time.Millisecond),
		},
		Reservation: ReservationConfig{
			DefaultTTL:     p.duration("RESERVATION_DEFAULT_TTL", 15*time.Minute),
			MaxTTL:         p.duration("RESERVATION_MAX_TTL", 2*time.Hour),
			IdempotencyTTL: p.duration("RESERVATION_IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Sweeper: SweeperConfig{
			Interval:  p.duration("SWEEPER_INTERVAL", 30*time.Second),
			BatchSize: p.int("SWEEPER_BATCH_SIZE", 500),
			LockTTL:   p.duration("SWEEPER_LOCK_TTL", 25*time.Second),
		},
		Bulk: BulkConfig{
			ChunkSize:  p.int("BULK_CHUNK_SIZE", 50),
			ChunkDelay: p.duration("BULK_CHUNK_DELAY", 100*time.Millisecond),
			MaxItems:   p.int("BULK_MAX_ITEMS", 10000),
			StaleAfter: p.duration("BULK_STALE_AFTER", 10*time.Minute),
		},
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.StoreDriver != StoreDriverPostgres && c.StoreDriver != StoreDriverMemory {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver))
	}
	if c.Ledger.MaxRetries < 1 {
		errs = append(errs, errors.New("LEDGER_MAX_RETRIES must be at least 1"))
	}
	if c.Reservation.DefaultTTL <= 0 {
		errs = append(errs, errors.New("RESERVATION_DEFAULT_TTL must be positive"))
	}
	if c.Reservation.MaxTTL < c.Reservation.DefaultTTL {
		errs = append(errs, errors.New("RESERVATION_MAX_TTL must not be less than RESERVATION_DEFAULT_TTL"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("SWEEPER_INTERVAL must be positive"))
	}
	if c.Sweeper.LockTTL >= c.Sweeper.Interval {
		errs = append(errs, errors.New("SWEEPER_LOCK_TTL must be shorter than SWEEPER_INTERVAL"))
	}
	if c.Bulk.ChunkSize < 1 {
		errs = append(errs, errors.New("BULK_CHUNK_SIZE must be at least 1"))
	}
	if c.Bulk.StaleAfter <= c.Bulk.ChunkDelay {
		errs = append(errs, errors.New("BULK_STALE_AFTER must be longer than BULK_CHUNK_DELAY"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so Load reports all of them at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return defaultValue
	}
	return v
}

func (p *parser) bool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return defaultValue
	}
	return v
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return defaultValue
	}
	return v
}

func (p *parser) float(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
