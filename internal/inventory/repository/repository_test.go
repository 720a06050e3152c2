package repository

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tair/inventory-engine/internal/inventory/repository/memory"
	"github.com/tair/inventory-engine/internal/inventory/repository/storetest"
)

// openTestDB connects to INVENTORY_TEST_DSN, e.g.
// host=localhost user=postgres password=postgres dbname=inventory_test sslmode=disable
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("INVENTORY_TEST_DSN")
	if dsn == "" {
		t.Skip("INVENTORY_TEST_DSN not set, skipping PostgreSQL tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	return db
}

func TestGormStoreContract(t *testing.T) {
	store := NewGormStore(openTestDB(t))
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	storetest.Run(t, store)
}

func TestTracingStoreContract(t *testing.T) {
	storetest.Run(t, NewTracingStore(memory.NewStore()))
}
