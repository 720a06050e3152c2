package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/pkg/database"
)

// GormStore implements domain.TransactionScope on PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new PostgreSQL store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates the inventory tables, their CHECK constraints and the
// (state, expires_at) and (product_id, ledger_version) indexes.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&domain.InventoryRecord{},
		&domain.MovementRecord{},
		&domain.ReservationRecord{},
		&domain.AdjustmentRecord{},
		&domain.BulkJob{},
	)
}

// Execute runs fn inside one database transaction.
func (s *GormStore) Execute(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newGormRepositories(tx))
	})
}

var snapshotTx = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// Snapshot runs fn in a REPEATABLE READ, read-only transaction, so every
// statement sees the snapshot taken by the first one.
func (s *GormStore) Snapshot(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newGormRepositories(tx))
	}, snapshotTx)
}

func (s *GormStore) Repositories() domain.Repositories {
	return newGormRepositories(s.db)
}

type gormRepositories struct {
	db *gorm.DB
}

func newGormRepositories(db *gorm.DB) *gormRepositories {
	return &gormRepositories{db: db}
}

func (r *gormRepositories) Inventory() domain.InventoryRepository {
	return &GormInventoryRepository{db: r.db}
}

func (r *gormRepositories) Movements() domain.MovementRepository {
	return &GormMovementRepository{db: r.db}
}

func (r *gormRepositories) Reservations() domain.ReservationRepository {
	return &GormReservationRepository{db: r.db}
}

func (r *gormRepositories) Adjustments() domain.AdjustmentRepository {
	return &GormAdjustmentRepository{db: r.db}
}

func (r *gormRepositories) BulkJobs() domain.BulkJobRepository {
	return &GormBulkJobRepository{db: r.db}
}

type GormInventoryRepository struct {
	db *gorm.DB
}

func (r *GormInventoryRepository) Create(ctx context.Context, record *domain.InventoryRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if database.IsUniqueViolation(err) {
		return domain.ErrInventoryExists
	}
	return err
}

func (r *GormInventoryRepository) FindByProductID(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInventoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *GormInventoryRepository) FindAll(ctx context.Context, limit, offset int) ([]domain.InventoryRecord, error) {
	var records []domain.InventoryRecord
	q := r.db.WithContext(ctx).Order("product_id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Offset(offset).Find(&records).Error
	return records, err
}

// CompareAndSwap issues UPDATE ... WHERE product_id = ? AND version = ?.
func (r *GormInventoryRepository) CompareAndSwap(ctx context.Context, record *domain.InventoryRecord, expectedVersion int64) error {
	result := r.db.WithContext(ctx).
		Model(&domain.InventoryRecord{}).
		Where("product_id = ? AND version = ?", record.ProductID, expectedVersion).
		Updates(map[string]interface{}{
			"on_hand":           record.OnHand,
			"reserved":          record.Reserved,
			"average_unit_cost": record.AverageUnitCost,
			"last_cost":         record.LastCost,
			"version":           record.Version,
			"updated_at":        record.UpdatedAt,
		})
	if result.Error != nil {
		if database.IsCheckViolation(result.Error) {
			return &domain.InvariantViolationError{
				ProductID: record.ProductID,
				Operation: "compare_and_swap",
				Detail:    "rejected by table check constraint",
				OnHand:    record.OnHand,
				Reserved:  record.Reserved,
			}
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *GormInventoryRepository) UpdateThreshold(ctx context.Context, productID string, threshold int) error {
	result := r.db.WithContext(ctx).
		Model(&domain.InventoryRecord{}).
		Where("product_id = ?", productID).
		Update("low_stock_threshold", threshold)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInventoryNotFound
	}
	return nil
}

type GormMovementRepository struct {
	db *gorm.DB
}

// Append inserts a movement. A duplicate (product_id, ledger_version) means a
// concurrent writer took the same version.
func (r *GormMovementRepository) Append(ctx context.Context, movement *domain.MovementRecord) error {
	err := r.db.WithContext(ctx).Create(movement).Error
	if database.IsUniqueViolation(err) {
		return domain.ErrVersionConflict
	}
	return err
}

func (r *GormMovementRepository) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]domain.MovementRecord, error) {
	var movements []domain.MovementRecord
	q := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("ledger_version ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Offset(offset).Find(&movements).Error
	return movements, err
}

type GormReservationRepository struct {
	db *gorm.DB
}

func (r *GormReservationRepository) Create(ctx context.Context, reservation *domain.ReservationRecord) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *GormReservationRepository) FindByID(ctx context.Context, id string) (*domain.ReservationRecord, error) {
	var reservation domain.ReservationRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// Transition is a conditional UPDATE guarded by state = 'ACTIVE', so two racing
// finalizers cannot both succeed.
func (r *GormReservationRepository) Transition(ctx context.Context, t domain.Transition) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&domain.ReservationRecord{}).
		Where("id = ? AND state = ?", t.ReservationID, domain.ReservationActive)
	if !t.ExpiredBefore.IsZero() {
		q = q.Where("expires_at < ?", t.ExpiredBefore)
	}

	updates := map[string]interface{}{
		"state":        t.To,
		"finalized_at": t.At,
	}
	if t.Reason != "" {
		updates["reason"] = t.Reason
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.ReservationRecord, error) {
	var reservations []domain.ReservationRecord
	q := r.db.WithContext(ctx).
		Where("state = ? AND expires_at < ?", domain.ReservationActive, now).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&reservations).Error
	return reservations, err
}

func (r *GormReservationRepository) SumActive(ctx context.Context, productID string) (int, error) {
	var sum int
	err := r.db.WithContext(ctx).
		Model(&domain.ReservationRecord{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("product_id = ? AND state = ?", productID, domain.ReservationActive).
		Scan(&sum).Error
	return sum, err
}

type GormAdjustmentRepository struct {
	db *gorm.DB
}

func (r *GormAdjustmentRepository) Create(ctx context.Context, adjustment *domain.AdjustmentRecord) error {
	return r.db.WithContext(ctx).Create(adjustment).Error
}

func (r *GormAdjustmentRepository) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]domain.AdjustmentRecord, error) {
	var adjustments []domain.AdjustmentRecord
	q := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Offset(offset).Find(&adjustments).Error
	return adjustments, err
}

type GormBulkJobRepository struct {
	db *gorm.DB
}

func (r *GormBulkJobRepository) Create(ctx context.Context, job *domain.BulkJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *GormBulkJobRepository) FindByID(ctx context.Context, id string) (*domain.BulkJob, error) {
	var job domain.BulkJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *GormBulkJobRepository) FindStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.BulkJob, error) {
	var jobs []domain.BulkJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.BulkRunning, updatedBefore).
		Order("updated_at").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Update only touches a RUNNING job. A job that already finished is immutable.
func (r *GormBulkJobRepository) Update(ctx context.Context, job *domain.BulkJob) error {
	result := r.db.WithContext(ctx).
		Model(&domain.BulkJob{}).
		Where("id = ? AND status = ?", job.ID, domain.BulkRunning).
		Updates(map[string]interface{}{
			"processed":    job.Processed,
			"succeeded":    job.Succeeded,
			"failed":       job.Failed,
			"items":        job.Items,
			"status":       job.Status,
			"completed_at": job.CompletedAt,
			"updated_at":   job.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, job.ID); err != nil {
		return err
	}
	return domain.ErrJobTerminal
}
