package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BulkJobType selects what each batch item does.
type BulkJobType string

const (
	BulkAdjustment BulkJobType = "ADJUSTMENT"
	BulkRestock    BulkJobType = "RESTOCK"
	BulkRelease    BulkJobType = "RELEASE"
)

// BulkJobStatus is the job-level outcome.
type BulkJobStatus string

const (
	BulkRunning            BulkJobStatus = "RUNNING"
	BulkCompleted          BulkJobStatus = "COMPLETED"
	BulkPartiallyCompleted BulkJobStatus = "PARTIALLY_COMPLETED"
	BulkFailed             BulkJobStatus = "FAILED"
	BulkCancelled          BulkJobStatus = "CANCELLED"
)

// IsTerminal reports whether the job record is frozen.
func (s BulkJobStatus) IsTerminal() bool {
	return s != BulkRunning && s != ""
}

// BulkItemOutcome is the per-item result.
type BulkItemOutcome string

const (
	ItemPending   BulkItemOutcome = "PENDING"
	ItemSucceeded BulkItemOutcome = "SUCCEEDED"
	ItemFailed    BulkItemOutcome = "FAILED"
	ItemSkipped   BulkItemOutcome = "SKIPPED"
)

// BulkItem is one requested change in a batch.
type BulkItem struct {
	ProductID      string              `json:"product_id"`
	AdjustmentType AdjustmentType      `json:"adjustment_type,omitempty"`
	Quantity       int                 `json:"quantity"`
	Reason         string              `json:"reason,omitempty"`
	UnitCost       decimal.NullDecimal `json:"unit_cost"`
	ReservationID  string              `json:"reservation_id,omitempty"`
}

// BulkItemResult records what happened to one item.
type BulkItemResult struct {
	Index      int             `json:"index"`
	ProductID  string          `json:"product_id"`
	Outcome    BulkItemOutcome `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	MovementID string          `json:"movement_id,omitempty"`
}

// BulkItemResults is stored as a jsonb column.
type BulkItemResults []BulkItemResult

// Scan implements sql.Scanner
func (r *BulkItemResults) Scan(value interface{}) error {
	if value == nil {
		*r = BulkItemResults{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan BulkItemResults: %v", value)
	}
	return json.Unmarshal(raw, r)
}

// Value implements driver.Valuer
func (r BulkItemResults) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// BulkJob is the durable, pollable summary of a batch.
type BulkJob struct {
	ID          string          `json:"job_id" gorm:"primaryKey;size:36"`
	Type        BulkJobType     `json:"type" gorm:"size:16;not null"`
	Reason      string          `json:"reason" gorm:"size:255;not null"`
	ActorID     string          `json:"actor_id" gorm:"size:64;not null"`
	TotalItems  int             `json:"total_items" gorm:"not null"`
	Processed   int             `json:"processed" gorm:"not null;default:0"`
	Succeeded   int             `json:"succeeded" gorm:"not null;default:0"`
	Failed      int             `json:"failed" gorm:"not null;default:0"`
	Items       BulkItemResults `json:"items" gorm:"type:jsonb;not null"`
	Status      BulkJobStatus   `json:"status" gorm:"size:24;not null;index"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// TableName specifies the table name
func (BulkJob) TableName() string {
	return "bulk_jobs"
}

// Clone returns a deep copy so callers can hand out snapshots.
func (j BulkJob) Clone() BulkJob {
	out := j
	out.Items = append(BulkItemResults(nil), j.Items...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// FinalStatus derives the terminal status from item outcomes.
func (j BulkJob) FinalStatus(cancelled bool) BulkJobStatus {
	switch {
	case cancelled:
		return BulkCancelled
	case j.Succeeded == j.TotalItems:
		return BulkCompleted
	case j.Succeeded > 0:
		return BulkPartiallyCompleted
	default:
		return BulkFailed
	}
}
