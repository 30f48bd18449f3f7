package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// DeadLetterEntry is the immutable archive of a sync job that exhausted its
// retries (or failed permanently). RecordSnapshot captures the inventory
// record as it looked at failure time so operators can diagnose after the
// record moves on.
type DeadLetterEntry struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID        uuid.UUID           `gorm:"column:job_id;type:uuid;not null;uniqueIndex"`
	RecordID     uuid.UUID           `gorm:"column:record_id;type:uuid;not null"`
	Marketplace  enums.Marketplace   `gorm:"column:marketplace;type:marketplace_enum;not null"`
	Action       enums.SyncAction    `gorm:"column:action;type:sync_action_enum;not null"`
	ErrorType    enums.SyncErrorType `gorm:"column:error_type;type:sync_error_type_enum;not null"`
	ErrorMessage *string             `gorm:"column:error_message"`
	RetryCount   int                 `gorm:"column:retry_count;not null;default:0"`

	RecordSnapshot json.RawMessage `gorm:"column:record_snapshot;type:jsonb"`

	FailedAt       time.Time  `gorm:"column:failed_at;autoCreateTime"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at"`
	ResolutionNote *string    `gorm:"column:resolution_note"`
}

// Resolved reports whether an operator already dismissed or retried the entry.
func (d DeadLetterEntry) Resolved() bool {
	return d.ResolvedAt != nil
}
