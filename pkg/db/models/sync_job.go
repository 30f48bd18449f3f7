package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// SyncJob is one pending marketplace mutation. A partial unique index keeps at
// most one job per (record_id, marketplace) in a live status, so per-record
// ordering is serialized by construction.
type SyncJob struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RecordID    uuid.UUID           `gorm:"column:record_id;type:uuid;not null"`
	Marketplace enums.Marketplace   `gorm:"column:marketplace;type:marketplace_enum;not null"`
	Action      enums.SyncAction    `gorm:"column:action;type:sync_action_enum;not null"`
	Status      enums.SyncJobStatus `gorm:"column:status;type:sync_job_status_enum;not null;default:queued"`

	// Position breaks creation-time ties; claims order by (created_at, position).
	Position int64 `gorm:"column:position;autoIncrement;uniqueIndex"`

	RetryCount   int                  `gorm:"column:retry_count;not null;default:0"`
	MaxRetries   int                  `gorm:"column:max_retries;not null;default:3"`
	RetryAfter   *time.Time           `gorm:"column:retry_after"`
	ErrorType    *enums.SyncErrorType `gorm:"column:error_type;type:sync_error_type_enum"`
	ErrorMessage *string              `gorm:"column:error_message"`

	ProcessorID *string    `gorm:"column:processor_id"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at"`

	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// Exhausted reports whether the job has burned its retry budget.
func (j SyncJob) Exhausted() bool {
	return j.RetryCount >= j.MaxRetries
}
