package syncqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

const maxErrorMessageLen = 1024

// staleClaimMessage is recorded on a job reclaimed from a worker that stopped
// heartbeating.
const staleClaimMessage = "reclaimed after worker heartbeat expired"

// Repository persists sync jobs. Claiming runs inside a transaction with row
// locks so concurrent workers never grab the same job.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Insert creates a new job row.
func (r *Repository) Insert(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// FindByID loads one job.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// FindLive returns the queued or processing job for (record, marketplace), or
// nil when none exists.
func (r *Repository) FindLive(ctx context.Context, recordID uuid.UUID, marketplace enums.Marketplace) (*models.SyncJob, error) {
	var job models.SyncJob
	err := r.db.WithContext(ctx).
		Where("record_id = ? AND marketplace = ? AND status IN ?", recordID, marketplace, enums.LiveSyncJobStatuses).
		First(&job).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// ClaimNext locks and claims the next eligible job: the oldest queued job whose
// retry delay elapsed, or a processing job whose worker stopped heartbeating.
// Reclaiming a stale job spends one retry; the second return reports that case.
// Must run inside a transaction.
func (r *Repository) ClaimNext(tx *gorm.DB, processorID string, heartbeatTimeout time.Duration) (*models.SyncJob, bool, error) {
	if tx == nil {
		return nil, false, errors.New("transaction required")
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-heartbeatTimeout)

	var job models.SyncJob
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where(
			"(status = ? AND (retry_after IS NULL OR retry_after <= ?)) OR (status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?))",
			enums.SyncJobQueued, now, enums.SyncJobProcessing, staleBefore,
		).
		Order("position ASC").
		First(&job).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	reclaimed := job.Status == enums.SyncJobProcessing

	updates := map[string]any{
		"status":       enums.SyncJobProcessing,
		"processor_id": processorID,
		"heartbeat_at": now,
	}
	if job.StartedAt == nil {
		updates["started_at"] = now
	}
	if reclaimed {
		// A stale heartbeat means the previous worker died mid-attempt. That
		// attempt is spent, so the retry budget shrinks with the reclaim.
		updates["retry_count"] = gorm.Expr("retry_count + 1")
		updates["error_type"] = enums.SyncErrorTransient
		updates["error_message"] = staleClaimMessage
	}
	if err := tx.Model(&models.SyncJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		return nil, false, err
	}

	job.Status = enums.SyncJobProcessing
	job.ProcessorID = &processorID
	job.HeartbeatAt = &now
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if reclaimed {
		job.RetryCount++
		errType := enums.SyncErrorTransient
		message := staleClaimMessage
		job.ErrorType = &errType
		job.ErrorMessage = &message
	}
	return &job, reclaimed, nil
}

// Heartbeat refreshes the claim timestamp. Returns false when the job is no
// longer processing under this worker, meaning the claim was lost.
func (r *Repository) Heartbeat(ctx context.Context, jobID uuid.UUID, processorID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND processor_id = ? AND status = ?", jobID, processorID, enums.SyncJobProcessing).
		Update("heartbeat_at", time.Now().UTC())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkDone completes the job. Returns false when the claim was lost in the
// meantime (cancellation or staleness reclaim); the caller discards the result.
func (r *Repository) MarkDone(ctx context.Context, jobID uuid.UUID, processorID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND processor_id = ? AND status = ?", jobID, processorID, enums.SyncJobProcessing).
		Updates(map[string]any{
			"status":       enums.SyncJobDone,
			"completed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Requeue schedules a transient failure for another attempt after the delay.
func (r *Repository) Requeue(ctx context.Context, jobID uuid.UUID, processorID string, errType enums.SyncErrorType, message string, retryAfter time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND processor_id = ? AND status = ?", jobID, processorID, enums.SyncJobProcessing).
		Updates(map[string]any{
			"status":        enums.SyncJobQueued,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"retry_after":   retryAfter.UTC(),
			"error_type":    errType,
			"error_message": truncateError(message),
			"processor_id":  nil,
			"heartbeat_at":  nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkTerminalTx moves the job to error status inside the dead-letter
// transaction.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, jobID uuid.UUID, errType enums.SyncErrorType, message string) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":        enums.SyncJobError,
			"error_type":    errType,
			"error_message": truncateError(message),
			"completed_at":  time.Now().UTC(),
		}).
		Error
}

// Cancel transitions a live job to cancelled. Processing jobs are cancelled
// immediately; the worker's completion write later misses and is discarded.
func (r *Repository) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND status IN ?", jobID, enums.LiveSyncJobStatuses).
		Updates(map[string]any{
			"status":       enums.SyncJobCancelled,
			"completed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateAction rewrites the action on a still-queued job.
func (r *Repository) UpdateAction(ctx context.Context, jobID uuid.UUID, action enums.SyncAction) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", jobID, enums.SyncJobQueued).
		Update("action", action)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountsByStatus returns how many jobs sit in each status.
func (r *Repository) CountsByStatus(ctx context.Context) (map[enums.SyncJobStatus]int64, error) {
	type row struct {
		Status enums.SyncJobStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.SyncJobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// List returns jobs filtered by status (all statuses when empty), newest first.
func (r *Repository) List(ctx context.Context, status enums.SyncJobStatus, limit int) ([]models.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.SyncJob{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var rows []models.SyncJob
	err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func truncateError(message string) string {
	if len(message) <= maxErrorMessageLen {
		return message
	}
	return message[:maxErrorMessageLen]
}
