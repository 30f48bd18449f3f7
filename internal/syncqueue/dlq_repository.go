package syncqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
)

// DLQRepository persists the dead-letter archive for exhausted jobs.
type DLQRepository struct {
	db *gorm.DB
}

// NewDLQRepository builds the dead-letter repository.
func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx archives the entry inside the same transaction that marks the job
// terminal.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.DeadLetterEntry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByID loads one entry.
func (r *DLQRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeadLetterEntry, error) {
	var entry models.DeadLetterEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByJobID returns the entry for a job, or nil when none exists.
func (r *DLQRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) (*models.DeadLetterEntry, error) {
	var entry models.DeadLetterEntry
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// List returns entries, optionally only unresolved ones, newest failures first.
func (r *DLQRepository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]models.DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.DeadLetterEntry{})
	if unresolvedOnly {
		query = query.Where("resolved_at IS NULL")
	}
	var rows []models.DeadLetterEntry
	err := query.Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Resolve stamps the entry resolved with an operator note. Returns false when
// the entry was already resolved.
func (r *DLQRepository) Resolve(ctx context.Context, id uuid.UUID, note string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DeadLetterEntry{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{
			"resolved_at":     time.Now().UTC(),
			"resolution_note": note,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
