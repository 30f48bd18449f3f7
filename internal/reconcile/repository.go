package reconcile

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
)

// Repository persists reconciliation outcome rows. Outcomes are append-only;
// runs are grouped by run_id.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one outcome row.
func (r *Repository) Insert(ctx context.Context, outcome *models.ReconciliationOutcome) error {
	return r.db.WithContext(ctx).Create(outcome).Error
}

// ListByRun returns every outcome for a run, oldest first.
func (r *Repository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationOutcome, error) {
	var rows []models.ReconciliationOutcome
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC, id ASC").
		Find(&rows).
		Error
	return rows, err
}
