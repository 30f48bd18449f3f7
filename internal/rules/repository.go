package rules

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
)

// Repository persists sync rules.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new rule.
func (r *Repository) Create(ctx context.Context, rule *models.SyncRule) (*models.SyncRule, error) {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// Update saves the full rule row.
func (r *Repository) Update(ctx context.Context, rule *models.SyncRule) (*models.SyncRule, error) {
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes the rule. Rules are configuration, not audit data, so the
// delete is hard.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.SyncRule{}, "id = ?", id).Error
}

// FindByID loads one rule.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SyncRule, error) {
	var rule models.SyncRule
	if err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// List returns every rule in evaluation order.
func (r *Repository) List(ctx context.Context) ([]models.SyncRule, error) {
	var rows []models.SyncRule
	err := r.db.WithContext(ctx).
		Order("priority DESC, created_at ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListActive returns the active rules in evaluation order: priority descending,
// creation order breaking ties.
func (r *Repository) ListActive(ctx context.Context) ([]models.SyncRule, error) {
	var rows []models.SyncRule
	err := r.db.WithContext(ctx).
		Where("active = TRUE").
		Order("priority DESC, created_at ASC").
		Find(&rows).
		Error
	return rows, err
}
