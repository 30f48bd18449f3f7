package aggregation

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// Repository persists per-SKU aggregates keyed by (sku, marketplace).
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

// Upsert writes the aggregate, replacing any existing row for the key.
func (r *Repository) Upsert(ctx context.Context, aggregate *models.InventoryAggregate) (*models.InventoryAggregate, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "sku"}, {Name: "marketplace"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_quantity",
				"location_quantities",
				"marketplace_quantity",
				"needs_sync",
				"last_synced",
				"updated_at",
			}),
		}).
		Create(aggregate).
		Error
	if err != nil {
		return nil, err
	}
	return aggregate, nil
}

// Get loads one aggregate row.
func (r *Repository) Get(ctx context.Context, sku string, marketplace enums.Marketplace) (*models.InventoryAggregate, error) {
	var aggregate models.InventoryAggregate
	err := r.db.WithContext(ctx).
		First(&aggregate, "sku = ? AND marketplace = ?", sku, marketplace).
		Error
	if err != nil {
		return nil, err
	}
	return &aggregate, nil
}

// List returns aggregates for a marketplace, optionally only those out of sync.
func (r *Repository) List(ctx context.Context, marketplace enums.Marketplace, needsSyncOnly bool) ([]models.InventoryAggregate, error) {
	query := r.db.WithContext(ctx).Where("marketplace = ?", marketplace)
	if needsSyncOnly {
		query = query.Where("needs_sync = TRUE")
	}
	var rows []models.InventoryAggregate
	if err := query.Order("sku ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete removes the aggregate row, used when a SKU's last record disappears.
func (r *Repository) Delete(ctx context.Context, sku string, marketplace enums.Marketplace) error {
	return r.db.WithContext(ctx).
		Where("sku = ? AND marketplace = ?", sku, marketplace).
		Delete(&models.InventoryAggregate{}).
		Error
}
