package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
	"github.com/slabworks/slabsync-backend/pkg/pagination"
)

// ListFilter narrows record listings. Zero values mean no constraint.
type ListFilter struct {
	SKU         string
	Location    string
	Marketplace enums.Marketplace
	SyncStatus  enums.RecordSyncStatus
	FlaggedOnly bool
	IncludeSold bool
}

// Repository persists inventory records. Deletes are soft; every read scopes
// to live rows unless stated otherwise.
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

func (r *Repository) live(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Where("deleted_at IS NULL")
}

// Create inserts a new record row.
func (r *Repository) Create(ctx context.Context, record *models.InventoryRecord) (*models.InventoryRecord, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// Update saves the full record row.
func (r *Repository) Update(ctx context.Context, record *models.InventoryRecord) (*models.InventoryRecord, error) {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// FindByID loads one live record.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	if err := r.live(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByIDs loads the live records for the given ids, in no particular order.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.InventoryRecord
	if err := r.live(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List returns live records matching the filter, newest first, cursor paged.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.InventoryRecord, string, error) {
	query := r.live(ctx)

	if filter.SKU != "" {
		query = query.Where("sku = ?", filter.SKU)
	}
	if filter.Location != "" {
		query = query.Where("location = ?", filter.Location)
	}
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", filter.Marketplace)
	}
	if filter.SyncStatus != "" {
		query = query.Where("sync_status = ?", filter.SyncStatus)
	}
	if filter.FlaggedOnly {
		query = query.Where("sync_flagged = TRUE")
	}
	if !filter.IncludeSold {
		query = query.Where("sold = FALSE")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var rows []models.InventoryRecord
	if err := query.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// ListBySKU returns the live, unsold records for a SKU on one marketplace.
func (r *Repository) ListBySKU(ctx context.Context, sku string, marketplace enums.Marketplace) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.live(ctx).
		Where("sku = ? AND marketplace = ? AND sold = FALSE", sku, marketplace).
		Order("created_at ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListLinked returns live records that carry a marketplace reference,
// optionally scoped to one location.
func (r *Repository) ListLinked(ctx context.Context, marketplace enums.Marketplace, location string) ([]models.InventoryRecord, error) {
	query := r.live(ctx).
		Where("marketplace = ?", marketplace).
		Where("product_ref IS NOT NULL OR listing_ref IS NOT NULL OR variant_ref IS NOT NULL")
	if location != "" {
		query = query.Where("location = ?", location)
	}
	var rows []models.InventoryRecord
	err := query.Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// ListEvaluable returns every live, unsold record on the marketplace. Rule
// application walks this set.
func (r *Repository) ListEvaluable(ctx context.Context, marketplace enums.Marketplace) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.live(ctx).
		Where("marketplace = ? AND sold = FALSE", marketplace).
		Order("created_at ASC").
		Find(&rows).
		Error
	return rows, err
}

// DistinctSKUs lists every SKU with at least one live record on the marketplace.
func (r *Repository) DistinctSKUs(ctx context.Context, marketplace enums.Marketplace) ([]string, error) {
	var skus []string
	err := r.live(ctx).
		Model(&models.InventoryRecord{}).
		Where("marketplace = ?", marketplace).
		Distinct("sku").
		Order("sku ASC").
		Pluck("sku", &skus).
		Error
	return skus, err
}

// SoftDelete marks the record deleted with a reason. Already-deleted rows are
// left untouched.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at":     now,
			"deleted_reason": reason,
			"updated_at":     now,
		}).
		Error
}

// ClearListingRefs drops the marketplace linkage and resets sync state so the
// record can be relisted from scratch.
func (r *Repository) ClearListingRefs(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"product_ref": nil,
			"listing_ref": nil,
			"variant_ref": nil,
			"sync_status": enums.RecordSyncUnsynced,
			"last_synced": nil,
			"updated_at":  time.Now().UTC(),
		}).
		Error
}

// MarkSold flags the record sold at the given time and zeroes its quantity.
func (r *Repository) MarkSold(ctx context.Context, id uuid.UUID, soldAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sold":       true,
			"sold_at":    soldAt.UTC(),
			"quantity":   0,
			"updated_at": time.Now().UTC(),
		}).
		Error
}

// CorrectQuantity overwrites quantity and sold state from an external source
// of truth. Clearing sold also clears sold_at.
func (r *Repository) CorrectQuantity(ctx context.Context, id uuid.UUID, quantity int, sold bool, soldAt *time.Time) error {
	if quantity < 0 {
		quantity = 0
	}
	updates := map[string]any{
		"quantity":   quantity,
		"sold":       sold,
		"updated_at": time.Now().UTC(),
	}
	if sold {
		at := time.Now().UTC()
		if soldAt != nil {
			at = soldAt.UTC()
		}
		updates["sold_at"] = at
	} else {
		updates["sold_at"] = nil
	}
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", id).
		Updates(updates).
		Error
}

// SetQuantity overwrites the on-hand quantity.
func (r *Repository) SetQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity":   quantity,
			"updated_at": time.Now().UTC(),
		}).
		Error
}

// SetSyncStatus transitions the record's sync status, stamping last_synced on
// success.
func (r *Repository) SetSyncStatus(ctx context.Context, id uuid.UUID, status enums.RecordSyncStatus) error {
	updates := map[string]any{
		"sync_status": status,
		"updated_at":  time.Now().UTC(),
	}
	if status == enums.RecordSyncSynced {
		updates["last_synced"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", id).
		Updates(updates).
		Error
}

// SetSyncFlagged sets whether the record is eligible for marketplace sync.
func (r *Repository) SetSyncFlagged(ctx context.Context, id uuid.UUID, flagged bool) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_flagged": flagged,
			"updated_at":   time.Now().UTC(),
		}).
		Error
}

// DuplicateCertNumbers lists cert numbers held by more than one live record on
// the same marketplace.
func (r *Repository) DuplicateCertNumbers(ctx context.Context, marketplace enums.Marketplace) ([]string, error) {
	var certs []string
	err := r.live(ctx).
		Model(&models.InventoryRecord{}).
		Where("cert_number IS NOT NULL AND marketplace = ?", marketplace).
		Group("cert_number").
		Having("COUNT(*) > 1").
		Order("cert_number ASC").
		Pluck("cert_number", &certs).
		Error
	return certs, err
}

// ListByCertNumber returns the live records sharing a cert number on one
// marketplace, oldest first.
func (r *Repository) ListByCertNumber(ctx context.Context, certNumber string, marketplace enums.Marketplace) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.live(ctx).
		Where("cert_number = ? AND marketplace = ?", certNumber, marketplace).
		Order("created_at ASC, id ASC").
		Find(&rows).
		Error
	return rows, err
}
