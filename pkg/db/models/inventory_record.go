package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// InventoryRecord is one physical intake unit or lot. Records are never hard
// deleted; removal sets DeletedAt plus a reason so duplicate resolution and
// audits can explain what happened.
type InventoryRecord struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CertNumber *string         `gorm:"column:cert_number"`
	SKU        string          `gorm:"column:sku;not null"`
	Title      string          `gorm:"column:title;not null"`
	Category   string          `gorm:"column:category"`
	Brand      string          `gorm:"column:brand"`
	Grade      *string         `gorm:"column:grade"`
	Graded     bool            `gorm:"column:graded;not null;default:false"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Quantity   int             `gorm:"column:quantity;not null;default:0"`
	Location   string          `gorm:"column:location;not null"`

	Marketplace enums.Marketplace      `gorm:"column:marketplace;type:marketplace_enum;not null"`
	ProductRef  *string                `gorm:"column:product_ref"`
	ListingRef  *string                `gorm:"column:listing_ref"`
	VariantRef  *string                `gorm:"column:variant_ref"`
	SyncStatus  enums.RecordSyncStatus `gorm:"column:sync_status;type:record_sync_status_enum;not null;default:unsynced"`
	SyncFlagged bool                   `gorm:"column:sync_flagged;not null;default:false"`
	LastSynced  *time.Time             `gorm:"column:last_synced"`

	Sold   bool       `gorm:"column:sold;not null;default:false"`
	SoldAt *time.Time `gorm:"column:sold_at"`

	DeletedAt     *time.Time `gorm:"column:deleted_at;index"`
	DeletedReason *string    `gorm:"column:deleted_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Linked reports whether the record carries any marketplace reference.
func (r InventoryRecord) Linked() bool {
	return deref(r.ProductRef) != "" || deref(r.ListingRef) != "" || deref(r.VariantRef) != ""
}

// Deleted reports whether the record is soft deleted.
func (r InventoryRecord) Deleted() bool {
	return r.DeletedAt != nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
