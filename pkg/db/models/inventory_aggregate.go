package models

import (
	"time"

	dbtypes "github.com/slabworks/slabsync-backend/pkg/db/types"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// InventoryAggregate is the externally-visible quantity per (SKU, marketplace):
// the sum of all live record quantities across locations, plus the last value
// the marketplace was told about.
type InventoryAggregate struct {
	SKU                 string              `gorm:"column:sku;primaryKey"`
	Marketplace         enums.Marketplace   `gorm:"column:marketplace;type:marketplace_enum;primaryKey"`
	TotalQuantity       int                 `gorm:"column:total_quantity;not null;default:0"`
	LocationQuantities  dbtypes.QuantityMap `gorm:"column:location_quantities;type:jsonb;not null;default:'{}'"`
	MarketplaceQuantity int                 `gorm:"column:marketplace_quantity;not null;default:0"`
	NeedsSync           bool                `gorm:"column:needs_sync;not null;default:false"`
	LastSynced          *time.Time          `gorm:"column:last_synced"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
