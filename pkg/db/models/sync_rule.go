package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/slabworks/slabsync-backend/pkg/db/types"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// SyncRule is one ordered include/exclude predicate for marketplace-sync
// eligibility. Predicates compose conjunctively; an empty predicate set
// matches every record.
type SyncRule struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string             `gorm:"column:name;not null"`
	Type          enums.RuleType     `gorm:"column:type;type:rule_type_enum;not null"`
	Categories    dbtypes.StringList `gorm:"column:categories;type:jsonb;not null;default:'[]'"`
	BrandKeywords dbtypes.StringList `gorm:"column:brand_keywords;type:jsonb;not null;default:'[]'"`
	MinPrice      *decimal.Decimal   `gorm:"column:min_price;type:numeric(12,2)"`
	MaxPrice      *decimal.Decimal   `gorm:"column:max_price;type:numeric(12,2)"`
	GradedOnly    bool               `gorm:"column:graded_only;not null;default:false"`
	Priority      int                `gorm:"column:priority;not null;default:0"`
	Active        bool               `gorm:"column:active;not null;default:true"`
	AutoQueue     bool               `gorm:"column:auto_queue;not null;default:false"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
