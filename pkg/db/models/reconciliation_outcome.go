package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// ReconciliationOutcome is the durable audit row for one record processed by a
// reconciliation run. Dry runs persist outcomes too, flagged so operators can
// compare a preview against the apply that followed it.
type ReconciliationOutcome struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID       uuid.UUID             `gorm:"column:run_id;type:uuid;not null;index"`
	RecordID    uuid.UUID             `gorm:"column:record_id;type:uuid;not null"`
	Marketplace enums.Marketplace     `gorm:"column:marketplace;type:marketplace_enum;not null"`
	Action      enums.ReconcileAction `gorm:"column:action;type:reconcile_action_enum;not null"`

	BeforeQuantity int  `gorm:"column:before_quantity;not null;default:0"`
	AfterQuantity  int  `gorm:"column:after_quantity;not null;default:0"`
	BeforeSold     bool `gorm:"column:before_sold;not null;default:false"`
	AfterSold      bool `gorm:"column:after_sold;not null;default:false"`

	Detail    string    `gorm:"column:detail"`
	DryRun    bool      `gorm:"column:dry_run;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
