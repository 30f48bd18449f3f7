package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

func mustCreateRecord(t *testing.T, tx *gorm.DB, mutate func(*models.InventoryRecord)) *models.InventoryRecord {
	t.Helper()
	record := &models.InventoryRecord{
		ID:          uuid.New(),
		SKU:         "test-sku",
		Title:       "Test Card",
		Category:    "pokemon",
		Brand:       "Pokemon",
		Price:       decimal.NewFromInt(10),
		Quantity:    1,
		Location:    "store-a",
		Marketplace: enums.MarketplaceSquare,
		SyncStatus:  enums.RecordSyncUnsynced,
	}
	if mutate != nil {
		mutate(record)
	}
	if err := tx.Create(record).Error; err != nil {
		t.Fatalf("create record: %v", err)
	}
	return record
}

func TestSoftDeleteScopesReads(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		record := mustCreateRecord(t, tx, nil)

		if err := repo.SoftDelete(ctx, record.ID, "test cleanup"); err != nil {
			t.Fatalf("soft delete: %v", err)
		}

		if _, err := repo.FindByID(ctx, record.ID); err == nil {
			t.Fatal("expected deleted record to be invisible to FindByID")
		}

		var raw models.InventoryRecord
		if err := tx.First(&raw, "id = ?", record.ID).Error; err != nil {
			t.Fatalf("raw read: %v", err)
		}
		if raw.DeletedAt == nil || raw.DeletedReason == nil || *raw.DeletedReason != "test cleanup" {
			t.Fatalf("expected soft delete markers, got %+v", raw)
		}
		return gorm.ErrInvalidTransaction
	})
	if err == nil {
		t.Fatal("expected rollback sentinel")
	}
}

func TestDuplicateCertNumbersGroupsLiveRows(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		cert := "PSA-" + uuid.NewString()[:8]

		first := mustCreateRecord(t, tx, func(r *models.InventoryRecord) {
			r.CertNumber = &cert
			r.Graded = true
			r.CreatedAt = time.Now().Add(-time.Hour)
		})
		mustCreateRecord(t, tx, func(r *models.InventoryRecord) {
			r.CertNumber = &cert
			r.Graded = true
		})

		certs, err := repo.DuplicateCertNumbers(ctx, enums.MarketplaceSquare)
		if err != nil {
			t.Fatalf("duplicate cert numbers: %v", err)
		}
		found := false
		for _, c := range certs {
			if c == cert {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected cert %s in duplicates, got %v", cert, certs)
		}

		group, err := repo.ListByCertNumber(ctx, cert, enums.MarketplaceSquare)
		if err != nil {
			t.Fatalf("list by cert: %v", err)
		}
		if len(group) != 2 {
			t.Fatalf("expected 2 records in group, got %d", len(group))
		}
		if group[0].ID != first.ID {
			t.Fatal("expected oldest record first")
		}
		return gorm.ErrInvalidTransaction
	})
	if err == nil {
		t.Fatal("expected rollback sentinel")
	}
}

func TestClearListingRefsResetsSyncState(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		ref := "sq-obj-123"
		record := mustCreateRecord(t, tx, func(r *models.InventoryRecord) {
			r.ProductRef = &ref
			r.SyncStatus = enums.RecordSyncSynced
		})

		if err := repo.ClearListingRefs(ctx, record.ID); err != nil {
			t.Fatalf("clear refs: %v", err)
		}

		reloaded, err := repo.FindByID(ctx, record.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.Linked() {
			t.Fatal("expected refs cleared")
		}
		if reloaded.SyncStatus != enums.RecordSyncUnsynced {
			t.Fatalf("expected unsynced status, got %s", reloaded.SyncStatus)
		}
		return gorm.ErrInvalidTransaction
	})
	if err == nil {
		t.Fatal("expected rollback sentinel")
	}
}
