package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	dbtypes "github.com/slabworks/slabsync-backend/pkg/db/types"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

func setupRulesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS sync_rules (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  categories TEXT NOT NULL DEFAULT '[]',
  brand_keywords TEXT NOT NULL DEFAULT '[]',
  min_price NUMERIC,
  max_price NUMERIC,
  graded_only INTEGER NOT NULL DEFAULT 0,
  priority INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  auto_queue INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedRule(t *testing.T, db *gorm.DB, name string, priority int, active bool, createdAt time.Time) *models.SyncRule {
	t.Helper()
	rule := &models.SyncRule{
		ID:            uuid.New(),
		Name:          name,
		Type:          enums.RuleInclude,
		Categories:    dbtypes.StringList{},
		BrandKeywords: dbtypes.StringList{},
		Priority:      priority,
		Active:        active,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, db.Create(rule).Error)
	return rule
}

func TestRuleListOrdersByPriorityThenAge(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := seedRule(t, db, "older-low", 5, true, base)
	newer := seedRule(t, db, "newer-low", 5, true, base.Add(time.Hour))
	high := seedRule(t, db, "high", 10, true, base.Add(2*time.Hour))

	rows, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, high.ID, rows[0].ID)
	assert.Equal(t, older.ID, rows[1].ID)
	assert.Equal(t, newer.ID, rows[2].ID)
}

func TestListActiveSkipsDisabledRules(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	active := seedRule(t, db, "active", 1, true, base)
	seedRule(t, db, "disabled", 9, false, base)

	rows, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, active.ID, rows[0].ID)
}

func TestDeleteIsHard(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	rule := seedRule(t, db, "doomed", 0, true, time.Now())
	require.NoError(t, repo.Delete(ctx, rule.ID))

	_, err := repo.FindByID(ctx, rule.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var count int64
	require.NoError(t, db.Model(&models.SyncRule{}).Count(&count).Error)
	assert.Zero(t, count)
}
