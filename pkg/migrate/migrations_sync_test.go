package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slabworks/slabsync-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestInventoryRecordsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory_records.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_records",
		"CHECK (quantity >= 0)",
		"CREATE INDEX IF NOT EXISTS idx_inventory_records_live_cert",
		"WHERE cert_number IS NOT NULL AND deleted_at IS NULL",
		"DROP TABLE IF EXISTS inventory_records",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}

	// Duplicate live certs must be storable so the resolver has something to
	// repair; only the job table carries a partial unique guard.
	if strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS idx_inventory_records_live_cert") {
		t.Error("cert index must not be unique")
	}
}

func TestSyncJobsMigrationEnforcesSingleLiveJob(t *testing.T) {
	content := readMigration(t, "*_create_sync_jobs.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS sync_jobs",
		"REFERENCES inventory_records(id) ON DELETE CASCADE",
		"idx_sync_jobs_live",
		"WHERE status IN ('queued', 'processing')",
		"DROP TABLE IF EXISTS sync_jobs",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
