// Tests for the embedded migration runner.
package sqlite_test

import (
	"context"
	"testing"

	"github.com/matiasleandrokruk/promptpolish/internal/infra/sqlite"
)

func TestMigrate_CreatesUsageLog(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t, "")
	if err := sqlite.MigrateUp(context.Background(), db); err != nil {
		t.Fatalf("MigrateUp() error = %v; want nil", err)
	}
	assertTableExists(t, db, "usage_log")
	assertTableExists(t, db, "schema_migrations")
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := mustOpenDB(t, "")
	if err := sqlite.MigrateUp(ctx, db); err != nil {
		t.Fatalf("MigrateUp() first run error = %v", err)
	}

	var before int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&before); err != nil {
		t.Fatalf("count before: %v", err)
	}
	if err := sqlite.MigrateUp(ctx, db); err != nil {
		t.Fatalf("MigrateUp() second run error = %v; want nil", err)
	}
	var after int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&after); err != nil {
		t.Fatalf("count after: %v", err)
	}
	if after != before {
		t.Errorf("schema_migrations count changed from %d to %d; want unchanged", before, after)
	}
}

func TestMigrate_Version(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := mustOpenDB(t, "")

	version, err := sqlite.MigrationVersion(ctx, db)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("MigrationVersion() = %d on a fresh DB; want 0", version)
	}

	if err := sqlite.MigrateUp(ctx, db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	version, err = sqlite.MigrationVersion(ctx, db)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version < 1 {
		t.Errorf("MigrationVersion() = %d after MigrateUp; want >= 1", version)
	}
}

func TestMigrate_OutcomeConstraint(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t, "")
	if err := sqlite.MigrateUp(context.Background(), db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO usage_log (id, mode, provider, outcome, latency_ms, created_at)
		VALUES ('u-1', 'concise', 'gemini', 'maybe', 10, datetime('now'))`)
	if err == nil {
		t.Error("INSERT with outcome 'maybe' succeeded; want CHECK constraint error")
	}
}
