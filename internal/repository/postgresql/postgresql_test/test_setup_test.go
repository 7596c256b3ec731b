package postgresql_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"go.uber.org/zap"
)

// TestDatabaseSetup holds a migrated test database.
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL and applies the migrations.
// The test is skipped when the variable is unset.
func NewTestDatabase(t *testing.T) *TestDatabaseSetup {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	if err := database.RunMigrations(dsn, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db, err := database.NewPostgreSQLDB(context.Background(), dsn, database.PoolConfig{MaxConns: 4})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	setup := &TestDatabaseSetup{DB: db}
	if err := setup.TruncateAllTables(context.Background()); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	t.Cleanup(db.Close)
	return setup
}

// TruncateAllTables empties every pipeline table.
func (t *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tx, err := t.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"employees",
		"raw_punches",
		"rejected_punches",
		"day_segments",
		"classified_days",
		"holidays",
		"overtime_records",
		"leave_deductions",
		"leave_balances",
		"leave_ledger",
		"device_states",
		"devices",
		"import_batches",
		"missing_requests",
	}

	for _, table := range tables {
		_, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}
