package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tabkeeper-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration found", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestBatchesMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_batches")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS batches",
		"CHECK (quantity >= 0)",
		"CHECK (unit_cost >= 0)",
		"idx_batches_fifo ON batches (product_id, created_at, id)",
		"DROP TABLE IF EXISTS batches",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestPurchaseUnitsMigrationKeepsBatchUnconstrained(t *testing.T) {
	content := readMigration(t, "create_purchase_units")
	assert.Contains(t, content, "CREATE TABLE IF NOT EXISTS purchase_units")
	assert.Contains(t, content, "CREATE TABLE IF NOT EXISTS undo_events")
	assert.NotContains(t, content, "REFERENCES batches")
}

func TestPaymentsMigrationRejectsNonPositiveAmounts(t *testing.T) {
	content := readMigration(t, "create_payments")
	assert.Contains(t, content, "CHECK (amount > 0)")
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))

	dir = t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_unbalanced.sql"), []byte(body), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Deposit Index!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_deposit_index.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestPurchaseSequenceMigrationSeedsCounter(t *testing.T) {
	content := readMigration(t, "add_purchase_sequence")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS ledger_counters",
		"ADD COLUMN IF NOT EXISTS seq bigint",
		"ADD COLUMN IF NOT EXISTS undone_seq bigint",
		"SELECT 'purchase_units', COALESCE(max(seq), 0) FROM purchase_units",
		"DROP TABLE IF EXISTS ledger_counters",
	} {
		assert.Contains(t, content, sub)
	}
}
