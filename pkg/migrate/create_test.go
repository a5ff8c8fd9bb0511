package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigrationBumpsVersionWithinSameSecond(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }

	first, err := createSQLMigration(dir, "add seq", now)
	require.NoError(t, err)
	second, err := createSQLMigration(dir, "add seq index", now)
	require.NoError(t, err)

	assert.Equal(t, "20261019083000_add_seq.sql", filepath.Base(first))
	assert.Equal(t, "20261019083001_add_seq_index.sql", filepath.Base(second))

	files, err := listMigrations(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "add_seq", files[0].Slug)
	require.NoError(t, ValidateDir(dir))
}

func TestCreateSQLMigrationRefusesGoMigrations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_seed.go"), []byte("package migrations"), 0o644))

	_, err := CreateSQLMigration(dir, "anything")
	assert.ErrorContains(t, err, "go migration")
	assert.ErrorContains(t, ValidateDir(dir), "go migration")
}

func TestValidateFileSectionOrder(t *testing.T) {
	cases := map[string]string{
		"down before up": "-- +goose Down\n-- +goose Up\n",
		"two ups":        "-- +goose Up\n-- +goose Up\n-- +goose Down\n",
		"missing down":   "-- +goose Up\nSELECT 1;\n",
		"stray end":      "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n",
		"nested begin":   "-- +goose Up\n-- +goose StatementBegin\n-- +goose StatementBegin\n-- +goose StatementEnd\n-- +goose StatementEnd\n-- +goose Down\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "20260101000000_case.sql")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			assert.Error(t, validateFile(path))
		})
	}

	path := filepath.Join(t.TempDir(), "20260101000000_ok.sql")
	require.NoError(t, os.WriteFile(path, []byte(sqlTemplate), 0o644))
	assert.NoError(t, validateFile(path))
}
