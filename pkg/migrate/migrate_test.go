package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded, EmbeddedDir))
}

func TestSettlementMigrationsContainGuards(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(Embedded, EmbeddedDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := fs.ReadFile(Embedded, p)
		all.Write(b)
		return err
	})
	require.NoError(t, err)

	content := all.String()
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS master_orders",
		"CREATE TABLE IF NOT EXISTS sub_orders",
		"CHECK (total_amount = subtotal_amount + delivery_fee_amount)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_processing",
		"WHERE status = 'processing'",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_reserve_entries_active",
		"WHERE status IN ('held', 'frozen')",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_transaction_records_reference",
		"CREATE TABLE IF NOT EXISTS outbox_events",
	} {
		require.Contains(t, content, want)
	}
}

func TestRunAppliesMigrationsOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Run(context.Background(), sqlDB, Dialect("sqlite"), "up"))

	for _, table := range []string{"master_orders", "sub_orders", "payment_intents", "reserve_entries", "transaction_records", "outbox_events"} {
		require.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestDialect(t *testing.T) {
	require.Equal(t, "sqlite3", Dialect("sqlite"))
	require.Equal(t, "postgres", Dialect("postgres"))
	require.Equal(t, "postgres", Dialect(""))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Dispute Notes!", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260304050607_add_dispute_notes.sql"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "-- +goose Up")
	require.Contains(t, string(b), "-- rollback add_dispute_notes")

	_, err = CreateSQLMigration(dir, "Add Dispute Notes!", now)
	require.Error(t, err)

	require.NoError(t, ValidateDir(dir))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}
