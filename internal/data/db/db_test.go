package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interteks/loomtrack/internal/platform/logger"
)

func TestOpenSQLiteMigratesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "loomtrack.db")
	db, err := OpenSQLite(context.Background(), path, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	for _, table := range []string{"loom_status", "loom_meta", "monthly_totals", "shift_totals", "shift_totals_daily"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	require.NoError(t, Ping(context.Background(), db))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:", sqliteDSN(":memory:"))
	assert.Equal(t, "file:x?mode=memory", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "file:/data/l.db?_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("/data/l.db"))
}

func TestErrorFieldsAddsPostgresCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Severity: "ERROR"}
	fields := ErrorFields(fmt.Errorf("query: %w", pgErr))
	assert.Contains(t, fields, "42P01")
	assert.Contains(t, fields, "pg_code")

	plain := ErrorFields(errors.New("boom"))
	assert.Len(t, plain, 2)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsRetryable(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsRetryable(errors.New("no such table")))
	assert.False(t, IsRetryable(nil))
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	permanent := errors.New("constraint failed")
	err = WithRetry(context.Background(), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)

	calls = 0
	err = WithRetry(context.Background(), func() error {
		calls++
		return errors.New("database is locked")
	})
	assert.Error(t, err)
	assert.Equal(t, maxTxAttempts, calls)
}
