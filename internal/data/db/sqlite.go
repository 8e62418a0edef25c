package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/interteks/loomtrack/internal/platform/logger"
)

// OpenSQLite opens (creating if needed) an embedded database file. The pool
// is limited to one connection; sqlite serializes writers anyway.
func OpenSQLite(ctx context.Context, path string, logg *logger.Logger) (*gorm.DB, error) {
	serviceLog := logg.With("service", "SQLite")

	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := ping(ctx, db); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if err := AutoMigrateAll(db); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("sqlite automigrate: %w", err)
	}
	serviceLog.Info("SQLite ready", "path", path)
	return db, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}
