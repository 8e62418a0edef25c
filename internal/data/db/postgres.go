package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/interteks/loomtrack/internal/platform/logger"
)

const pingTimeout = 5 * time.Second

func newGormLogger() gormLogger.Interface {
	return gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// OpenPostgres connects, pings and migrates. Any failure is returned so the
// caller can fall back to the file backend.
func OpenPostgres(ctx context.Context, dsn string, logg *logger.Logger) (*gorm.DB, error) {
	serviceLog := logg.With("service", "Postgres")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := ping(ctx, db); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := AutoMigrateAll(db); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	serviceLog.Info("Postgres ready")
	return db, nil
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(pctx)
}

// Ping checks connectivity of an open database.
func Ping(ctx context.Context, db *gorm.DB) error { return ping(ctx, db) }

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeQuietly(db *gorm.DB) { _ = Close(db) }

// ErrorFields returns log key/values describing a driver error.
func ErrorFields(err error) []interface{} {
	fields := []interface{}{"error", err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields, "pg_code", pgErr.Code, "pg_severity", pgErr.Severity)
		return fields
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		fields = append(fields, "pg_connect", true)
	}
	return fields
}
