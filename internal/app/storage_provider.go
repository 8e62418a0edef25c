package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/interteks/loomtrack/internal/data/db"
	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/data/store/filestore"
	"github.com/interteks/loomtrack/internal/data/store/sqlstore"
	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/timebucket"
)

type StorageMode string

const (
	ModeAuto     StorageMode = "auto"
	ModePostgres StorageMode = "postgres"
	ModeSQLite   StorageMode = "sqlite"
	ModeFile     StorageMode = "file"
)

func ParseStorageMode(raw string) (StorageMode, error) {
	switch m := StorageMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModePostgres, ModeSQLite, ModeFile:
		return m, nil
	default:
		return "", &StorageBootstrapError{
			Code:  StorageBootstrapErrorInvalidMode,
			Mode:  raw,
			Cause: fmt.Errorf("unsupported storage backend %q", raw),
		}
	}
}

// Resolve picks the concrete mode. Auto prefers postgres when a DSN is
// configured and the file backend otherwise.
func (m StorageMode) Resolve(cfg Config) StorageMode {
	if m != ModeAuto {
		return m
	}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return ModePostgres
	}
	return ModeFile
}

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidMode   StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorMissingDSN    StorageBootstrapErrorCode = "missing_dsn"
	StorageBootstrapErrorConnectFailed StorageBootstrapErrorCode = "connect_failed"
	StorageBootstrapErrorFileFailed    StorageBootstrapErrorCode = "file_failed"
)

type StorageBootstrapError struct {
	Code  StorageBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "storage bootstrap failed"
	}
	return fmt.Sprintf("storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func storageBootstrapErrorCode(err error) StorageBootstrapErrorCode {
	var bootErr *StorageBootstrapError
	if errors.As(err, &bootErr) && bootErr != nil {
		return bootErr.Code
	}
	return StorageBootstrapErrorConnectFailed
}

var (
	openPostgres = db.OpenPostgres
	openSQLite   = db.OpenSQLite
)

// openRelational connects the configured relational database.
func openRelational(ctx context.Context, log *logger.Logger, mode StorageMode, cfg Config) (*gorm.DB, error) {
	switch mode {
	case ModePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, &StorageBootstrapError{
				Code:  StorageBootstrapErrorMissingDSN,
				Mode:  string(mode),
				Cause: errors.New("DATABASE_URL is empty"),
			}
		}
		gdb, err := openPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, &StorageBootstrapError{Code: StorageBootstrapErrorConnectFailed, Mode: string(mode), Cause: err}
		}
		return gdb, nil
	case ModeSQLite:
		gdb, err := openSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, &StorageBootstrapError{Code: StorageBootstrapErrorConnectFailed, Mode: string(mode), Cause: err}
		}
		return gdb, nil
	default:
		return nil, &StorageBootstrapError{
			Code:  StorageBootstrapErrorInvalidMode,
			Mode:  string(mode),
			Cause: fmt.Errorf("%q is not a relational backend", mode),
		}
	}
}

// resolveBackend opens the configured backend. A relational backend that
// cannot connect or migrate is replaced by the file backend for the whole
// run; only a broken data directory is fatal.
func resolveBackend(ctx context.Context, log *logger.Logger, cfg Config, bucketer *timebucket.Bucketer, metrics *observability.Metrics) (store.Backend, error) {
	requested, err := ParseStorageMode(cfg.StorageBackend)
	if err != nil {
		log.Error("Storage backend selection failed", "mode", cfg.StorageBackend, "error_code", storageBootstrapErrorCode(err), "error", err)
		return nil, err
	}
	mode := requested.Resolve(cfg)
	log.Info("Selecting storage backend", "mode", mode, "requested", requested)

	if mode != ModeFile {
		gdb, err := openRelational(ctx, log, mode, cfg)
		if err == nil {
			if sqlDB, dbErr := gdb.DB(); dbErr == nil {
				metrics.RegisterDB(sqlDB, string(mode))
			}
			kind := store.KindPostgres
			if mode == ModeSQLite {
				kind = store.KindSQLite
			}
			metrics.SetBackend(string(kind))
			return sqlstore.New(gdb, kind, bucketer, log), nil
		}
		fields := []interface{}{"mode", mode, "error_code", storageBootstrapErrorCode(err), "data_dir", cfg.DataDir}
		fields = append(fields, db.ErrorFields(err)...)
		log.Error("Relational backend unavailable, falling back to file backend", fields...)
	}

	backend, err := filestore.Open(cfg.DataDir, bucketer, log)
	if err != nil {
		bootErr := &StorageBootstrapError{Code: StorageBootstrapErrorFileFailed, Mode: string(ModeFile), Cause: err}
		log.Error("File backend bootstrap failed", "data_dir", cfg.DataDir, "error_code", bootErr.Code, "error", err)
		return nil, bootErr
	}
	metrics.SetBackend(string(store.KindFile))
	return backend, nil
}
