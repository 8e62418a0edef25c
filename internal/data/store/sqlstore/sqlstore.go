package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/interteks/loomtrack/internal/data/db"
	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/timebucket"
)

var stateColumns = []string{"running", "weft_stop", "warp_stop", "manual_stop", "general_fault"}

type sqlStore struct {
	db       *gorm.DB
	kind     store.Kind
	bucketer *timebucket.Bucketer
	log      *logger.Logger
	now      func() time.Time
}

// New wraps an already migrated database.
func New(gdb *gorm.DB, kind store.Kind, bucketer *timebucket.Bucketer, baseLog *logger.Logger) store.Backend {
	return &sqlStore{
		db:       gdb,
		kind:     kind,
		bucketer: bucketer,
		log:      baseLog.With("repo", "SQLStore", "backend", string(kind)),
		now:      time.Now,
	}
}

func (s *sqlStore) Kind() store.Kind { return s.kind }

func (s *sqlStore) Ping(ctx context.Context) error { return db.Ping(ctx, s.db) }

func (s *sqlStore) Close() error { return db.Close(s.db) }

func (s *sqlStore) LoadSnapshots(ctx context.Context) ([]loom.Snapshot, error) {
	var rows []loom.LoomStatus
	if err := s.db.WithContext(ctx).Order("loom_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]loom.Snapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Snapshot())
	}
	return out, nil
}

// Commit writes the snapshot and its credit in one transaction, retried on
// lock conflicts.
func (s *sqlStore) Commit(ctx context.Context, w store.IngestWrite) error {
	return db.WithRetry(ctx, func() error { return s.commit(ctx, w) })
}

func (s *sqlStore) commit(ctx context.Context, w store.IngestWrite) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.upsertSnapshot(tx, w.Snapshot); err != nil {
			return fmt.Errorf("upsert status: %w", err)
		}
		if w.Credit == nil || w.Credit.Delta.IsZero() {
			return nil
		}
		if err := s.creditMonthly(tx, w.Credit.LoomID, w.Credit.Timestamp, w.Credit.Delta); err != nil {
			return fmt.Errorf("credit monthly: %w", err)
		}
		if err := s.creditShift(tx, w.Credit.Timestamp, w.Credit.Delta); err != nil {
			return fmt.Errorf("credit shift: %w", err)
		}
		return nil
	})
}

func (s *sqlStore) upsertSnapshot(tx *gorm.DB, snap loom.Snapshot) error {
	row := loom.StatusFromSnapshot(snap)
	row.UpdatedAt = s.now()
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "loom_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *sqlStore) CreditMonthly(ctx context.Context, loomID string, ts int64, delta loom.StateSeconds) error {
	if delta.IsZero() {
		return nil
	}
	return s.creditMonthly(s.db.WithContext(ctx), loomID, ts, delta)
}

func (s *sqlStore) CreditShift(ctx context.Context, ts int64, delta loom.StateSeconds) error {
	if delta.IsZero() {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.creditShift(tx, ts, delta)
	})
}

func (s *sqlStore) creditMonthly(tx *gorm.DB, loomID string, ts int64, delta loom.StateSeconds) error {
	row := loom.MonthlyTotal{
		LoomID:    loomID,
		Month:     s.bucketer.MonthKey(ts),
		States:    delta,
		UpdatedAt: s.now(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "loom_id"}, {Name: "month"}},
		DoUpdates: addAssignments(row.TableName()),
	}).Create(&row).Error
}

func (s *sqlStore) creditShift(tx *gorm.DB, ts int64, delta loom.StateSeconds) error {
	keys := s.bucketer.Keys(ts)
	now := s.now()

	monthly := loom.ShiftTotal{Month: keys.Month, Shift: keys.Shift, States: delta, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "month"}, {Name: "shift"}},
		DoUpdates: addAssignments(monthly.TableName()),
	}).Create(&monthly).Error; err != nil {
		return err
	}

	daily := loom.DailyShiftTotal{DateKey: keys.ShiftDate, Shift: keys.Shift, States: delta, UpdatedAt: now}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date_key"}, {Name: "shift"}},
		DoUpdates: addAssignments(daily.TableName()),
	}).Create(&daily).Error
}

// addAssignments adds the incoming row onto the stored one inside the
// statement, so concurrent credits never lose an update.
func addAssignments(table string) clause.Set {
	set := make(clause.Set, 0, len(stateColumns)+1)
	for _, col := range stateColumns {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(fmt.Sprintf("%s.%s + excluded.%s", table, col, col)),
		})
	}
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "updated_at"},
		Value:  gorm.Expr("excluded.updated_at"),
	})
	return set
}

func (s *sqlStore) MonthlyTotals(ctx context.Context, month string) ([]loom.MonthlyTotal, error) {
	var rows []loom.MonthlyTotal
	if err := s.db.WithContext(ctx).
		Where("month = ?", month).
		Order("loom_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *sqlStore) ShiftTotals(ctx context.Context, period store.Period, key string) ([]store.ShiftRow, error) {
	found := make(map[string]loom.StateSeconds, len(timebucket.Shifts))
	if period == store.PeriodDaily {
		var rows []loom.DailyShiftTotal
		if err := s.db.WithContext(ctx).Where("date_key = ?", key).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			found[row.Shift] = row.States
		}
	} else {
		var rows []loom.ShiftTotal
		if err := s.db.WithContext(ctx).Where("month = ?", key).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			found[row.Shift] = row.States
		}
	}
	return store.FillShifts(found), nil
}

func (s *sqlStore) GetMeta(ctx context.Context, loomID string) (loom.Meta, error) {
	var m loom.Meta
	err := s.db.WithContext(ctx).Where("loom_id = ?", loomID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loom.Meta{}, store.ErrNotFound
	}
	return m, err
}

func (s *sqlStore) ListMeta(ctx context.Context) ([]loom.Meta, error) {
	var rows []loom.Meta
	if err := s.db.WithContext(ctx).Order("loom_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].LoomID < rows[j].LoomID })
	return rows, nil
}

func (s *sqlStore) UpsertMeta(ctx context.Context, meta loom.Meta) (loom.Meta, error) {
	meta.UpdatedAt = s.now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "loom_id"}},
		UpdateAll: true,
	}).Create(&meta).Error
	return meta, err
}

func (s *sqlStore) UpdateMeta(ctx context.Context, loomID string, fn func(m *loom.Meta) error) (loom.Meta, error) {
	var out loom.Meta
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("loom_id = ?", loomID)
		if s.kind == store.KindPostgres {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		current := loom.Meta{LoomID: loomID}
		if err := q.Take(&current).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		current.LoomID = loomID
		current.UpdatedAt = s.now()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "loom_id"}},
			UpdateAll: true,
		}).Create(&current).Error; err != nil {
			return err
		}
		out = current
		return nil
	})
	return out, err
}
