package db

import (
	"gorm.io/gorm"

	"github.com/interteks/loomtrack/internal/domain/loom"
)

// AutoMigrateAll creates or updates every table. Composite primary keys on
// the totals tables back the add-on-conflict upserts.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&loom.LoomStatus{},
		&loom.Meta{},
		&loom.MonthlyTotal{},
		&loom.ShiftTotal{},
		&loom.DailyShiftTotal{},
	)
}
