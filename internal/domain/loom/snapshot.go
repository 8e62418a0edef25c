package loom

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinValidTimestamp is 2021-01-01T00:00:00Z. Reports older than this come
// from devices with an unset clock.
const MinValidTimestamp int64 = 1609459200

// Snapshot is the last known report of a loom plus its server-side counters.
type Snapshot struct {
	LoomID      string       `json:"loomId"`
	Timestamp   int64        `json:"timestamp"`
	ActiveState ActiveState  `json:"activeState"`
	States      StateSeconds `json:"stateSeconds"`
	StopCounts  StopCounts   `json:"stopCounts"`
}

// MonthlyTotal accumulates per-loom deltas for one calendar month.
type MonthlyTotal struct {
	LoomID    string       `gorm:"primaryKey;column:loom_id" json:"loomId"`
	Month     string       `gorm:"primaryKey;column:month" json:"month"`
	States    StateSeconds `gorm:"embedded" json:"states"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"-"`
}

func (MonthlyTotal) TableName() string { return "monthly_totals" }

// ShiftTotal accumulates deltas of all looms for a shift within a month.
type ShiftTotal struct {
	Month     string       `gorm:"primaryKey;column:month" json:"month"`
	Shift     string       `gorm:"primaryKey;column:shift" json:"shift"`
	States    StateSeconds `gorm:"embedded" json:"states"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"-"`
}

func (ShiftTotal) TableName() string { return "shift_totals" }

// DailyShiftTotal accumulates deltas of all looms for a shift on one shift date.
type DailyShiftTotal struct {
	DateKey   string       `gorm:"primaryKey;column:date_key" json:"date"`
	Shift     string       `gorm:"primaryKey;column:shift" json:"shift"`
	States    StateSeconds `gorm:"embedded" json:"states"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"-"`
}

func (DailyShiftTotal) TableName() string { return "shift_totals_daily" }

// Meta holds operator-maintained order details of a loom.
type Meta struct {
	LoomID          string          `gorm:"primaryKey;column:loom_id" json:"loomId"`
	Pattern         string          `gorm:"column:pattern;not null;default:''" json:"pattern"`
	WeftDensity     string          `gorm:"column:weft_density;not null;default:''" json:"weftDensity"`
	Speed           string          `gorm:"column:speed;not null;default:''" json:"speed"`
	OrderedLength   decimal.Decimal `gorm:"column:ordered_length;type:numeric(14,2);not null;default:0" json:"orderedLength"`
	DeliveredLength decimal.Decimal `gorm:"column:delivered_length;type:numeric(14,2);not null;default:0" json:"deliveredLength"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Meta) TableName() string { return "loom_meta" }

// RemainingLength is what is left of the order, never negative.
func (m Meta) RemainingLength() decimal.Decimal {
	rem := m.OrderedLength.Sub(m.DeliveredLength)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// IsEmpty reports whether no descriptive or production field is set.
func (m Meta) IsEmpty() bool {
	return m.Pattern == "" && m.WeftDensity == "" && m.Speed == "" &&
		m.OrderedLength.IsZero() && m.DeliveredLength.IsZero()
}
