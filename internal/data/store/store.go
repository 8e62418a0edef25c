// Package store defines the persistence contract shared by the relational
// and the file-backed implementations. A deployment uses exactly one of them
// for its whole lifetime.
package store

import (
	"context"
	"errors"

	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/timebucket"
)

var ErrNotFound = errors.New("not found")

type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
	KindFile     Kind = "file"
)

func (k Kind) Relational() bool { return k == KindPostgres || k == KindSQLite }

type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodDaily   Period = "daily"
)

// ParsePeriod maps anything other than "daily" to monthly.
func ParsePeriod(s string) Period {
	if s == string(PeriodDaily) {
		return PeriodDaily
	}
	return PeriodMonthly
}

// Credit is the delta of one ingest together with the timestamp that
// selects its buckets.
type Credit struct {
	LoomID    string
	Timestamp int64
	Delta     loom.StateSeconds
}

// IngestWrite is everything one ingest persists.
type IngestWrite struct {
	Snapshot loom.Snapshot
	// All is the full snapshot image after the update, for backends that
	// persist the whole map at once.
	All []loom.Snapshot
	// Credit is nil for a loom's first report and for all-zero deltas.
	Credit *Credit
}

type SnapshotStore interface {
	LoadSnapshots(ctx context.Context) ([]loom.Snapshot, error)
}

type AggregateStore interface {
	// CreditMonthly and CreditShift add one delta to a single bucket outside
	// any transaction. Ingest credits go through Commit instead.
	CreditMonthly(ctx context.Context, loomID string, ts int64, delta loom.StateSeconds) error
	CreditShift(ctx context.Context, ts int64, delta loom.StateSeconds) error
	MonthlyTotals(ctx context.Context, month string) ([]loom.MonthlyTotal, error)
	// ShiftTotals returns all three shifts of the bucket, zero-filled.
	ShiftTotals(ctx context.Context, period Period, key string) ([]ShiftRow, error)
}

type MetaStore interface {
	GetMeta(ctx context.Context, loomID string) (loom.Meta, error)
	ListMeta(ctx context.Context) ([]loom.Meta, error)
	UpsertMeta(ctx context.Context, meta loom.Meta) (loom.Meta, error)
	// UpdateMeta applies fn to the current row (or an empty one) and stores
	// the result atomically.
	UpdateMeta(ctx context.Context, loomID string, fn func(m *loom.Meta) error) (loom.Meta, error)
}

type Backend interface {
	SnapshotStore
	AggregateStore
	MetaStore

	Kind() Kind
	// Commit persists the snapshot and applies the credit as one unit where
	// the backend supports transactions.
	Commit(ctx context.Context, w IngestWrite) error
	Ping(ctx context.Context) error
	Close() error
}

type ShiftRow struct {
	Shift  string            `json:"shift"`
	States loom.StateSeconds `json:"states"`
}

// FillShifts returns one row per shift in reporting order.
func FillShifts(found map[string]loom.StateSeconds) []ShiftRow {
	rows := make([]ShiftRow, 0, len(timebucket.Shifts))
	for _, shift := range timebucket.Shifts {
		rows = append(rows, ShiftRow{Shift: shift, States: found[shift]})
	}
	return rows
}
