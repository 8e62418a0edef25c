package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interteks/loomtrack/internal/data/db"
	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/timebucket"
)

// 2024-03-10 10:00 Europe/Istanbul (UTC+3).
const morningTS int64 = 1710054000

func newTestStore(t *testing.T) store.Backend {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.OpenSQLite(context.Background(), dsn, logger.Nop())
	require.NoError(t, err)
	b, err := timebucket.New(timebucket.DefaultTimezone)
	require.NoError(t, err)
	s := New(gdb, store.KindSQLite, b, logger.Nop())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCommitPersistsSnapshotAndCredits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := loom.Snapshot{
		LoomID:      "L1",
		Timestamp:   morningTS,
		ActiveState: loom.StateWeftStop,
		States:      loom.StateSeconds{Running: 160, WeftStop: 20},
		StopCounts:  loom.StopCounts{WeftStop: 1},
	}
	err := s.Commit(ctx, store.IngestWrite{
		Snapshot: snap,
		Credit:   &store.Credit{LoomID: "L1", Timestamp: morningTS, Delta: loom.StateSeconds{Running: 60, WeftStop: 20}},
	})
	require.NoError(t, err)

	snaps, err := s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap, snaps[0])

	monthly, err := s.MonthlyTotals(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, loom.StateSeconds{Running: 60, WeftStop: 20}, monthly[0].States)

	shifts, err := s.ShiftTotals(ctx, store.PeriodMonthly, "2024-03")
	require.NoError(t, err)
	require.Len(t, shifts, 3)
	assert.Equal(t, timebucket.ShiftMorning, shifts[0].Shift)
	assert.Equal(t, int64(60), shifts[0].States.Running)
	assert.True(t, shifts[1].States.IsZero())
	assert.True(t, shifts[2].States.IsZero())

	daily, err := s.ShiftTotals(ctx, store.PeriodDaily, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(20), daily[0].States.WeftStop)
}

func TestCreditsAccumulate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreditMonthly(ctx, "L1", morningTS, loom.StateSeconds{Running: 10, GeneralFault: 1}))
		require.NoError(t, s.CreditShift(ctx, morningTS, loom.StateSeconds{Running: 10}))
	}
	monthly, err := s.MonthlyTotals(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, loom.StateSeconds{Running: 30, GeneralFault: 3}, monthly[0].States)

	shifts, err := s.ShiftTotals(ctx, store.PeriodMonthly, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, int64(30), shifts[0].States.Running)
}

func TestZeroDeltaLeavesNoRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreditMonthly(ctx, "L1", morningTS, loom.StateSeconds{}))
	require.NoError(t, s.Commit(ctx, store.IngestWrite{
		Snapshot: loom.Snapshot{LoomID: "L1", Timestamp: morningTS, ActiveState: loom.StateRunning},
		Credit:   &store.Credit{LoomID: "L1", Timestamp: morningTS},
	}))

	monthly, err := s.MonthlyTotals(ctx, "2024-03")
	require.NoError(t, err)
	assert.Empty(t, monthly)
}

func TestConcurrentCreditsSum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Commit(ctx, store.IngestWrite{
				Snapshot: loom.Snapshot{LoomID: "L1", Timestamp: morningTS, ActiveState: loom.StateRunning},
				Credit:   &store.Credit{LoomID: "L1", Timestamp: morningTS, Delta: loom.StateSeconds{Running: 5}},
			}))
		}()
	}
	wg.Wait()

	monthly, err := s.MonthlyTotals(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, int64(100), monthly[0].States.Running)
}

func TestMonthlyTotalsSortedAndScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	april := morningTS + int64(31*24*time.Hour/time.Second)

	require.NoError(t, s.CreditMonthly(ctx, "L2", morningTS, loom.StateSeconds{Running: 1}))
	require.NoError(t, s.CreditMonthly(ctx, "L1", morningTS, loom.StateSeconds{Running: 2}))
	require.NoError(t, s.CreditMonthly(ctx, "L1", april, loom.StateSeconds{Running: 3}))

	march, err := s.MonthlyTotals(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "L1", march[0].LoomID)
	assert.Equal(t, "L2", march[1].LoomID)

	none, err := s.MonthlyTotals(ctx, "2023-01")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMetaLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetMeta(ctx, "L1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpsertMeta(ctx, loom.Meta{LoomID: "L1", Pattern: "twill", OrderedLength: decimal.RequireFromString("100.50")})
	require.NoError(t, err)

	got, err := s.UpdateMeta(ctx, "L1", func(m *loom.Meta) error {
		m.DeliveredLength = m.DeliveredLength.Add(decimal.RequireFromString("20.25"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "twill", got.Pattern)
	assert.Equal(t, "80.25", got.RemainingLength().StringFixed(2))

	created, err := s.UpdateMeta(ctx, "L9", func(m *loom.Meta) error {
		m.DeliveredLength = decimal.NewFromInt(5)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "L9", created.LoomID)

	all, err := s.ListMeta(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "L1", all[0].LoomID)
	assert.Equal(t, "20.25", all[0].DeliveredLength.StringFixed(2))
}

func TestUpdateMetaRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpdateMeta(ctx, "L1", func(m *loom.Meta) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.GetMeta(ctx, "L1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
