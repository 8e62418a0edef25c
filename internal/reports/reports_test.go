package reports

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/data/store/filestore"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/loomstate"
	"github.com/interteks/loomtrack/internal/platform/apierr"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/timebucket"
)

// 2024-03-10 16:00 Europe/Istanbul, evening shift.
const eveningTS int64 = 1710075600

func TestDominantDurationTieOrder(t *testing.T) {
	assert.Equal(t, loom.StateWeftStop, DominantDuration(loom.StateSeconds{}).State)
	assert.Equal(t, loom.StateWarpStop, DominantDuration(loom.StateSeconds{WarpStop: 5, GeneralFault: 5}).State)
	got := DominantDuration(loom.StateSeconds{Running: 1000, ManualStop: 7, WeftStop: 3})
	assert.Equal(t, Reason{State: loom.StateManualStop, Value: 7}, got)
}

func TestDominantCountIncludesEndOfYarn(t *testing.T) {
	got := DominantCount(loom.StopCounts{WeftStop: 2, EndOfYarn: 3})
	assert.Equal(t, Reason{State: loom.StateEndOfYarn, Value: 3}, got)
	assert.Equal(t, loom.StateWeftStop, DominantCount(loom.StopCounts{WeftStop: 1, WarpStop: 1}).State)
}

func newBuilder(t *testing.T) (*Builder, store.Backend, *loomstate.Store) {
	t.Helper()
	b, err := timebucket.New(timebucket.DefaultTimezone)
	require.NoError(t, err)
	b = b.WithClock(func() time.Time { return time.Unix(eveningTS, 0) })
	backend, err := filestore.Open(t.TempDir(), b, logger.Nop())
	require.NoError(t, err)
	state := loomstate.New(backend, logger.Nop())
	return NewBuilder(backend, state, b), backend, state
}

func TestMonthlyReport(t *testing.T) {
	builder, backend, state := newBuilder(t)
	ctx := context.Background()

	require.NoError(t, state.Upsert(ctx, loom.Snapshot{LoomID: "L1", StopCounts: loom.StopCounts{WarpStop: 4}}, &store.Credit{
		LoomID: "L1", Timestamp: eveningTS, Delta: loom.StateSeconds{Running: 7200, WarpStop: 1800},
	}))
	require.NoError(t, state.Upsert(ctx, loom.Snapshot{LoomID: "L2", StopCounts: loom.StopCounts{WeftStop: 1}}, &store.Credit{
		LoomID: "L2", Timestamp: eveningTS, Delta: loom.StateSeconds{Running: 3600, WeftStop: 600},
	}))
	_, err := backend.UpsertMeta(ctx, loom.Meta{LoomID: "L1", OrderedLength: decimal.NewFromInt(500), DeliveredLength: decimal.NewFromInt(120)})
	require.NoError(t, err)

	rep, err := builder.Monthly(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", rep.Month)
	assert.Equal(t, "2024-03-10", rep.ReportDate)
	assert.Equal(t, "Europe/Istanbul", rep.Timezone)
	require.Len(t, rep.Looms, 2)

	l1 := rep.Looms[0]
	assert.Equal(t, 2.0, l1.RunningHours)
	assert.Equal(t, 0.5, l1.StopHours)
	assert.Equal(t, "380", l1.RemainingLength.String())
	assert.Equal(t, int64(4), l1.StopCountTotal)
	assert.Equal(t, loom.StateWarpStop, l1.MainReason)

	assert.Equal(t, int64(2400), rep.StopSeconds)
	assert.Equal(t, Reason{State: loom.StateWarpStop, Value: 1800}, rep.DominantDuration)
	assert.Equal(t, Reason{State: loom.StateWarpStop, Value: 4}, rep.DominantCount)
	require.Len(t, rep.Breakdown, 4)
	assert.Equal(t, int64(25), rep.Breakdown[0].WeightPercent)
	assert.Equal(t, int64(75), rep.Breakdown[1].WeightPercent)
	assert.InDelta(t, 10800.0/13200.0, rep.Overall.EfficiencyRatio, 1e-9)
}

func TestMonthlyReportEmpty(t *testing.T) {
	builder, _, _ := newBuilder(t)
	rep, err := builder.Monthly(context.Background(), "2023-01", "2023-01-31")
	require.NoError(t, err)
	assert.Empty(t, rep.Looms)
	assert.Equal(t, int64(0), rep.Breakdown[0].WeightPercent)
}

func TestShiftReport(t *testing.T) {
	builder, _, state := newBuilder(t)
	ctx := context.Background()
	require.NoError(t, state.Upsert(ctx, loom.Snapshot{LoomID: "L1", StopCounts: loom.StopCounts{ManualStop: 2}}, &store.Credit{
		LoomID: "L1", Timestamp: eveningTS, Delta: loom.StateSeconds{Running: 100, ManualStop: 50},
	}))

	rep, err := builder.Shift(ctx, store.PeriodDaily, "", timebucket.ShiftEvening, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", rep.Key)
	assert.Equal(t, int64(50), rep.StopSeconds)
	assert.Equal(t, loom.StateManualStop, rep.DominantDuration.State)
	assert.Equal(t, int64(2), rep.Counts.ManualStop)

	morning, err := builder.Shift(ctx, store.PeriodMonthly, "2024-03", "", "")
	require.NoError(t, err)
	assert.Equal(t, timebucket.ShiftMorning, morning.Shift)
	assert.Equal(t, int64(0), morning.Efficiency.TotalSeconds)

	_, err = builder.Shift(ctx, store.PeriodMonthly, "", "9-17", "")
	assert.Equal(t, "invalid_shift", apierr.From(err).Code)
}
