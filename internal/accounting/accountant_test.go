package accounting

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interteks/loomtrack/internal/domain/loom"
)

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newAccountant() *Accountant {
	return New(func() time.Time { return fixedNow })
}

func ts(v float64) *float64 { return &v }

func report(id string, at float64, state loom.ActiveState, s loom.StateSeconds) Report {
	return Report{LoomID: id, Timestamp: ts(at), ActiveState: string(state), StateSeconds: &s}
}

func TestValidateRequiresLoomIDAndStates(t *testing.T) {
	err := Validate(Report{StateSeconds: &loom.StateSeconds{}})
	assert.True(t, errors.Is(err, ErrValidation))

	err = Validate(Report{LoomID: "  "})
	assert.True(t, errors.Is(err, ErrValidation))

	err = Validate(Report{LoomID: "L1"})
	assert.True(t, errors.Is(err, ErrValidation))

	assert.NoError(t, Validate(Report{LoomID: "L1", StateSeconds: &loom.StateSeconds{}}))
}

func TestNormalizeTimestamp(t *testing.T) {
	assert.Equal(t, fixedNow.Unix(), NormalizeTimestamp(nil, fixedNow))
	assert.Equal(t, fixedNow.Unix(), NormalizeTimestamp(ts(0), fixedNow))
	assert.Equal(t, fixedNow.Unix(), NormalizeTimestamp(ts(12345), fixedNow))
	assert.Equal(t, int64(1700000000), NormalizeTimestamp(ts(1700000000.7), fixedNow))
	assert.Equal(t, loom.MinValidTimestamp, NormalizeTimestamp(ts(float64(loom.MinValidTimestamp)), fixedNow))
}

func TestDiffIsClampedForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	gen := func() loom.StateSeconds {
		return loom.StateSeconds{
			Running:      rng.Int63n(1000),
			WeftStop:     rng.Int63n(1000),
			WarpStop:     rng.Int63n(1000),
			ManualStop:   rng.Int63n(1000),
			GeneralFault: rng.Int63n(1000),
		}
	}
	for i := 0; i < 500; i++ {
		prev, next := gen(), gen()
		d := Diff(prev, next)
		assert.Equal(t, max(0, next.Running-prev.Running), d.Running)
		assert.Equal(t, max(0, next.WeftStop-prev.WeftStop), d.WeftStop)
		assert.Equal(t, max(0, next.WarpStop-prev.WarpStop), d.WarpStop)
		assert.Equal(t, max(0, next.ManualStop-prev.ManualStop), d.ManualStop)
		assert.Equal(t, max(0, next.GeneralFault-prev.GeneralFault), d.GeneralFault)
		assert.Equal(t, d, d.NonNegative())
	}
}

func TestLoomLifecycleScenario(t *testing.T) {
	a := newAccountant()

	first, err := a.Apply(nil, report("L1", 1700000000, loom.StateRunning, loom.StateSeconds{Running: 100}))
	require.NoError(t, err)
	assert.True(t, first.First)
	assert.Nil(t, first.Delta)
	assert.Nil(t, first.DeltaEff)
	assert.InDelta(t, 1.0, first.Cumulative.EfficiencyRatio, 1e-9)
	assert.Equal(t, loom.StopCounts{}, first.Snapshot.StopCounts)

	prev := first.Snapshot
	second, err := a.Apply(&prev, report("L1", 1700000060, loom.StateRunning, loom.StateSeconds{Running: 150, WeftStop: 20}))
	require.NoError(t, err)
	require.NotNil(t, second.Delta)
	assert.Equal(t, loom.StateSeconds{Running: 50, WeftStop: 20}, *second.Delta)
	assert.False(t, second.Changed)
	assert.Equal(t, loom.StopCounts{}, second.Snapshot.StopCounts)

	prev = second.Snapshot
	third, err := a.Apply(&prev, report("L1", 1700000120, loom.StateWeftStop, loom.StateSeconds{Running: 150, WeftStop: 30}))
	require.NoError(t, err)
	assert.True(t, third.Changed)
	assert.Equal(t, loom.StateWeftStop, third.Counted)
	assert.Equal(t, loom.StopCounts{WeftStop: 1}, third.Snapshot.StopCounts)
	assert.Equal(t, loom.StopCounts{}, prev.StopCounts, "previous snapshot must not be mutated")
}

func TestStopCountingIsEdgeTriggered(t *testing.T) {
	a := newAccountant()
	res, err := a.Apply(nil, report("L1", 1700000000, loom.StateWarpStop, loom.StateSeconds{}))
	require.NoError(t, err)
	assert.Equal(t, loom.StopCounts{}, res.Snapshot.StopCounts, "first report never counts")

	snap := res.Snapshot
	for i := 0; i < 5; i++ {
		res, err = a.Apply(&snap, report("L1", float64(1700000000+i), loom.StateWarpStop, loom.StateSeconds{WarpStop: int64(i)}))
		require.NoError(t, err)
		snap = res.Snapshot
	}
	assert.Equal(t, loom.StopCounts{}, snap.StopCounts)

	for _, state := range []loom.ActiveState{loom.StateRunning, loom.StateWarpStop, loom.StateWarpStop, loom.StateRunning, loom.StateWarpStop} {
		res, err = a.Apply(&snap, report("L1", 1700001000, state, loom.StateSeconds{}))
		require.NoError(t, err)
		snap = res.Snapshot
	}
	assert.Equal(t, int64(2), snap.StopCounts.WarpStop)
	assert.Equal(t, int64(2), snap.StopCounts.Total())
}

func TestEndOfYarnCountsAsWeftStop(t *testing.T) {
	a := newAccountant()
	res, err := a.Apply(nil, report("L2", 1700000000, loom.StateRunning, loom.StateSeconds{}))
	require.NoError(t, err)
	snap := res.Snapshot

	res, err = a.Apply(&snap, report("L2", 1700000010, loom.StateEndOfYarn, loom.StateSeconds{}))
	require.NoError(t, err)
	assert.Equal(t, loom.StopCounts{WeftStop: 1, EndOfYarn: 1}, res.Snapshot.StopCounts)
	assert.Equal(t, loom.StateEndOfYarn, res.Counted)

	snap = res.Snapshot
	res, err = a.Apply(&snap, report("L2", 1700000020, loom.StateEndOfYarn, loom.StateSeconds{}))
	require.NoError(t, err)
	assert.Equal(t, loom.StopCounts{WeftStop: 1, EndOfYarn: 1}, res.Snapshot.StopCounts)
}

func TestCounterResetYieldsZeroDelta(t *testing.T) {
	a := newAccountant()
	prev := loom.Snapshot{LoomID: "L3", ActiveState: loom.StateRunning, States: loom.StateSeconds{Running: 500, GeneralFault: 40}}
	res, err := a.Apply(&prev, report("L3", 1700000000, loom.StateRunning, loom.StateSeconds{Running: 10, GeneralFault: 45}))
	require.NoError(t, err)
	assert.Equal(t, loom.StateSeconds{GeneralFault: 5}, *res.Delta)
	assert.Equal(t, loom.StateSeconds{Running: 10, GeneralFault: 45}, res.Snapshot.States)
}

func TestTransitionToRunningOrUnknownIsNotCounted(t *testing.T) {
	a := newAccountant()
	prev := loom.Snapshot{LoomID: "L4", ActiveState: loom.StateManualStop}
	res, err := a.Apply(&prev, report("L4", 1700000000, loom.StateRunning, loom.StateSeconds{}))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, loom.ActiveState(""), res.Counted)

	res, err = a.Apply(&res.Snapshot, report("L4", 1700000000, loom.ActiveState("purple"), loom.StateSeconds{}))
	require.NoError(t, err)
	assert.Equal(t, loom.ActiveState("purple"), res.Snapshot.ActiveState)
	assert.Equal(t, loom.StopCounts{}, res.Snapshot.StopCounts)
}

func TestMissingFieldsAreNormalized(t *testing.T) {
	a := newAccountant()
	res, err := a.Apply(nil, Report{LoomID: " L5 ", StateSeconds: &loom.StateSeconds{Running: -3, WeftStop: 4}})
	require.NoError(t, err)
	assert.Equal(t, "L5", res.Snapshot.LoomID)
	assert.Equal(t, loom.StateNone, res.Snapshot.ActiveState)
	assert.Equal(t, fixedNow.Unix(), res.Snapshot.Timestamp)
	assert.Equal(t, loom.StateSeconds{WeftStop: 4}, res.Snapshot.States)
}

func TestApplyRejectsInvalidReport(t *testing.T) {
	_, err := newAccountant().Apply(nil, Report{LoomID: "L1"})
	assert.True(t, errors.Is(err, ErrValidation))
}
