package loomstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/data/store/filestore"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/timebucket"
)

func newBackend(t *testing.T, dir string) store.Backend {
	t.Helper()
	b, err := timebucket.New(timebucket.DefaultTimezone)
	require.NoError(t, err)
	backend, err := filestore.Open(dir, b, logger.Nop())
	require.NoError(t, err)
	return backend
}

func TestUpsertSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := New(newBackend(t, dir), logger.Nop())
	require.NoError(t, s.Upsert(ctx, loom.Snapshot{LoomID: "L2", Timestamp: 1710054000, ActiveState: loom.StateRunning}, nil))
	require.NoError(t, s.Upsert(ctx, loom.Snapshot{LoomID: "L1", Timestamp: 1710054000, ActiveState: loom.StateWarpStop}, nil))

	reloaded := New(newBackend(t, dir), logger.Nop())
	require.NoError(t, reloaded.Load(ctx))
	all := reloaded.All()
	require.Len(t, all, 2)
	assert.Equal(t, "L1", all[0].LoomID)
	assert.Equal(t, loom.StateWarpStop, all[0].ActiveState)

	got, ok := reloaded.Get("L2")
	require.True(t, ok)
	assert.Equal(t, loom.StateRunning, got.ActiveState)

	_, ok = reloaded.Get("nope")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(newBackend(t, t.TempDir()), logger.Nop())
	require.NoError(t, s.Upsert(context.Background(), loom.Snapshot{LoomID: "L1", States: loom.StateSeconds{Running: 5}}, nil))

	snap, _ := s.Get("L1")
	snap.States.Running = 999
	again, _ := s.Get("L1")
	assert.Equal(t, int64(5), again.States.Running)
	assert.Equal(t, 1, s.Len())
}
