package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/realtime"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := DefaultConfig()
	cfg.LogMode = "test"
	cfg.StorageBackend = "file"
	cfg.DataDir = t.TempDir()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewWiresFileBackend(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, store.KindFile, a.Backend.Kind())
	assert.Nil(t, a.MQTT)

	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "file", body["backend"])
}

func TestIngestSurvivesRestart(t *testing.T) {
	a := newTestApp(t)
	payload := []byte(`{"loomId":"L1","timestamp":1710054000,"activeState":"running","stateSeconds":{"running":60}}`)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	a.Server.Engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A second process over the same data dir sees the snapshot.
	restarted, err := New(context.Background(), a.Cfg)
	require.NoError(t, err)
	defer restarted.Close()
	snap, ok := restarted.State.Get("L1")
	require.True(t, ok)
	assert.Equal(t, loom.StateRunning, snap.ActiveState)
	assert.Equal(t, int64(60), snap.States.Running)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestApp(t)
	a.Cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

type refusingRelay struct{}

func (refusingRelay) Publish(ctx context.Context, ev realtime.Event) error { return nil }

func (refusingRelay) StartForwarder(ctx context.Context, onEvent func(realtime.Event)) error {
	return errors.New("subscribe refused")
}

func (refusingRelay) Close() error { return nil }

func TestRunSurvivesRelaySubscribeFailure(t *testing.T) {
	a := newTestApp(t)
	a.Cfg.Port = 0
	a.Notifier = realtime.NewNotifier(a.Hub, refusingRelay{}, a.Log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestProbeBackendReportsFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogMode = "test"
	cfg.StorageBackend = "file"
	cfg.DataDir = t.TempDir()

	report, err := ProbeBackend(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeFile, report.Selected)
	assert.Equal(t, store.KindFile, report.Active)
	assert.False(t, report.FellBack)
}
