package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/interteks/loomtrack/internal/data/store"
	httpserver "github.com/interteks/loomtrack/internal/http"
	"github.com/interteks/loomtrack/internal/ingestion/mqtt"
	"github.com/interteks/loomtrack/internal/loomstate"
	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/realtime"
	"github.com/interteks/loomtrack/internal/realtime/bus"
	"github.com/interteks/loomtrack/internal/timebucket"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Backend  store.Backend
	State    *loomstate.Store
	Metrics  *observability.Metrics
	Hub      *realtime.Hub
	Notifier *realtime.Fanout
	Services Services
	Server   *httpserver.Server
	MQTT     *mqtt.Subscriber

	tracing *observability.Tracing
}

// New builds the whole object graph. The snapshot map is loaded from the
// backend before New returns, so the server never serves an empty view of a
// populated store.
func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	bucketer, err := timebucket.New(cfg.ReportTimezone)
	if err != nil {
		log.Sync()
		return nil, err
	}

	tracing := observability.InitOTel(ctx, log, cfg.Otel())
	metrics := observability.NewMetrics()

	backend, err := resolveBackend(ctx, log, cfg, bucketer, metrics)
	if err != nil {
		log.Sync()
		return nil, err
	}

	state := loomstate.New(backend, log)
	if err := state.Load(ctx); err != nil {
		_ = backend.Close()
		log.Sync()
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	hub := realtime.NewHub(log,
		realtime.WithHeartbeat(cfg.Heartbeat()),
		realtime.WithSubscriberGauge(metrics.Subscribers()),
	)
	var relay realtime.Relay
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		b, err := bus.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			// Live updates stay local to this instance.
			log.Warn("Redis event bus unavailable", "addr", cfg.RedisAddr, "error", err)
		} else {
			relay = b
		}
	}
	notifier := realtime.NewNotifier(hub, relay, log)

	svcs := wireServices(log, time.Now, bucketer, backend, state, notifier, metrics)
	handlers := wireHandlers(log, svcs, hub, backend)
	server := wireServer(log, cfg, metrics, handlers)

	var sub *mqtt.Subscriber
	if strings.TrimSpace(cfg.MQTTBrokerURL) != "" {
		sub = mqtt.NewSubscriber(mqtt.Config{
			BrokerURL: cfg.MQTTBrokerURL,
			Topic:     cfg.MQTTTopic,
			ClientID:  cfg.MQTTClientID,
			QoS:       1,
		}, svcs.Ingest, metrics, log)
	}

	log.Info("Application ready", "backend", backend.Kind(), "looms", state.Len())
	return &App{
		Log:      log,
		Cfg:      cfg,
		Backend:  backend,
		State:    state,
		Metrics:  metrics,
		Hub:      hub,
		Notifier: notifier,
		Services: svcs,
		Server:   server,
		MQTT:     sub,
		tracing:  tracing,
	}, nil
}

// Run serves until ctx is cancelled or one of the components fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr())
		return a.Server.Run(gctx, a.Cfg.Addr())
	})
	// Start only logs a failed relay subscription; local delivery continues.
	g.Go(func() error {
		return a.Notifier.Start(gctx)
	})
	if a.MQTT != nil {
		g.Go(func() error {
			return a.MQTT.Run(gctx)
		})
	}
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Notifier != nil {
		if err := a.Notifier.Close(); err != nil {
			a.Log.Warn("Notifier close failed", "error", err)
		}
	}
	if a.Backend != nil {
		if err := a.Backend.Close(); err != nil {
			a.Log.Warn("Backend close failed", "error", err)
		}
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// BackendReport describes which backend a configuration selects.
type BackendReport struct {
	Requested StorageMode
	Selected  StorageMode
	Active    store.Kind
	FellBack  bool
}

// ProbeBackend opens the backend the configuration selects, pings it and
// closes it again.
func ProbeBackend(ctx context.Context, cfg Config) (BackendReport, error) {
	var report BackendReport
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return report, err
	}
	defer log.Sync()

	requested, err := ParseStorageMode(cfg.StorageBackend)
	if err != nil {
		return report, err
	}
	bucketer, err := timebucket.New(cfg.ReportTimezone)
	if err != nil {
		return report, err
	}
	backend, err := resolveBackend(ctx, log, cfg, bucketer, nil)
	if err != nil {
		return report, err
	}
	defer backend.Close()

	report.Requested = requested
	report.Selected = requested.Resolve(cfg)
	report.Active = backend.Kind()
	report.FellBack = string(report.Selected) != string(report.Active)
	return report, backend.Ping(ctx)
}
