package app

import (
	"github.com/interteks/loomtrack/internal/data/store"
	httpserver "github.com/interteks/loomtrack/internal/http"
	httpH "github.com/interteks/loomtrack/internal/http/handlers"
	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/realtime"
)

type Handlers struct {
	Ingest   *httpH.IngestHandler
	Status   *httpH.StatusHandler
	Loom     *httpH.LoomHandler
	Realtime *httpH.RealtimeHandler
	Report   *httpH.ReportHandler
	Health   *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, svcs Services, hub *realtime.Hub, backend store.Backend) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Ingest:   httpH.NewIngestHandler(svcs.Ingest),
		Status:   httpH.NewStatusHandler(svcs.Status),
		Loom:     httpH.NewLoomHandler(svcs.Meta),
		Realtime: httpH.NewRealtimeHandler(log, hub),
		Report:   httpH.NewReportHandler(svcs.Reports),
		Health:   httpH.NewHealthHandler(ServiceName, backend),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, h Handlers) *httpserver.Server {
	serviceName := ""
	if cfg.OtelEnabled {
		serviceName = ServiceName
	}
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.CORSOrigins,
		IngestHandler:   h.Ingest,
		StatusHandler:   h.Status,
		LoomHandler:     h.Loom,
		RealtimeHandler: h.Realtime,
		ReportHandler:   h.Report,
		HealthHandler:   h.Health,
	})
}
