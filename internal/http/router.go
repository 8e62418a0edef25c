package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/interteks/loomtrack/internal/http/handlers"
	httpMW "github.com/interteks/loomtrack/internal/http/middleware"
	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/logger"
)

const streamRoute = "/api/stream"

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	IngestHandler   *httpH.IngestHandler
	StatusHandler   *httpH.StatusHandler
	LoomHandler     *httpH.LoomHandler
	RealtimeHandler *httpH.RealtimeHandler
	ReportHandler   *httpH.ReportHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != streamRoute
		})))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics, streamRoute, "/metrics"))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Device ingest
	if cfg.IngestHandler != nil {
		r.POST("/ingest", cfg.IngestHandler.Ingest)
	}
	if cfg.StatusHandler != nil {
		r.GET("/status/:loomId", cfg.StatusHandler.Get)
	}

	api := r.Group("/api")
	{
		if cfg.StatusHandler != nil {
			api.GET("/status", cfg.StatusHandler.List)
			api.GET("/monthly", cfg.StatusHandler.Monthly)
			api.GET("/shifts", cfg.StatusHandler.Shifts)
		}

		if cfg.LoomHandler != nil {
			api.GET("/looms", cfg.LoomHandler.List)
			api.POST("/looms", cfg.LoomHandler.Upsert)
			api.POST("/looms/cut-length", cfg.LoomHandler.CutLength)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/stream", cfg.RealtimeHandler.Stream)
		}

		if cfg.ReportHandler != nil {
			api.GET("/reports/monthly", cfg.ReportHandler.Monthly)
			api.GET("/reports/shift", cfg.ReportHandler.Shift)
		}
	}

	return r
}
