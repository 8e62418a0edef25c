package app

import (
	"time"

	"github.com/interteks/loomtrack/internal/accounting"
	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/loomstate"
	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/realtime"
	"github.com/interteks/loomtrack/internal/reports"
	"github.com/interteks/loomtrack/internal/services"
	"github.com/interteks/loomtrack/internal/timebucket"
)

type Services struct {
	Ingest  services.IngestService
	Status  services.StatusService
	Meta    services.MetaService
	Reports *reports.Builder
}

func wireServices(log *logger.Logger, now func() time.Time, bucketer *timebucket.Bucketer, backend store.Backend, state *loomstate.Store, notifier realtime.Notifier, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	return Services{
		Ingest:  services.NewIngestService(log, accounting.New(now), state, notifier, metrics),
		Status:  services.NewStatusService(log, state, backend, bucketer),
		Meta:    services.NewMetaService(log, backend, notifier),
		Reports: reports.NewBuilder(backend, state, bucketer),
	}
}
