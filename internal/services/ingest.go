package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/interteks/loomtrack/internal/accounting"
	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/loomstate"
	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/apierr"
	"github.com/interteks/loomtrack/internal/platform/ctxutil"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/realtime"
)

const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

type IngestService interface {
	// Ingest applies one report. source labels metrics only.
	Ingest(ctx context.Context, source string, r accounting.Report) (IngestResult, error)
}

type ingestService struct {
	// mu serializes ingests so the read-diff-write of one loom never
	// interleaves with another.
	mu         sync.Mutex
	log        *logger.Logger
	accountant *accounting.Accountant
	state      *loomstate.Store
	notifier   realtime.Notifier
	metrics    *observability.Metrics
}

func NewIngestService(log *logger.Logger, accountant *accounting.Accountant, state *loomstate.Store, notifier realtime.Notifier, metrics *observability.Metrics) IngestService {
	return &ingestService{
		log:        log.With("service", "IngestService"),
		accountant: accountant,
		state:      state,
		notifier:   notifier,
		metrics:    metrics,
	}
}

func (s *ingestService) Ingest(ctx context.Context, source string, r accounting.Report) (IngestResult, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "ingest")
	defer span.End()

	if err := accounting.Validate(r); err != nil {
		s.metrics.ObserveIngest(source, "invalid", 0)
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, apierr.BadRequest("invalid_report", err)
	}
	loomID := strings.TrimSpace(r.LoomID)
	span.SetAttributes(attribute.String("loom.id", loomID), attribute.String("ingest.source", source))

	out, err := s.applyLocked(ctx, loomID, r)
	if err != nil {
		s.metrics.ObserveIngest(source, "invalid", 0)
		if errors.Is(err, accounting.ErrValidation) {
			return IngestResult{}, apierr.BadRequest("invalid_report", err)
		}
		return IngestResult{}, err
	}

	res, credit, persistErr := out.Result, out.credit, out.persistErr
	if res.Changed {
		s.metrics.IncStateChange()
		s.notifier.Publish(ctx, realtime.StatusEvent(loomID, res.Snapshot.Timestamp, string(res.Snapshot.ActiveState)))
	}
	if persistErr != nil {
		s.metrics.ObserveIngest(source, "error", 0)
		span.RecordError(persistErr)
		span.SetStatus(codes.Error, "persist failed")
		return IngestResult{}, fmt.Errorf("persist ingest for %s: %w", loomID, persistErr)
	}

	if res.Counted != "" {
		s.metrics.IncStopTransition(string(res.Counted))
	}
	if credit != nil {
		for _, state := range append([]loom.ActiveState{loom.StateRunning}, loom.TimedStopStates...) {
			s.metrics.AddCredited(string(state), credit.Delta.Get(state))
		}
	}
	s.metrics.ObserveIngest(source, "ok", time.Since(start))
	fields := []interface{}{
		"loom_id", loomID,
		"active_state", res.Snapshot.ActiveState,
		"first", res.First,
		"changed", res.Changed,
	}
	s.log.Debug("Ingested report", append(fields, ctxutil.LogFields(ctx)...)...)

	return IngestResult{
		LoomID:      loomID,
		ActiveState: res.Snapshot.ActiveState,
		Cumulative:  res.Cumulative,
		Delta:       res.DeltaEff,
	}, nil
}

type applied struct {
	accounting.Result
	credit *store.Credit
	// persistErr is reported after the event goes out; memory already
	// holds the new snapshot.
	persistErr error
}

// applyLocked runs the read-diff-write for one report under mu. Events are
// published by the caller once mu is released.
func (s *ingestService) applyLocked(ctx context.Context, loomID string, r accounting.Report) (applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *loom.Snapshot
	if snap, ok := s.state.Get(loomID); ok {
		prev = &snap
	}
	res, err := s.accountant.Apply(prev, r)
	if err != nil {
		return applied{}, err
	}

	var credit *store.Credit
	if res.Delta != nil && !res.Delta.IsZero() {
		credit = &store.Credit{LoomID: loomID, Timestamp: res.Snapshot.Timestamp, Delta: *res.Delta}
	}
	// A disconnecting client must not abort a half-written ingest.
	persistErr := s.state.Upsert(context.WithoutCancel(ctx), res.Snapshot, credit)
	return applied{Result: res, credit: credit, persistErr: persistErr}, nil
}
