package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/loomstate"
	"github.com/interteks/loomtrack/internal/platform/apierr"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/timebucket"
)

type StatusService interface {
	Status(ctx context.Context) ([]StatusView, error)
	LoomStatus(ctx context.Context, loomID string) (StatusView, error)
	// Monthly defaults to the current month when month is blank.
	Monthly(ctx context.Context, month string) (MonthlyView, error)
	// Shifts reads the monthly bucket by month, or the daily one by date.
	Shifts(ctx context.Context, period store.Period, month, date string) (ShiftsView, error)
}

type statusService struct {
	log      *logger.Logger
	state    *loomstate.Store
	backend  store.Backend
	bucketer *timebucket.Bucketer
}

func NewStatusService(log *logger.Logger, state *loomstate.Store, backend store.Backend, bucketer *timebucket.Bucketer) StatusService {
	return &statusService{
		log:      log.With("service", "StatusService"),
		state:    state,
		backend:  backend,
		bucketer: bucketer,
	}
}

func (s *statusService) metaByLoom(ctx context.Context) (map[string]loom.Meta, error) {
	metas, err := s.backend.ListMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("list meta: %w", err)
	}
	out := make(map[string]loom.Meta, len(metas))
	for _, m := range metas {
		out[m.LoomID] = m
	}
	return out, nil
}

func (s *statusService) Status(ctx context.Context) ([]StatusView, error) {
	metas, err := s.metaByLoom(ctx)
	if err != nil {
		return nil, err
	}
	snaps := s.state.All()
	out := make([]StatusView, 0, len(snaps))
	for _, snap := range snaps {
		var mp *loom.Meta
		if m, ok := metas[snap.LoomID]; ok {
			mp = &m
		}
		out = append(out, statusView(snap, mp))
	}
	return out, nil
}

func (s *statusService) LoomStatus(ctx context.Context, loomID string) (StatusView, error) {
	loomID = strings.TrimSpace(loomID)
	snap, ok := s.state.Get(loomID)
	if !ok {
		return StatusView{}, apierr.NotFound("loom_not_found", fmt.Errorf("loom %q has not reported", loomID))
	}
	meta, err := s.backend.GetMeta(ctx, loomID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return statusView(snap, nil), nil
	case err != nil:
		return StatusView{}, fmt.Errorf("get meta: %w", err)
	}
	return statusView(snap, &meta), nil
}

func (s *statusService) Monthly(ctx context.Context, month string) (MonthlyView, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		month = s.bucketer.MonthKey(0)
	} else if !timebucket.ValidMonthKey(month) {
		return MonthlyView{}, apierr.BadRequest("invalid_month", fmt.Errorf("month must be YYYY-MM"))
	}
	totals, err := s.backend.MonthlyTotals(ctx, month)
	if err != nil {
		return MonthlyView{}, fmt.Errorf("monthly totals: %w", err)
	}
	rows := make([]MonthlyRow, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, MonthlyRow{LoomID: t.LoomID, States: t.States, Efficiency: loom.ComputeEfficiency(t.States)})
	}
	return MonthlyView{Month: month, Looms: rows}, nil
}

func (s *statusService) Shifts(ctx context.Context, period store.Period, month, date string) (ShiftsView, error) {
	key, err := s.shiftKey(period, month, date)
	if err != nil {
		return ShiftsView{}, err
	}
	rows, err := s.backend.ShiftTotals(ctx, period, key)
	if err != nil {
		return ShiftsView{}, fmt.Errorf("shift totals: %w", err)
	}
	out := ShiftsView{Period: period, Key: key, Shifts: make([]ShiftRowView, 0, len(rows))}
	for _, r := range rows {
		out.Shifts = append(out.Shifts, ShiftRowView{Shift: r.Shift, States: r.States, Efficiency: loom.ComputeEfficiency(r.States)})
	}
	return out, nil
}

func (s *statusService) shiftKey(period store.Period, month, date string) (string, error) {
	if period == store.PeriodDaily {
		date = strings.TrimSpace(date)
		if date == "" {
			return s.bucketer.DateKey(0), nil
		}
		if !timebucket.ValidDateKey(date) {
			return "", apierr.BadRequest("invalid_date", fmt.Errorf("date must be YYYY-MM-DD"))
		}
		return date, nil
	}
	month = strings.TrimSpace(month)
	if month == "" {
		return s.bucketer.MonthKey(0), nil
	}
	if !timebucket.ValidMonthKey(month) {
		return "", apierr.BadRequest("invalid_month", fmt.Errorf("month must be YYYY-MM"))
	}
	return month, nil
}
