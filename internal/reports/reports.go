// Package reports assembles the figures behind the monthly and shift
// reports. Rendering is left to the caller.
package reports

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/loomstate"
	"github.com/interteks/loomtrack/internal/platform/apierr"
	"github.com/interteks/loomtrack/internal/timebucket"
)

type Reason struct {
	State loom.ActiveState `json:"state"`
	Value int64            `json:"value"`
}

// DominantDuration picks the timed stop state with the most seconds. Ties
// go to the earlier state in loom.TimedStopStates.
func DominantDuration(s loom.StateSeconds) Reason {
	best := Reason{State: loom.TimedStopStates[0], Value: s.Get(loom.TimedStopStates[0])}
	for _, st := range loom.TimedStopStates[1:] {
		if v := s.Get(st); v > best.Value {
			best = Reason{State: st, Value: v}
		}
	}
	return best
}

// DominantCount picks the stop state entered most often, end-of-yarn
// included. Ties go to the earlier state in loom.StopStates.
func DominantCount(c loom.StopCounts) Reason {
	best := Reason{State: loom.StopStates[0], Value: c.Get(loom.StopStates[0])}
	for _, st := range loom.StopStates[1:] {
		if v := c.Get(st); v > best.Value {
			best = Reason{State: st, Value: v}
		}
	}
	return best
}

type LoomRow struct {
	LoomID          string           `json:"loomId"`
	RunningHours    float64          `json:"runningHours"`
	StopHours       float64          `json:"stopHours"`
	Efficiency      loom.Efficiency  `json:"efficiency"`
	OrderedLength   decimal.Decimal  `json:"orderedLength"`
	DeliveredLength decimal.Decimal  `json:"deliveredLength"`
	RemainingLength decimal.Decimal  `json:"remainingLength"`
	StopCountTotal  int64            `json:"stopCountTotal"`
	MainReason      loom.ActiveState `json:"mainReason"`
}

type BreakdownRow struct {
	State         loom.ActiveState `json:"state"`
	Seconds       int64            `json:"seconds"`
	WeightPercent int64            `json:"weightPercent"`
	Count         int64            `json:"count"`
}

type MonthlyReport struct {
	Month            string            `json:"month"`
	ReportDate       string            `json:"reportDate"`
	Timezone         string            `json:"timezone"`
	Looms            []LoomRow         `json:"looms"`
	Totals           loom.StateSeconds `json:"totals"`
	Counts           loom.StopCounts   `json:"counts"`
	Overall          loom.Efficiency   `json:"overall"`
	StopSeconds      int64             `json:"stopSeconds"`
	DominantDuration Reason            `json:"dominantDuration"`
	DominantCount    Reason            `json:"dominantCount"`
	Breakdown        []BreakdownRow    `json:"breakdown"`
}

type ShiftReport struct {
	Period           store.Period      `json:"period"`
	Key              string            `json:"key"`
	Shift            string            `json:"shift"`
	ReportDate       string            `json:"reportDate"`
	Timezone         string            `json:"timezone"`
	States           loom.StateSeconds `json:"states"`
	Efficiency       loom.Efficiency   `json:"efficiency"`
	StopSeconds      int64             `json:"stopSeconds"`
	DominantDuration Reason            `json:"dominantDuration"`
	DominantCount    Reason            `json:"dominantCount"`
	Counts           loom.StopCounts   `json:"counts"`
}

type Builder struct {
	backend  store.Backend
	state    *loomstate.Store
	bucketer *timebucket.Bucketer
}

func NewBuilder(backend store.Backend, state *loomstate.Store, bucketer *timebucket.Bucketer) *Builder {
	return &Builder{backend: backend, state: state, bucketer: bucketer}
}

func hours(seconds int64) float64 {
	return math.Round(float64(seconds)/360) / 10
}

func (b *Builder) reportDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return b.bucketer.DateKey(0), nil
	}
	if !timebucket.ValidDateKey(date) {
		return "", apierr.BadRequest("invalid_date", fmt.Errorf("date must be YYYY-MM-DD"))
	}
	return date, nil
}

func (b *Builder) month(month string) (string, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		return b.bucketer.MonthKey(0), nil
	}
	if !timebucket.ValidMonthKey(month) {
		return "", apierr.BadRequest("invalid_month", fmt.Errorf("month must be YYYY-MM"))
	}
	return month, nil
}

// Monthly reports every loom credited in month. Stop counts are the
// current counters of each loom.
func (b *Builder) Monthly(ctx context.Context, month, date string) (MonthlyReport, error) {
	month, err := b.month(month)
	if err != nil {
		return MonthlyReport{}, err
	}
	reportDate, err := b.reportDate(date)
	if err != nil {
		return MonthlyReport{}, err
	}
	totals, err := b.backend.MonthlyTotals(ctx, month)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("monthly totals: %w", err)
	}
	metas, err := b.backend.ListMeta(ctx)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("list meta: %w", err)
	}
	metaByLoom := make(map[string]loom.Meta, len(metas))
	for _, m := range metas {
		metaByLoom[m.LoomID] = m
	}

	rep := MonthlyReport{
		Month:      month,
		ReportDate: reportDate,
		Timezone:   b.bucketer.Location().String(),
		Looms:      make([]LoomRow, 0, len(totals)),
	}
	for _, t := range totals {
		var counts loom.StopCounts
		if snap, ok := b.state.Get(t.LoomID); ok {
			counts = snap.StopCounts
		}
		meta := metaByLoom[t.LoomID]
		rep.Totals = rep.Totals.Add(t.States)
		rep.Counts = rep.Counts.Add(counts)
		rep.Looms = append(rep.Looms, LoomRow{
			LoomID:          t.LoomID,
			RunningHours:    hours(t.States.Running),
			StopHours:       hours(t.States.StopSeconds()),
			Efficiency:      loom.ComputeEfficiency(t.States),
			OrderedLength:   meta.OrderedLength,
			DeliveredLength: meta.DeliveredLength,
			RemainingLength: meta.RemainingLength(),
			StopCountTotal:  counts.Total(),
			MainReason:      DominantDuration(t.States).State,
		})
	}
	rep.Overall = loom.ComputeEfficiency(rep.Totals)
	rep.StopSeconds = rep.Totals.StopSeconds()
	rep.DominantDuration = DominantDuration(rep.Totals)
	rep.DominantCount = DominantCount(rep.Counts)

	denom := max(int64(1), rep.StopSeconds)
	for _, st := range loom.TimedStopStates {
		secs := rep.Totals.Get(st)
		rep.Breakdown = append(rep.Breakdown, BreakdownRow{
			State:         st,
			Seconds:       secs,
			WeightPercent: int64(math.Round(float64(secs) / float64(denom) * 100)),
			Count:         rep.Counts.Get(st),
		})
	}
	return rep, nil
}

// Shift reports one shift bucket. shift defaults to the morning shift.
func (b *Builder) Shift(ctx context.Context, period store.Period, month, shift, date string) (ShiftReport, error) {
	shift = strings.TrimSpace(shift)
	if shift == "" {
		shift = timebucket.ShiftMorning
	}
	if !timebucket.ValidShift(shift) {
		return ShiftReport{}, apierr.BadRequest("invalid_shift", fmt.Errorf("shift must be one of %s", strings.Join(timebucket.Shifts, ", ")))
	}
	reportDate, err := b.reportDate(date)
	if err != nil {
		return ShiftReport{}, err
	}
	key := reportDate
	if period != store.PeriodDaily {
		if key, err = b.month(month); err != nil {
			return ShiftReport{}, err
		}
	}
	rows, err := b.backend.ShiftTotals(ctx, period, key)
	if err != nil {
		return ShiftReport{}, fmt.Errorf("shift totals: %w", err)
	}
	var states loom.StateSeconds
	for _, r := range rows {
		if r.Shift == shift {
			states = r.States
		}
	}
	var counts loom.StopCounts
	for _, snap := range b.state.All() {
		counts = counts.Add(snap.StopCounts)
	}
	return ShiftReport{
		Period:           period,
		Key:              key,
		Shift:            shift,
		ReportDate:       reportDate,
		Timezone:         b.bucketer.Location().String(),
		States:           states,
		Efficiency:       loom.ComputeEfficiency(states),
		StopSeconds:      states.StopSeconds(),
		DominantDuration: DominantDuration(states),
		DominantCount:    DominantCount(counts),
		Counts:           counts,
	}, nil
}
