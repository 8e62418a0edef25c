// Package accounting turns cumulative device counters into non-negative
// per-report deltas and maintains the server-owned stop counters.
package accounting

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/interteks/loomtrack/internal/domain/loom"
)

var ErrValidation = errors.New("invalid report")

// Report is a raw snapshot as sent by a loom controller.
type Report struct {
	LoomID       string             `json:"loomId"`
	Timestamp    *float64           `json:"timestamp,omitempty"`
	ActiveState  string             `json:"activeState,omitempty"`
	StateSeconds *loom.StateSeconds `json:"stateSeconds"`
}

// Result is the outcome of applying one report.
type Result struct {
	Snapshot   loom.Snapshot
	Delta      *loom.StateSeconds
	Cumulative loom.Efficiency
	DeltaEff   *loom.Efficiency

	// First is set for the first report ever seen for the loom.
	First bool
	// Changed is set when the active state differs from the previous report.
	Changed bool
	// Counted is the stop state whose counter was bumped, if any.
	Counted loom.ActiveState
}

type Accountant struct {
	now func() time.Time
}

func New(now func() time.Time) *Accountant {
	if now == nil {
		now = time.Now
	}
	return &Accountant{now: now}
}

// Validate checks the fields a report cannot be processed without.
func Validate(r Report) error {
	if strings.TrimSpace(r.LoomID) == "" {
		return fmt.Errorf("%w: loomId is required", ErrValidation)
	}
	if r.StateSeconds == nil {
		return fmt.Errorf("%w: stateSeconds is required", ErrValidation)
	}
	return nil
}

// NormalizeTimestamp substitutes now for missing or pre-2021 timestamps.
func NormalizeTimestamp(ts *float64, now time.Time) int64 {
	if ts == nil || math.IsNaN(*ts) || math.IsInf(*ts, 0) {
		return now.Unix()
	}
	v := int64(*ts)
	if v < loom.MinValidTimestamp {
		return now.Unix()
	}
	return v
}

// Diff returns next-prev per state, clamped at zero so a counter reset on
// the device never produces a negative credit.
func Diff(prev, next loom.StateSeconds) loom.StateSeconds {
	return loom.StateSeconds{
		Running:      max(0, next.Running-prev.Running),
		WeftStop:     max(0, next.WeftStop-prev.WeftStop),
		WarpStop:     max(0, next.WarpStop-prev.WarpStop),
		ManualStop:   max(0, next.ManualStop-prev.ManualStop),
		GeneralFault: max(0, next.GeneralFault-prev.GeneralFault),
	}
}

// Apply computes the snapshot that replaces prev. prev is nil for a loom
// that never reported before. prev is not modified.
func (a *Accountant) Apply(prev *loom.Snapshot, r Report) (Result, error) {
	if err := Validate(r); err != nil {
		return Result{}, err
	}

	state := loom.ActiveState(strings.TrimSpace(r.ActiveState))
	if state == "" {
		state = loom.StateNone
	}
	states := r.StateSeconds.NonNegative()

	next := loom.Snapshot{
		LoomID:      strings.TrimSpace(r.LoomID),
		Timestamp:   NormalizeTimestamp(r.Timestamp, a.now()),
		ActiveState: state,
		States:      states,
	}

	res := Result{Cumulative: loom.ComputeEfficiency(states)}
	if prev == nil {
		res.First = true
		res.Changed = true
		res.Snapshot = next
		return res, nil
	}

	next.StopCounts = prev.StopCounts
	delta := Diff(prev.States, states)
	deltaEff := loom.ComputeEfficiency(delta)
	res.Delta = &delta
	res.DeltaEff = &deltaEff

	if state != prev.ActiveState {
		res.Changed = true
		if state.IsStop() {
			next.StopCounts.Increment(state)
			res.Counted = state
		}
	}
	res.Snapshot = next
	return res, nil
}
