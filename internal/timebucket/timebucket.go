// Package timebucket maps epoch timestamps to the calendar keys that totals
// are bucketed by. Every key is computed in one reporting timezone so that
// the write path and the read path agree regardless of the host timezone.
package timebucket

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const DefaultTimezone = "Europe/Istanbul"

const (
	ShiftMorning = "07-15"
	ShiftEvening = "15-23"
	ShiftNight   = "23-07"
)

// Shifts lists the shift keys in reporting order.
var Shifts = []string{ShiftMorning, ShiftEvening, ShiftNight}

type Bucketer struct {
	loc *time.Location
	now func() time.Time
}

func New(timezone string) (*Bucketer, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load report timezone %q: %w", timezone, err)
	}
	return &Bucketer{loc: loc, now: time.Now}, nil
}

// WithClock returns a copy that resolves "now" through now.
func (b *Bucketer) WithClock(now func() time.Time) *Bucketer {
	return &Bucketer{loc: b.loc, now: now}
}

func (b *Bucketer) Location() *time.Location { return b.loc }

// Now returns the current epoch second.
func (b *Bucketer) Now() int64 { return b.now().Unix() }

func (b *Bucketer) local(ts int64) time.Time {
	if ts <= 0 {
		ts = b.Now()
	}
	return time.Unix(ts, 0).In(b.loc)
}

// MonthKey returns YYYY-MM.
func (b *Bucketer) MonthKey(ts int64) string {
	return b.local(ts).Format("2006-01")
}

// DateKey returns the local calendar date as YYYY-MM-DD.
func (b *Bucketer) DateKey(ts int64) string {
	return b.local(ts).Format("2006-01-02")
}

// ShiftKey returns the 8-hour shift the local hour falls into.
func (b *Bucketer) ShiftKey(ts int64) string {
	return shiftForHour(b.local(ts).Hour())
}

// ShiftDateKey returns the date a shift is attributed to. The night shift
// belongs to the day it started on, so hours before 07:00 roll back a day.
func (b *Bucketer) ShiftDateKey(ts int64) string {
	return b.Keys(ts).ShiftDate
}

// Keys bundles every key for one timestamp.
type Keys struct {
	Month     string
	Shift     string
	ShiftDate string
}

func (b *Bucketer) Keys(ts int64) Keys {
	t := b.local(ts)
	k := Keys{Month: t.Format("2006-01"), Shift: shiftForHour(t.Hour())}
	if t.Hour() < 7 {
		t = time.Date(t.Year(), t.Month(), t.Day()-1, 12, 0, 0, 0, b.loc)
	}
	k.ShiftDate = t.Format("2006-01-02")
	return k
}

func shiftForHour(hour int) string {
	switch {
	case hour >= 7 && hour < 15:
		return ShiftMorning
	case hour >= 15 && hour < 23:
		return ShiftEvening
	default:
		return ShiftNight
	}
}

// ValidShift reports whether s is one of the three shift keys.
func ValidShift(s string) bool {
	return s == ShiftMorning || s == ShiftEvening || s == ShiftNight
}

// ValidMonthKey reports whether s parses as YYYY-MM.
func ValidMonthKey(s string) bool {
	_, err := time.Parse("2006-01", s)
	return err == nil
}

// ValidDateKey reports whether s parses as YYYY-MM-DD.
func ValidDateKey(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
