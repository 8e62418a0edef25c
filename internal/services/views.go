package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
)

type MetaView struct {
	LoomID          string          `json:"loomId"`
	Pattern         string          `json:"pattern"`
	WeftDensity     string          `json:"weftDensity"`
	Speed           string          `json:"speed"`
	OrderedLength   decimal.Decimal `json:"orderedLength"`
	DeliveredLength decimal.Decimal `json:"deliveredLength"`
	RemainingLength decimal.Decimal `json:"remainingLength"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func metaView(m loom.Meta) MetaView {
	return MetaView{
		LoomID:          m.LoomID,
		Pattern:         m.Pattern,
		WeftDensity:     m.WeftDensity,
		Speed:           m.Speed,
		OrderedLength:   m.OrderedLength,
		DeliveredLength: m.DeliveredLength,
		RemainingLength: m.RemainingLength(),
		UpdatedAt:       m.UpdatedAt,
	}
}

// StatusView is one loom on the live board.
type StatusView struct {
	loom.Snapshot
	Cumulative loom.Efficiency `json:"cumulative"`
	Meta       *MetaView       `json:"meta"`
}

func statusView(s loom.Snapshot, meta *loom.Meta) StatusView {
	v := StatusView{Snapshot: s, Cumulative: loom.ComputeEfficiency(s.States)}
	if meta != nil && !meta.IsEmpty() {
		mv := metaView(*meta)
		v.Meta = &mv
	}
	return v
}

type MonthlyRow struct {
	LoomID     string            `json:"loomId"`
	States     loom.StateSeconds `json:"states"`
	Efficiency loom.Efficiency   `json:"efficiency"`
}

type MonthlyView struct {
	Month string       `json:"month"`
	Looms []MonthlyRow `json:"looms"`
}

type ShiftRowView struct {
	Shift      string            `json:"shift"`
	States     loom.StateSeconds `json:"states"`
	Efficiency loom.Efficiency   `json:"efficiency"`
}

type ShiftsView struct {
	Period store.Period   `json:"period"`
	Key    string         `json:"key"`
	Shifts []ShiftRowView `json:"shifts"`
}

type IngestResult struct {
	LoomID      string           `json:"loomId"`
	ActiveState loom.ActiveState `json:"activeState"`
	Cumulative  loom.Efficiency  `json:"cumulative"`
	Delta       *loom.Efficiency `json:"delta"`
}

type CutLengthResult struct {
	LoomID          string          `json:"loomId"`
	OrderedLength   decimal.Decimal `json:"orderedLength"`
	DeliveredLength decimal.Decimal `json:"deliveredLength"`
	RemainingLength decimal.Decimal `json:"remainingLength"`
	Mode            string          `json:"mode"`
}
