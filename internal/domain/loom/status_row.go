package loom

import (
	"time"

	"gorm.io/datatypes"
)

// LoomStatus is the relational row mirroring a Snapshot.
type LoomStatus struct {
	LoomID      string                           `gorm:"primaryKey;column:loom_id"`
	Timestamp   int64                            `gorm:"column:timestamp;not null"`
	ActiveState string                           `gorm:"column:active_state;not null"`
	States      datatypes.JSONType[StateSeconds] `gorm:"column:states;not null"`
	StopCounts  datatypes.JSONType[StopCounts]   `gorm:"column:stop_counts;not null"`
	UpdatedAt   time.Time                        `gorm:"column:updated_at"`
}

func (LoomStatus) TableName() string { return "loom_status" }

func StatusFromSnapshot(s Snapshot) LoomStatus {
	return LoomStatus{
		LoomID:      s.LoomID,
		Timestamp:   s.Timestamp,
		ActiveState: string(s.ActiveState),
		States:      datatypes.NewJSONType(s.States),
		StopCounts:  datatypes.NewJSONType(s.StopCounts),
	}
}

func (r LoomStatus) Snapshot() Snapshot {
	return Snapshot{
		LoomID:      r.LoomID,
		Timestamp:   r.Timestamp,
		ActiveState: ActiveState(r.ActiveState),
		States:      r.States.Data(),
		StopCounts:  r.StopCounts.Data(),
	}
}
