package realtime

type EventType string

const (
	EventHello  EventType = "hello"
	EventStatus EventType = "status"
	EventMeta   EventType = "meta"
)

// Event is one message on the live stream. Only the fields that belong to
// its type are set.
type Event struct {
	Type        EventType `json:"type"`
	LoomID      string    `json:"loomId,omitempty"`
	Timestamp   int64     `json:"timestamp,omitempty"`
	ActiveState string    `json:"activeState,omitempty"`
}

func StatusEvent(loomID string, ts int64, activeState string) Event {
	return Event{Type: EventStatus, LoomID: loomID, Timestamp: ts, ActiveState: activeState}
}

func MetaEvent(loomID string) Event {
	return Event{Type: EventMeta, LoomID: loomID}
}
