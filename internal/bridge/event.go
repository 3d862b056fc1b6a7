package bridge

import (
	"time"

	"github.com/nerrad567/couch-control/internal/entity"
)

// EventTypeStateChanged is the only event type forwarded.
const EventTypeStateChanged = "state_changed"

// Event is the message forwarded for one change.
type Event struct {
	EventType string    `json:"event_type"`
	Data      EventData `json:"data"`
	Origin    string    `json:"origin"`
	TimeFired time.Time `json:"time_fired"`
}

// EventData carries the entity and its before/after snapshots.
type EventData struct {
	EntityID string        `json:"entity_id"`
	OldState *entity.State `json:"old_state"`
	NewState *entity.State `json:"new_state"`
}

// NewEvent converts a bus event. The snapshots are deep copies.
func NewEvent(e entity.ChangeEvent) Event {
	return Event{
		EventType: EventTypeStateChanged,
		Data: EventData{
			EntityID: e.EntityID,
			OldState: e.OldState.Clone(),
			NewState: e.NewState.Clone(),
		},
		Origin:    e.Origin,
		TimeFired: e.TimeFired,
	}
}
