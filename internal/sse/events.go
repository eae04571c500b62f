// Package sse implements Server-Sent Events for real-time tracker updates and event broadcasting.
package sse

import (
	"time"

	"github.com/tallyapp/tally-server/internal/domain"
)

// Tally only needs server-to-client push: clients mutate over the REST API
// and receive fresh tracker snapshots here. Full bidirectional communication
// may be implemented with WebSockets in the future if needed.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventTrackerCreated represents a tracker creation event.
	EventTrackerCreated EventType = "tracker.created"
	// EventTrackerUpdated represents a tracker update event.
	// Sent with a full snapshot whenever a tracker document changes,
	// including count adjustments that arrive through the sharing fan-out.
	EventTrackerUpdated EventType = "tracker.updated"
	// EventTrackerDeleted represents a tracker deletion event.
	EventTrackerDeleted EventType = "tracker.deleted"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"` // Event-specific data as JSON object
	Type      EventType `json:"type"`

	// When set, the event is only delivered to clients of this user.
	// Empty string means broadcast to all connected clients.
	UserID string `json:"-"` // Not sent to the client
}

// TrackerEventData is the data payload for tracker created/updated events.
// Carries the full tracker snapshot so events are self-contained and
// immediately renderable without additional queries.
type TrackerEventData struct {
	Tracker *domain.Tracker `json:"tracker"`
}

// TrackerDeletedEventData is the data payload for tracker delete events.
type TrackerDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	TrackerID string    `json:"tracker_id"`
	OwnerID   string    `json:"owner_id"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewTrackerCreatedEvent creates a tracker.created event for the tracker's owner.
func NewTrackerCreatedEvent(tracker *domain.Tracker) Event {
	return Event{
		Type:      EventTrackerCreated,
		Data:      TrackerEventData{Tracker: tracker},
		Timestamp: time.Now(),
		UserID:    tracker.OwnerID,
	}
}

// NewTrackerUpdatedEvent creates a tracker.updated event for the tracker's owner.
func NewTrackerUpdatedEvent(tracker *domain.Tracker) Event {
	return Event{
		Type:      EventTrackerUpdated,
		Data:      TrackerEventData{Tracker: tracker},
		Timestamp: time.Now(),
		UserID:    tracker.OwnerID,
	}
}

// NewTrackerDeletedEvent creates a tracker.deleted event for the tracker's owner.
func NewTrackerDeletedEvent(ownerID, trackerID string) Event {
	return Event{
		Type: EventTrackerDeleted,
		Data: TrackerDeletedEventData{
			TrackerID: trackerID,
			OwnerID:   ownerID,
			DeletedAt: time.Now(),
		},
		Timestamp: time.Now(),
		UserID:    ownerID,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
