package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a trip event. Each event type is also a notification
// preference key.
type EventType string

const (
	EventOrderConfirmed  EventType = "order_confirmed"
	EventOrderDeclined   EventType = "order_declined"
	EventDriverAssigned  EventType = "driver_assigned"
	EventTripCancelled   EventType = "trip_cancelled"
	EventTripStarted     EventType = "trip_started"
	EventClientOnboard   EventType = "client_onboard"
	EventClientDropoff   EventType = "client_dropoff"
	EventWaitTimeStarted EventType = "wait_time_started"
	EventWaitTimeStopped EventType = "wait_time_stopped"
	EventTripCompleted   EventType = "trip_completed"
	EventNoShow          EventType = "no_show"
)

// EventTypes lists every event type.
func EventTypes() []EventType {
	return []EventType{
		EventOrderConfirmed, EventOrderDeclined, EventDriverAssigned, EventTripCancelled,
		EventTripStarted, EventClientOnboard, EventClientDropoff,
		EventWaitTimeStarted, EventWaitTimeStopped, EventTripCompleted, EventNoShow,
	}
}

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	for _, known := range EventTypes() {
		if e == known {
			return true
		}
	}
	return false
}

// DefaultPreferences returns the system default for every event type:
// everything enabled.
func DefaultPreferences() map[EventType]bool {
	out := make(map[EventType]bool, len(EventTypes()))
	for _, e := range EventTypes() {
		out[e] = true
	}
	return out
}

// Preference is a user's opt-in or opt-out for one event type.
type Preference struct {
	UserID    uuid.UUID `json:"user_id"`
	EventType EventType `json:"event_type"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Intent is emitted by every committed transition and consumed
// asynchronously by the notification pipeline.
// Status is the trip status the transition committed, which may be stale by
// the time the intent is routed.
type Intent struct {
	TripID      uuid.UUID `json:"trip_id"`
	EventType   EventType `json:"event_type"`
	Status      Status    `json:"status"`
	TriggeredBy uuid.UUID `json:"triggered_by"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notification is the payload delivered to a connected session.
// Scope is what the hub re-checks before writing it to a socket.
type Notification struct {
	Type        EventType `json:"type"`
	TripID      uuid.UUID `json:"trip_id"`
	Status      Status    `json:"status"`
	Scope       Scope     `json:"scope"`
	TriggeredBy uuid.UUID `json:"triggered_by"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Delivery addresses a notification to one user.
type Delivery struct {
	RecipientID uuid.UUID
	Payload     Notification
}
