package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationTag marks a user as an explicit recipient of a trip's future
// events, in addition to the default recipient set.
// The (TripID, UserID) pair is unique; tagging twice is a no-op.
type NotificationTag struct {
	TripID    uuid.UUID `json:"trip_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
