package domain

import "github.com/google/uuid"

// Action is a requested lifecycle transition.
type Action string

const (
	ActionAssign       Action = "assign"
	ActionConfirm      Action = "confirm"
	ActionDecline      Action = "decline"
	ActionCancel       Action = "cancel"
	ActionStartTrip    Action = "start_trip"
	ActionArrive       Action = "arrive"
	ActionClientReady  Action = "client_ready"
	ActionCompleteTrip Action = "complete_trip"
	ActionNoShow       Action = "no_show"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{
		ActionAssign, ActionConfirm, ActionDecline, ActionCancel, ActionStartTrip,
		ActionArrive, ActionClientReady, ActionCompleteTrip, ActionNoShow,
	}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// AppliesToSeries reports whether the action fans out to every sibling
// order-status instance of a recurring series.
func (a Action) AppliesToSeries() bool {
	return a == ActionConfirm || a == ActionDecline
}

// DeclineReason is the closed set of reasons a driver may give when
// declining an order.
type DeclineReason string

const (
	DeclineConflict          DeclineReason = "conflict"
	DeclineDayOff            DeclineReason = "day_off"
	DeclineUnavailable       DeclineReason = "unavailable"
	DeclineVehicleIssue      DeclineReason = "vehicle_issue"
	DeclinePersonalEmergency DeclineReason = "personal_emergency"
	DeclineTooFar            DeclineReason = "too_far"
)

// DeclineReasons lists the accepted decline reasons.
func DeclineReasons() []DeclineReason {
	return []DeclineReason{
		DeclineConflict, DeclineDayOff, DeclineUnavailable,
		DeclineVehicleIssue, DeclinePersonalEmergency, DeclineTooFar,
	}
}

// Valid reports whether r is one of DeclineReasons.
func (r DeclineReason) Valid() bool {
	for _, known := range DeclineReasons() {
		if r == known {
			return true
		}
	}
	return false
}

// TransitionParams carries the action-specific inputs of a transition.
// Fields not used by the requested action are ignored.
type TransitionParams struct {
	// ClientAboard is read by start_trip. False records a deadhead start.
	ClientAboard bool `json:"client_aboard"`
	// StartWaitTime is read by arrive on round trips.
	StartWaitTime bool `json:"start_wait_time"`
	// Reason is required by decline.
	Reason DeclineReason `json:"reason,omitempty"`
	// DriverID is required by assign.
	DriverID *uuid.UUID `json:"driver_id,omitempty"`
}

// Command is a fully described transition request.
type Command struct {
	Action Action
	Actor  Identity
	Params TransitionParams
}

// TransitionResult is the outcome of a committed transition.
// AppliedTripIDs lists every trip that changed: a single ID normally, the
// whole sibling set for recurring confirm/decline.
type TransitionResult struct {
	NewStatus      Status      `json:"new_status"`
	AppliedTripIDs []uuid.UUID `json:"applied_trip_ids"`
}
