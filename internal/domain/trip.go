// Package domain contains the core data types for the dispatch service.
// This package depends only on google/uuid and is imported by every other
// internal package (lifecycle, repo, service, notify, hub, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a trip.
type Status string

const (
	StatusOrder      Status = "order"
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Statuses lists every trip status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusOrder, StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow,
	}
}

// IsTerminal reports whether no further transitions are accepted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Kind distinguishes one-way trips from round trips. Only round trips track
// drop-off and wait time while in progress.
type Kind string

const (
	KindOneWay    Kind = "one_way"
	KindRoundTrip Kind = "round_trip"
)

// Valid reports whether k is a known trip kind.
func (k Kind) Valid() bool {
	return k == KindOneWay || k == KindRoundTrip
}

// Scope is the two-level tenant scope an event or trip belongs to.
// uuid.Nil in either field means "not attached".
type Scope struct {
	ProgramID         uuid.UUID `json:"program_id"`
	CorporateClientID uuid.UUID `json:"corporate_client_id"`
}

// Decline records why and by whom the assigned driver turned an order down.
// It is only meaningful while the trip remains in StatusOrder.
type Decline struct {
	Reason     DeclineReason `json:"reason"`
	DeclinedBy uuid.UUID     `json:"declined_by"`
	DeclinedAt time.Time     `json:"declined_at"`
}

// Trip is a single transport instance.
//
// ProgramID and CorporateClientID are fixed at creation. DriverID may only be
// nil while Status is StatusOrder. Version increases on every committed
// change and is used together with Status for compare-and-set updates.
type Trip struct {
	ID                uuid.UUID  `json:"id"`
	RecurringSeriesID *uuid.UUID `json:"recurring_series_id,omitempty"`
	ProgramID         uuid.UUID  `json:"program_id"`
	CorporateClientID uuid.UUID  `json:"corporate_client_id"`
	ClientID          uuid.UUID  `json:"client_id"`
	DriverID          *uuid.UUID `json:"driver_id,omitempty"`

	Kind           Kind       `json:"kind"`
	PickupAt       time.Time  `json:"pickup_at"`
	ReturnAt       *time.Time `json:"return_at,omitempty"`
	PickupAddress  string     `json:"pickup_address"`
	DropoffAddress string     `json:"dropoff_address"`

	Status Status `json:"status"`

	ActualPickupAt  *time.Time `json:"actual_pickup_at,omitempty"`
	ClientOnboardAt *time.Time `json:"client_onboard_at,omitempty"`
	ClientDropoffAt *time.Time `json:"client_dropoff_at,omitempty"`
	WaitStartedAt   *time.Time `json:"wait_started_at,omitempty"`
	WaitStoppedAt   *time.Time `json:"wait_stopped_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	Decline *Decline `json:"decline,omitempty"`

	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the tenant scope the trip belongs to.
func (t Trip) Scope() Scope {
	return Scope{ProgramID: t.ProgramID, CorporateClientID: t.CorporateClientID}
}

// IsAssignedTo reports whether userID is the trip's assigned driver.
func (t Trip) IsAssignedTo(userID uuid.UUID) bool {
	return t.DriverID != nil && *t.DriverID == userID
}

// RecurringSeries groups trip instances generated from one booking pattern.
type RecurringSeries struct {
	ID                uuid.UUID `json:"id"`
	ProgramID         uuid.UUID `json:"program_id"`
	CorporateClientID uuid.UUID `json:"corporate_client_id"`
	ClientID          uuid.UUID `json:"client_id"`
	Cadence           string    `json:"cadence"`
	PickupAddress     string    `json:"pickup_address"`
	DropoffAddress    string    `json:"dropoff_address"`
	CreatedBy         uuid.UUID `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

// Program is the lower tenant level. Every program belongs to exactly one
// corporate client.
type Program struct {
	ID                uuid.UUID
	CorporateClientID uuid.UUID
	Name              string
}

// TripFilter narrows a trip listing to what a viewer may see. Zero values
// mean "no constraint"; an empty ProgramIDs with Restricted set matches
// nothing.
type TripFilter struct {
	CorporateClientID uuid.UUID
	ProgramIDs        []uuid.UUID
	Restricted        bool
	Status            Status
}
