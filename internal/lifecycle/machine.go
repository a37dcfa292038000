// Package lifecycle implements the trip state machine. Every function here is
// pure: callers read the trip, call Apply, and persist the result with a
// compare-and-set against the status and version they read.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/hierarchy"
)

// Apply validates cmd against t and returns the updated trip together with
// the event types the transition emits. On error t is returned unchanged.
//
// Checks run in this order: known action, decline reason, (status, action)
// pair, authorization, action preconditions.
func Apply(t domain.Trip, cmd domain.Command, now time.Time) (domain.Trip, []domain.EventType, error) {
	if !cmd.Action.Valid() {
		return t, nil, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, cmd.Action)
	}
	if cmd.Action == domain.ActionDecline && !cmd.Params.Reason.Valid() {
		return t, nil, fmt.Errorf("%w: %q", domain.ErrInvalidDeclineReason, cmd.Params.Reason)
	}

	tr, ok := lookup(t.Status, cmd.Action)
	if !ok {
		return t, nil, &domain.TransitionError{From: t.Status, Action: cmd.Action}
	}
	if err := authorize(t, cmd, tr.actor); err != nil {
		return t, nil, err
	}

	next := t
	events, err := tr.effect(&next, cmd, now)
	if err != nil {
		return t, nil, err
	}
	next.Status = tr.To
	next.UpdatedBy = cmd.Actor.UserID
	next.UpdatedAt = now
	return next, events, nil
}

// Step is one trip's part of a batch transition.
type Step struct {
	Before domain.Trip
	After  domain.Trip
	Events []domain.EventType
}

// ApplySeries applies a confirm or decline to the acting trip and every
// order-status sibling of its recurring series. siblings is the snapshot
// read before the call and may include the acting trip itself, which is
// skipped. Any sibling failing validation fails the whole batch.
//
// Unassigned siblings inherit the acting trip's driver before the command is
// applied, so a driver confirming one instance takes the whole series.
func ApplySeries(acting domain.Trip, siblings []domain.Trip, cmd domain.Command, now time.Time) ([]Step, error) {
	if !cmd.Action.AppliesToSeries() {
		return nil, fmt.Errorf("%w: %s does not apply to a series", domain.ErrValidation, cmd.Action)
	}
	after, events, err := Apply(acting, cmd, now)
	if err != nil {
		return nil, err
	}
	steps := []Step{{Before: acting, After: after, Events: events}}

	for _, s := range siblings {
		if s.ID == acting.ID {
			continue
		}
		if s.Status != domain.StatusOrder {
			return nil, fmt.Errorf("%w: sibling %s is %s", domain.ErrPartialBatch, s.ID, s.Status)
		}
		prepared := s
		if prepared.DriverID == nil && acting.DriverID != nil {
			d := *acting.DriverID
			prepared.DriverID = &d
		}
		sAfter, sEvents, err := Apply(prepared, cmd, now)
		if err != nil {
			return nil, fmt.Errorf("sibling %s: %w", s.ID, err)
		}
		steps = append(steps, Step{Before: s, After: sAfter, Events: sEvents})
	}
	return steps, nil
}

func authorize(t domain.Trip, cmd domain.Command, actor actorKind) error {
	switch actor {
	case actorStaff:
		if !hierarchy.CanAct(cmd.Actor, t.Scope()) {
			return fmt.Errorf("%w: %s requires staff in scope", domain.ErrUnauthorized, cmd.Action)
		}
		return nil
	case actorDriver:
		if t.IsAssignedTo(cmd.Actor.UserID) {
			return nil
		}
		if cmd.Actor.Role.IsSuper() {
			if t.DriverID == nil && cmd.Action == domain.ActionConfirm {
				return fmt.Errorf("%w: cannot confirm an order with no driver assigned", domain.ErrValidation)
			}
			return nil
		}
		if cmd.Action == domain.ActionConfirm && t.DriverID == nil &&
			cmd.Actor.Role == domain.RoleDriver && hierarchy.ShouldReceive(cmd.Actor, t.Scope()) {
			return nil
		}
		return fmt.Errorf("%w: %s requires the assigned driver", domain.ErrUnauthorized, cmd.Action)
	}
	return fmt.Errorf("%w: no actor rule for %s", domain.ErrUnauthorized, cmd.Action)
}

func stamp(now time.Time) *time.Time {
	return &now
}

func assign(t *domain.Trip, cmd domain.Command, _ time.Time) ([]domain.EventType, error) {
	if cmd.Params.DriverID == nil || *cmd.Params.DriverID == uuid.Nil {
		return nil, fmt.Errorf("%w: assign requires driver_id", domain.ErrValidation)
	}
	d := *cmd.Params.DriverID
	t.DriverID = &d
	t.Decline = nil
	return []domain.EventType{domain.EventDriverAssigned}, nil
}

func confirm(t *domain.Trip, cmd domain.Command, _ time.Time) ([]domain.EventType, error) {
	if t.DriverID == nil {
		d := cmd.Actor.UserID
		t.DriverID = &d
	}
	t.Decline = nil
	return []domain.EventType{domain.EventOrderConfirmed}, nil
}

func decline(t *domain.Trip, cmd domain.Command, now time.Time) ([]domain.EventType, error) {
	t.DriverID = nil
	t.Decline = &domain.Decline{
		Reason:     cmd.Params.Reason,
		DeclinedBy: cmd.Actor.UserID,
		DeclinedAt: now,
	}
	return []domain.EventType{domain.EventOrderDeclined}, nil
}

func cancel(_ *domain.Trip, _ domain.Command, _ time.Time) ([]domain.EventType, error) {
	return []domain.EventType{domain.EventTripCancelled}, nil
}

func startTrip(t *domain.Trip, cmd domain.Command, now time.Time) ([]domain.EventType, error) {
	t.ActualPickupAt = stamp(now)
	events := []domain.EventType{domain.EventTripStarted}
	if cmd.Params.ClientAboard {
		t.ClientOnboardAt = stamp(now)
		events = append(events, domain.EventClientOnboard)
	}
	return events, nil
}

func arrive(t *domain.Trip, cmd domain.Command, now time.Time) ([]domain.EventType, error) {
	if t.Kind != domain.KindRoundTrip {
		return nil, fmt.Errorf("%w: arrive is only valid on round trips", domain.ErrValidation)
	}
	if t.ClientDropoffAt != nil {
		return nil, fmt.Errorf("%w: client already dropped off", domain.ErrValidation)
	}
	t.ClientDropoffAt = stamp(now)
	events := []domain.EventType{domain.EventClientDropoff}
	if cmd.Params.StartWaitTime {
		t.WaitStartedAt = stamp(now)
		events = append(events, domain.EventWaitTimeStarted)
	}
	return events, nil
}

func clientReady(t *domain.Trip, _ domain.Command, now time.Time) ([]domain.EventType, error) {
	if t.Kind != domain.KindRoundTrip {
		return nil, fmt.Errorf("%w: client_ready is only valid on round trips", domain.ErrValidation)
	}
	if t.WaitStartedAt == nil {
		return nil, fmt.Errorf("%w: wait time was never started", domain.ErrValidation)
	}
	if t.WaitStoppedAt != nil {
		return nil, fmt.Errorf("%w: wait time already stopped", domain.ErrValidation)
	}
	stopped := now
	if stopped.Before(*t.WaitStartedAt) {
		stopped = *t.WaitStartedAt
	}
	t.WaitStoppedAt = &stopped
	return []domain.EventType{domain.EventWaitTimeStopped}, nil
}

func completeTrip(t *domain.Trip, _ domain.Command, now time.Time) ([]domain.EventType, error) {
	t.CompletedAt = stamp(now)
	return []domain.EventType{domain.EventTripCompleted}, nil
}

func noShow(_ *domain.Trip, _ domain.Command, _ time.Time) ([]domain.EventType, error) {
	return []domain.EventType{domain.EventNoShow}, nil
}
