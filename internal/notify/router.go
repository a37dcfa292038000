// Package notify turns notification intents into addressed deliveries and
// runs the asynchronous pipeline that hands them to the broadcast hub.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/repo"
)

// PreferenceFilter answers whether each user wants an event type, with
// defaults already applied.
type PreferenceFilter interface {
	Enabled(ctx context.Context, eventType domain.EventType, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Audience is the default recipient set of an event type before preference
// filtering.
type Audience struct {
	Creator        bool
	Tagged         bool
	SuperAdmins    bool
	AssignedDriver bool
}

// AudienceFor returns the default audience of eventType.
func AudienceFor(eventType domain.EventType) Audience {
	switch eventType {
	case domain.EventOrderConfirmed, domain.EventTripStarted, domain.EventTripCompleted,
		domain.EventNoShow, domain.EventTripCancelled:
		return Audience{Creator: true, Tagged: true}
	case domain.EventOrderDeclined:
		return Audience{Creator: true, Tagged: true, SuperAdmins: true}
	case domain.EventDriverAssigned:
		return Audience{Creator: true, Tagged: true, AssignedDriver: true}
	case domain.EventClientOnboard, domain.EventClientDropoff,
		domain.EventWaitTimeStarted, domain.EventWaitTimeStopped:
		return Audience{Tagged: true}
	}
	return Audience{}
}

// Router expands an intent into per-recipient deliveries. It never delivers
// anything itself.
type Router struct {
	trips    repo.TripRepo
	tags     repo.TagRepo
	programs repo.ProgramRepo
	users    repo.UserRepo
	prefs    PreferenceFilter
}

// NewRouter constructs a Router.
func NewRouter(trips repo.TripRepo, tags repo.TagRepo, programs repo.ProgramRepo, users repo.UserRepo, prefs PreferenceFilter) *Router {
	return &Router{trips: trips, tags: tags, programs: programs, users: users, prefs: prefs}
}

// Route returns one delivery per recipient that should get the intent's
// event. Recipients are deduplicated and appear in expansion order.
//
// Returns domain.ErrScopeMismatch if the trip's corporate client disagrees
// with its program's; such events are not delivered to anyone.
func (r *Router) Route(ctx context.Context, in domain.Intent) ([]domain.Delivery, error) {
	if !in.EventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, in.EventType)
	}

	trip, err := r.trips.GetByID(ctx, in.TripID)
	if err != nil {
		return nil, fmt.Errorf("notify.Router.Route: %w", err)
	}
	program, err := r.programs.GetByID(ctx, trip.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("notify.Router.Route: program: %w", err)
	}
	if program.CorporateClientID != trip.CorporateClientID {
		return nil, fmt.Errorf("notify.Router.Route: trip %s: %w", trip.ID, domain.ErrScopeMismatch)
	}

	candidates, err := r.expand(ctx, trip, AudienceFor(in.EventType))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	wanted, err := r.prefs.Enabled(ctx, in.EventType, candidates)
	if err != nil {
		return nil, fmt.Errorf("notify.Router.Route: %w", err)
	}

	// The trip may have moved on since the intent was committed.
	status := in.Status
	if status == "" {
		status = trip.Status
	}
	payload := domain.Notification{
		Type:        in.EventType,
		TripID:      trip.ID,
		Status:      status,
		Scope:       trip.Scope(),
		TriggeredBy: in.TriggeredBy,
		OccurredAt:  in.OccurredAt,
	}
	out := make([]domain.Delivery, 0, len(candidates))
	for _, id := range candidates {
		if !wanted[id] {
			continue
		}
		out = append(out, domain.Delivery{RecipientID: id, Payload: payload})
	}
	return out, nil
}

func (r *Router) expand(ctx context.Context, trip domain.Trip, a Audience) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if id == uuid.Nil {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if a.Creator {
		add(trip.CreatedBy)
	}
	if a.AssignedDriver && trip.DriverID != nil {
		add(*trip.DriverID)
	}
	if a.Tagged {
		tags, err := r.tags.ListByTrip(ctx, trip.ID)
		if err != nil {
			return nil, fmt.Errorf("notify.Router.Route: tags: %w", err)
		}
		for _, t := range tags {
			add(t.UserID)
		}
	}
	if a.SuperAdmins {
		ids, err := r.users.ListIDsByRole(ctx, domain.RoleSuperAdmin)
		if err != nil {
			return nil, fmt.Errorf("notify.Router.Route: super admins: %w", err)
		}
		for _, id := range ids {
			add(id)
		}
	}
	return out, nil
}
