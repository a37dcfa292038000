// Package service contains the business logic for the dispatch API.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here: services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/hierarchy"
	"github.com/pkordes/transit-dispatch/internal/lifecycle"
	"github.com/pkordes/transit-dispatch/internal/repo"
)

// Notifier accepts intents for asynchronous delivery. Enqueue must not block.
type Notifier interface {
	Enqueue(intents ...domain.Intent)
}

// TripService implements trip creation, listing, and lifecycle transitions.
type TripService struct {
	trips    repo.TripRepo
	series   repo.SeriesRepo
	programs repo.ProgramRepo
	users    repo.UserRepo
	notifier Notifier
	now      func() time.Time
}

// NewTripService constructs a TripService. notifier may be nil, in which
// case intents are discarded.
func NewTripService(trips repo.TripRepo, series repo.SeriesRepo, programs repo.ProgramRepo, users repo.UserRepo, notifier Notifier) *TripService {
	return &TripService{
		trips:    trips,
		series:   series,
		programs: programs,
		users:    users,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (s *TripService) WithClock(now func() time.Time) *TripService {
	s.now = now
	return s
}

// Create validates and persists a new order. The corporate client is always
// taken from the program record.
func (s *TripService) Create(ctx context.Context, actor domain.Identity, trip domain.Trip) (domain.Trip, error) {
	if err := validateTrip(trip); err != nil {
		return domain.Trip{}, err
	}
	program, err := s.programs.GetByID(ctx, trip.ProgramID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	if err := canBook(actor, program); err != nil {
		return domain.Trip{}, err
	}

	trip.CorporateClientID = program.CorporateClientID
	if trip.DriverID != nil {
		if err := s.checkDriver(ctx, *trip.DriverID, trip.Scope()); err != nil {
			return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
		}
	}
	trip.Status = domain.StatusOrder
	trip.CreatedBy = actor.UserID
	trip.RecurringSeriesID = nil
	trip.Decline = nil

	created, err := s.trips.Create(ctx, trip)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	return created, nil
}

// CreateSeries persists a recurring series and its instances atomically.
// Scope, client, and addresses of every instance come from the series.
func (s *TripService) CreateSeries(ctx context.Context, actor domain.Identity, series domain.RecurringSeries, instances []domain.Trip) (domain.RecurringSeries, []domain.Trip, error) {
	if len(instances) == 0 {
		return domain.RecurringSeries{}, nil, fmt.Errorf("%w: a series needs at least one instance", domain.ErrValidation)
	}
	if strings.TrimSpace(series.Cadence) == "" {
		return domain.RecurringSeries{}, nil, fmt.Errorf("%w: cadence is required", domain.ErrValidation)
	}
	program, err := s.programs.GetByID(ctx, series.ProgramID)
	if err != nil {
		return domain.RecurringSeries{}, nil, fmt.Errorf("service.TripService.CreateSeries: %w", err)
	}
	if err := canBook(actor, program); err != nil {
		return domain.RecurringSeries{}, nil, err
	}

	series.CorporateClientID = program.CorporateClientID
	series.CreatedBy = actor.UserID

	prepared := make([]domain.Trip, len(instances))
	checked := map[uuid.UUID]bool{}
	for i, inst := range instances {
		inst.ProgramID = series.ProgramID
		inst.CorporateClientID = series.CorporateClientID
		inst.ClientID = series.ClientID
		inst.PickupAddress = series.PickupAddress
		inst.DropoffAddress = series.DropoffAddress
		inst.Status = domain.StatusOrder
		inst.CreatedBy = actor.UserID
		inst.Decline = nil
		if err := validateTrip(inst); err != nil {
			return domain.RecurringSeries{}, nil, fmt.Errorf("instance %d: %w", i, err)
		}
		if inst.DriverID != nil && !checked[*inst.DriverID] {
			if err := s.checkDriver(ctx, *inst.DriverID, inst.Scope()); err != nil {
				return domain.RecurringSeries{}, nil, fmt.Errorf("service.TripService.CreateSeries: instance %d: %w", i, err)
			}
			checked[*inst.DriverID] = true
		}
		prepared[i] = inst
	}

	created, trips, err := s.series.Create(ctx, series, prepared)
	if err != nil {
		return domain.RecurringSeries{}, nil, fmt.Errorf("service.TripService.CreateSeries: %w", err)
	}
	return created, trips, nil
}

// GetByID returns a trip the actor may see. Trips outside the actor's scope
// are reported as not found.
func (s *TripService) GetByID(ctx context.Context, actor domain.Identity, id uuid.UUID) (domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	if !canView(actor, trip) {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", domain.ErrNotFound)
	}
	return trip, nil
}

// GetSeries returns a series the actor may see together with its instances
// still in order, which is the set a confirm or decline would move.
// Series outside the actor's scope are reported as not found.
func (s *TripService) GetSeries(ctx context.Context, actor domain.Identity, id uuid.UUID) (domain.RecurringSeries, []domain.Trip, error) {
	series, err := s.series.GetByID(ctx, id)
	if err != nil {
		return domain.RecurringSeries{}, nil, fmt.Errorf("service.TripService.GetSeries: %w", err)
	}
	scope := domain.Scope{ProgramID: series.ProgramID, CorporateClientID: series.CorporateClientID}
	if actor.UserID != series.CreatedBy && !hierarchy.ShouldReceive(actor, scope) {
		return domain.RecurringSeries{}, nil, fmt.Errorf("service.TripService.GetSeries: %w", domain.ErrNotFound)
	}
	open, err := s.trips.ListBySeries(ctx, id, domain.StatusOrder)
	if err != nil {
		return domain.RecurringSeries{}, nil, fmt.Errorf("service.TripService.GetSeries: %w", err)
	}
	return series, open, nil
}

// List returns one page of trips visible to the actor.
func (s *TripService) List(ctx context.Context, actor domain.Identity, status domain.Status, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	trips, total, err := s.trips.ListPaged(ctx, visibleTo(actor, status), p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.TripService.List: %w", err)
	}
	return trips, total, nil
}

// ApplyTransition runs cmd against the trip and commits the result with a
// compare-and-set. Confirm and decline of a recurring order fan out to every
// order-status sibling and commit as one batch. Intents are queued only
// after the commit succeeds.
func (s *TripService) ApplyTransition(ctx context.Context, tripID uuid.UUID, cmd domain.Command) (domain.TransitionResult, error) {
	if cmd.Action == domain.ActionDecline && !cmd.Params.Reason.Valid() {
		return domain.TransitionResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidDeclineReason, cmd.Params.Reason)
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("service.TripService.ApplyTransition: %w", err)
	}

	if cmd.Action == domain.ActionAssign && cmd.Params.DriverID != nil {
		if err := s.checkDriver(ctx, *cmd.Params.DriverID, trip.Scope()); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("service.TripService.ApplyTransition: %w", err)
		}
	}

	now := s.now()
	if cmd.Action.AppliesToSeries() && trip.Status == domain.StatusOrder && trip.RecurringSeriesID != nil {
		return s.applySeries(ctx, trip, cmd, now)
	}

	next, events, err := lifecycle.Apply(trip, cmd, now)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	committed, err := s.trips.CompareAndSwap(ctx, repo.TripChange{Current: trip, Next: next})
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("service.TripService.ApplyTransition: %w", err)
	}

	s.enqueue(committed, events, cmd.Actor.UserID, now)
	return domain.TransitionResult{NewStatus: committed.Status, AppliedTripIDs: []uuid.UUID{committed.ID}}, nil
}

func (s *TripService) applySeries(ctx context.Context, trip domain.Trip, cmd domain.Command, now time.Time) (domain.TransitionResult, error) {
	siblings, err := s.trips.ListBySeries(ctx, *trip.RecurringSeriesID, domain.StatusOrder)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("service.TripService.ApplyTransition: siblings: %w", err)
	}

	// The snapshot is authoritative: the acting trip must still be in it.
	i := slices.IndexFunc(siblings, func(t domain.Trip) bool { return t.ID == trip.ID })
	if i < 0 {
		return domain.TransitionResult{}, fmt.Errorf("service.TripService.ApplyTransition: %w", domain.ErrConflict)
	}
	acting := siblings[i]

	steps, err := lifecycle.ApplySeries(acting, siblings, cmd, now)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	changes := make([]repo.TripChange, len(steps))
	for j, st := range steps {
		changes[j] = repo.TripChange{Current: st.Before, Next: st.After}
	}

	committed, err := s.trips.ApplyBatch(ctx, changes)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("service.TripService.ApplyTransition: %w", err)
	}

	ids := make([]uuid.UUID, len(committed))
	for j, t := range committed {
		ids[j] = t.ID
		s.enqueue(t, steps[j].Events, cmd.Actor.UserID, now)
	}
	return domain.TransitionResult{NewStatus: committed[0].Status, AppliedTripIDs: ids}, nil
}

func (s *TripService) enqueue(committed domain.Trip, events []domain.EventType, by uuid.UUID, at time.Time) {
	if s.notifier == nil || len(events) == 0 {
		return
	}
	intents := make([]domain.Intent, len(events))
	for i, e := range events {
		intents[i] = domain.Intent{
			TripID:      committed.ID,
			EventType:   e,
			Status:      committed.Status,
			TriggeredBy: by,
			OccurredAt:  at,
		}
	}
	s.notifier.Enqueue(intents...)
}

// checkDriver reports domain.ErrValidation unless id is a known driver whose
// program covers scope.
func (s *TripService) checkDriver(ctx context.Context, id uuid.UUID, scope domain.Scope) error {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: driver %s does not exist", domain.ErrValidation, id)
	}
	if err != nil {
		return fmt.Errorf("driver lookup: %w", err)
	}
	if u.Role != domain.RoleDriver {
		return fmt.Errorf("%w: user %s is not a driver", domain.ErrValidation, id)
	}
	driver := domain.Identity{
		UserID:            u.ID,
		Role:              u.Role,
		ProgramID:         u.ProgramID,
		CorporateClientID: u.CorporateClientID,
	}
	if !hierarchy.ShouldReceive(driver, scope) {
		return fmt.Errorf("%w: driver %s does not serve program %s", domain.ErrValidation, id, scope.ProgramID)
	}
	return nil
}

func validateTrip(t domain.Trip) error {
	switch {
	case t.ProgramID == uuid.Nil:
		return fmt.Errorf("%w: program_id is required", domain.ErrValidation)
	case t.ClientID == uuid.Nil:
		return fmt.Errorf("%w: client_id is required", domain.ErrValidation)
	case !t.Kind.Valid():
		return fmt.Errorf("%w: unknown trip kind %q", domain.ErrValidation, t.Kind)
	case t.PickupAt.IsZero():
		return fmt.Errorf("%w: pickup_at is required", domain.ErrValidation)
	case t.ReturnAt != nil && t.ReturnAt.Before(t.PickupAt):
		return fmt.Errorf("%w: return_at must not be before pickup_at", domain.ErrValidation)
	case t.ReturnAt != nil && t.Kind != domain.KindRoundTrip:
		return fmt.Errorf("%w: return_at is only valid on round trips", domain.ErrValidation)
	}
	return nil
}

// canBook reports whether the actor may create trips in program. Drivers
// never book; everyone else needs the program in scope.
func canBook(actor domain.Identity, program domain.Program) error {
	scope := domain.Scope{ProgramID: program.ID, CorporateClientID: program.CorporateClientID}
	if actor.Role == domain.RoleDriver || !hierarchy.ShouldReceive(actor, scope) {
		return fmt.Errorf("%w: cannot book trips in program %s", domain.ErrUnauthorized, program.ID)
	}
	return nil
}

// canView extends scope visibility with the trip's own participants.
func canView(actor domain.Identity, t domain.Trip) bool {
	return hierarchy.ShouldReceive(actor, t.Scope()) ||
		t.IsAssignedTo(actor.UserID) ||
		t.CreatedBy == actor.UserID
}

func visibleTo(actor domain.Identity, status domain.Status) domain.TripFilter {
	f := domain.TripFilter{Status: status}
	switch actor.Role {
	case domain.RoleSuperAdmin:
	case domain.RoleCorporateAdmin:
		f.Restricted = actor.CorporateClientID == uuid.Nil
		f.CorporateClientID = actor.CorporateClientID
	case domain.RoleProgramAdmin, domain.RoleProgramUser, domain.RoleDriver:
		f.Restricted = true
		f.CorporateClientID = actor.CorporateClientID
		if actor.ProgramID != uuid.Nil {
			f.ProgramIDs = append(f.ProgramIDs, actor.ProgramID)
		}
		f.ProgramIDs = append(f.ProgramIDs, actor.AuthorizedPrograms...)
	case domain.RoleUnknown:
		f.Restricted = true
	}
	return f
}
