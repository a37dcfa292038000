package lifecycle

import (
	"time"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

type actorKind int

const (
	actorDriver actorKind = iota + 1
	actorStaff
)

func (a actorKind) String() string {
	switch a {
	case actorDriver:
		return "assigned driver"
	case actorStaff:
		return "staff in scope"
	}
	return "unknown"
}

type effectFunc func(t *domain.Trip, cmd domain.Command, now time.Time) ([]domain.EventType, error)

// Transition is one legal (status, action) pair.
type Transition struct {
	From   domain.Status
	Action domain.Action
	To     domain.Status
	Effect string

	actor  actorKind
	effect effectFunc
}

// Actor describes who may perform the transition.
func (t Transition) Actor() string {
	return t.actor.String()
}

type key struct {
	from   domain.Status
	action domain.Action
}

var transitions = []Transition{
	{domain.StatusOrder, domain.ActionAssign, domain.StatusOrder, "driver assigned, decline cleared", actorStaff, assign},
	{domain.StatusOrder, domain.ActionConfirm, domain.StatusScheduled, "series siblings confirmed atomically", actorDriver, confirm},
	{domain.StatusOrder, domain.ActionDecline, domain.StatusOrder, "driver cleared, decline recorded", actorDriver, decline},
	{domain.StatusOrder, domain.ActionCancel, domain.StatusCancelled, "terminal", actorStaff, cancel},
	{domain.StatusScheduled, domain.ActionStartTrip, domain.StatusInProgress, "pickup time; onboard time if client aboard", actorDriver, startTrip},
	{domain.StatusScheduled, domain.ActionCancel, domain.StatusCancelled, "terminal", actorStaff, cancel},
	{domain.StatusInProgress, domain.ActionArrive, domain.StatusInProgress, "round trip: dropoff time, optional wait start", actorDriver, arrive},
	{domain.StatusInProgress, domain.ActionClientReady, domain.StatusInProgress, "round trip: wait stop", actorDriver, clientReady},
	{domain.StatusInProgress, domain.ActionCompleteTrip, domain.StatusCompleted, "completion time; terminal", actorDriver, completeTrip},
	{domain.StatusInProgress, domain.ActionNoShow, domain.StatusNoShow, "terminal", actorDriver, noShow},
}

var index = func() map[key]Transition {
	m := make(map[key]Transition, len(transitions))
	for _, t := range transitions {
		m[key{t.From, t.Action}] = t
	}
	return m
}()

func lookup(from domain.Status, action domain.Action) (Transition, bool) {
	t, ok := index[key{from, action}]
	return t, ok
}

// Transitions returns the legal transitions in table order.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// Allowed reports whether action is legal from status.
func Allowed(from domain.Status, action domain.Action) bool {
	_, ok := lookup(from, action)
	return ok
}
