// Package hierarchy decides whether a user may observe events for a tenant
// scope. It is pure: no I/O, no logging, no shared state.
package hierarchy

import (
	"slices"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// ShouldReceive reports whether the viewer is authorised to observe an event
// scoped to event. Rules, first match wins:
//
//  1. super admins see everything;
//  2. corporate admins see events of their own corporate client, and nothing
//     without a corporate client attached;
//  3. program-level roles see events of their primary or authorised
//     programs, unless the event names a different corporate client;
//  4. everything else is denied.
func ShouldReceive(viewer domain.Identity, event domain.Scope) bool {
	switch viewer.Role {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleCorporateAdmin:
		if event.CorporateClientID == uuid.Nil {
			return false
		}
		return viewer.CorporateClientID == event.CorporateClientID
	case domain.RoleProgramAdmin, domain.RoleProgramUser, domain.RoleDriver:
		return programMatch(viewer, event)
	case domain.RoleUnknown:
		return false
	}
	return false
}

func programMatch(viewer domain.Identity, event domain.Scope) bool {
	if event.ProgramID == uuid.Nil {
		return false
	}
	if viewer.ProgramID != event.ProgramID && !slices.Contains(viewer.AuthorizedPrograms, event.ProgramID) {
		return false
	}
	// Program ids are only unique within a tenant as far as callers are
	// concerned, so a corporate client on the event must also match.
	if event.CorporateClientID != uuid.Nil && viewer.CorporateClientID != event.CorporateClientID {
		return false
	}
	return true
}

// CanAct reports whether a staff member may act on trips in scope. It is
// the visibility rule applied to writes.
func CanAct(actor domain.Identity, scope domain.Scope) bool {
	return actor.Role.IsStaff() && ShouldReceive(actor, scope)
}
