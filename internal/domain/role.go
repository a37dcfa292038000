package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of organisational roles. It is an int rather than a
// free-form string so that every switch over it can be reviewed when a role
// is added; ParseRole is the only way in from the outside.
type Role int

const (
	RoleUnknown Role = iota
	RoleSuperAdmin
	RoleCorporateAdmin
	RoleProgramAdmin
	RoleProgramUser
	RoleDriver
)

// Roles lists every assignable role.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleCorporateAdmin, RoleProgramAdmin, RoleProgramUser, RoleDriver}
}

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleSuperAdmin:
		return "super_admin"
	case RoleCorporateAdmin:
		return "corporate_admin"
	case RoleProgramAdmin:
		return "program_admin"
	case RoleProgramUser:
		return "program_user"
	case RoleDriver:
		return "driver"
	case RoleUnknown:
		return "unknown"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole maps a wire name to a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if r.String() == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// IsSuper reports whether the role has global visibility and may override
// driver-only actions.
func (r Role) IsSuper() bool {
	return r == RoleSuperAdmin
}

// IsStaff reports whether the role may perform dispatcher actions such as
// cancel and assign.
func (r Role) IsStaff() bool {
	switch r {
	case RoleSuperAdmin, RoleCorporateAdmin, RoleProgramAdmin:
		return true
	case RoleProgramUser, RoleDriver, RoleUnknown:
		return false
	}
	return false
}

// Identity is the authenticated user as supplied by the identity provider,
// including the organisational scope used for visibility checks.
type Identity struct {
	UserID             uuid.UUID   `json:"user_id"`
	Role               Role        `json:"role"`
	ProgramID          uuid.UUID   `json:"program_id"`
	AuthorizedPrograms []uuid.UUID `json:"authorized_programs,omitempty"`
	CorporateClientID  uuid.UUID   `json:"corporate_client_id"`
}
