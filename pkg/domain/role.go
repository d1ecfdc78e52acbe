package domain

import dErrors "dropin/pkg/domain-errors"

// Role is the authorization tag the identity directory attaches to a user.
// Invariant: one of RoleMember or RoleOrganizer.
type Role string

const (
	RoleMember    Role = "member"
	RoleOrganizer Role = "organizer"
)

// ParseRole constructs a Role from external input (seed files, storage).
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return r == RoleMember || r == RoleOrganizer
}

func (r Role) IsOrganizer() bool {
	return r == RoleOrganizer
}

func (r Role) String() string {
	return string(r)
}

// Identity is what the directory hands the engine: who is asking and in
// which role. The engine reads it and never mutates it.
type Identity struct {
	UserID UserID
	Role   Role
}
