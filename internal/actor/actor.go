package actor

import "slices"

const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Actor identifies the authenticated party invoking a domain operation.
type Actor struct {
	UserID string
	Roles  []string
}

// New builds an actor for a regular user.
func New(userID string, roles ...string) Actor {
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	return Actor{UserID: userID, Roles: roles}
}

// System is the actor used for gateway-driven transitions.
func System() Actor {
	return Actor{UserID: "system", Roles: []string{RoleSystem}}
}

func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

func (a Actor) IsAdmin() bool { return a.HasRole(RoleAdmin) }

func (a Actor) IsSystem() bool { return a.HasRole(RoleSystem) }

// Is reports whether the actor is the given user.
func (a Actor) Is(userID string) bool {
	return a.UserID != "" && a.UserID == userID
}
