package authz

import "github.com/google/uuid"

// Principal is the identity an authorization decision is made for. The zero
// value is the anonymous principal, which is denied by every requirement.
type Principal struct {
	UserID        uuid.UUID
	RoleIDs       []uuid.UUID
	Authenticated bool
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{}
}
