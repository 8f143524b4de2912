package rbac

import "errors"

var (
	// ErrNotFound is returned when a role or user does not exist or has
	// been soft-deleted.
	ErrNotFound = errors.New("entity not found")

	// ErrRoleNameTaken is returned when a role name (case-insensitively)
	// already exists.
	ErrRoleNameTaken = errors.New("role name already in use")

	// ErrEmailTaken is returned when a user email already exists.
	ErrEmailTaken = errors.New("email already in use")
)

// ValidationError describes a rejected entity field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}
