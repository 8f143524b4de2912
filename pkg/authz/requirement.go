package authz

// Requirement describes what a protected operation demands of a principal.
// It is a closed union: PermissionRequirement and RoleRequirement are the
// only implementations, and the evaluator dispatches on the concrete type.
type Requirement interface {
	isRequirement()
}

// PermissionRequirement requires a single permission to be granted by at
// least one of the principal's roles.
type PermissionRequirement struct {
	Permission Permission
}

func (PermissionRequirement) isRequirement() {}

// RoleRequirement requires the principal to hold roles by name. With
// RequireAll set, every named role must be held; otherwise any one of them
// suffices. Role names compare case-insensitively.
type RoleRequirement struct {
	Names      []string
	RequireAll bool
}

func (RoleRequirement) isRequirement() {}

// RequirePermission builds a PermissionRequirement; it panics on an invalid
// triple since requirements are declared once per protected operation.
func RequirePermission(resource, action, scope string) PermissionRequirement {
	return PermissionRequirement{Permission: MustPermission(resource, action, scope)}
}

// RequireAnyRole builds a RoleRequirement satisfied by any of the named roles.
func RequireAnyRole(names ...string) RoleRequirement {
	return RoleRequirement{Names: names}
}

// RequireAllRoles builds a RoleRequirement satisfied only when the principal
// holds every named role.
func RequireAllRoles(names ...string) RoleRequirement {
	return RoleRequirement{Names: names, RequireAll: true}
}
