package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/authz"
)

// RoleSource adapts a RoleStore to the evaluator's read-only view. Missing
// and soft-deleted roles resolve to nil so the evaluator skips them instead
// of failing the whole check.
type RoleSource struct {
	roles RoleStore
}

// NewRoleSource creates the adapter; in production the RoleStore is the
// cached store, so evaluations hit redis before postgres.
func NewRoleSource(roles RoleStore) *RoleSource {
	return &RoleSource{roles: roles}
}

// RoleByID implements authz.RoleSource.
func (s *RoleSource) RoleByID(ctx context.Context, id uuid.UUID) (*authz.RoleView, error) {
	role, err := s.roles.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if role.Deleted() {
		return nil, nil
	}
	return &authz.RoleView{
		ID:          role.ID,
		Name:        role.Name,
		Permissions: role.Permissions,
	}, nil
}

// Permissions returns the permission set this feature area contributes to
// the static registry.
func Permissions() []authz.Permission {
	return []authz.Permission{
		authz.MustPermission("role", "create", "*"),
		authz.MustPermission("role", "read", "*"),
		authz.MustPermission("role", "update", "*"),
		authz.MustPermission("role", "delete", "*"),
		authz.MustPermission("user", "create", "*"),
		authz.MustPermission("user", "read", "team"),
		authz.MustPermission("user", "read", "organization"),
		authz.MustPermission("user", "update", "*"),
		authz.MustPermission("user", "disable", "*"),
	}
}
