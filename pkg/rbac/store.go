package rbac

import (
	"context"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/authz"
)

// RoleStore is the persistence contract for roles. Lookups exclude
// soft-deleted rows and return ErrNotFound on a miss; name collisions
// surface as ErrRoleNameTaken.
type RoleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context, limit, offset int) ([]*Role, error)
	Exists(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	SetPermissions(ctx context.Context, id uuid.UUID, permissions []authz.Permission) error
	GetPermissions(ctx context.Context, id uuid.UUID) ([]authz.Permission, error)
}

// UserStore is the persistence contract for users, mirroring RoleStore.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
	Exists(ctx context.Context, email string) (bool, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}
