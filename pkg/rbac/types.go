package rbac

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/authz"
)

const (
	// MaxRoleNameLength bounds role names.
	MaxRoleNameLength = 100
	// MaxRoleDescriptionLength bounds role descriptions.
	MaxRoleDescriptionLength = 500
)

// Role is a named set of permissions. Role names are unique
// case-insensitively. Roles are soft-deleted: normal flows never remove the
// row, they set DeletedAt.
type Role struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions []authz.Permission `json:"permissions"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	DeletedAt   *time.Time         `json:"deleted_at,omitempty"`
}

// NewRole validates inputs and builds a role with a fresh id. The permission
// set is deduplicated; a role never holds the same triple twice.
func NewRole(name, description string, permissions []authz.Permission) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(name) > MaxRoleNameLength {
		return nil, &ValidationError{Field: "name", Message: "must be at most 100 characters"}
	}
	if len(description) > MaxRoleDescriptionLength {
		return nil, &ValidationError{Field: "description", Message: "must be at most 500 characters"}
	}

	now := time.Now().UTC()
	return &Role{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Permissions: dedupePermissions(permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AddPermission adds a permission if the role does not already hold it.
func (r *Role) AddPermission(p authz.Permission) {
	for _, held := range r.Permissions {
		if held == p {
			return
		}
	}
	r.Permissions = append(r.Permissions, p)
	r.UpdatedAt = time.Now().UTC()
}

// RemovePermission removes a permission when held.
func (r *Role) RemovePermission(p authz.Permission) {
	for i, held := range r.Permissions {
		if held == p {
			r.Permissions = append(r.Permissions[:i], r.Permissions[i+1:]...)
			r.UpdatedAt = time.Now().UTC()
			return
		}
	}
}

// Rename updates the role's name and description under the same validation
// rules as NewRole.
func (r *Role) Rename(name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(name) > MaxRoleNameLength {
		return &ValidationError{Field: "name", Message: "must be at most 100 characters"}
	}
	if len(description) > MaxRoleDescriptionLength {
		return &ValidationError{Field: "description", Message: "must be at most 500 characters"}
	}
	r.Name = name
	r.Description = description
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ReplacePermissions swaps the whole permission set.
func (r *Role) ReplacePermissions(permissions []authz.Permission) {
	r.Permissions = dedupePermissions(permissions)
	r.UpdatedAt = time.Now().UTC()
}

// Grants reports whether any held permission matches the required one.
func (r *Role) Grants(required authz.Permission) bool {
	for _, held := range r.Permissions {
		if held.Matches(required) {
			return true
		}
	}
	return false
}

// Deleted reports whether the role has been soft-deleted.
func (r *Role) Deleted() bool {
	return r.DeletedAt != nil
}

// User is an account that can authenticate and hold roles. Like roles,
// users are soft-deleted only.
type User struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	FullName     string      `json:"full_name"`
	PasswordHash string      `json:"password_hash"`
	RoleIDs      []uuid.UUID `json:"role_ids"`
	Disabled     bool        `json:"disabled"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	DeletedAt    *time.Time  `json:"deleted_at,omitempty"`
}

// NewUser validates inputs and builds a user with a fresh id. Emails are
// lowercase-normalized and unique case-insensitively.
func NewUser(email, fullName, passwordHash string, roleIDs []uuid.UUID) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	if passwordHash == "" {
		return nil, &ValidationError{Field: "password_hash", Message: "must not be empty"}
	}

	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		RoleIDs:      roleIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ReplaceRoles swaps the user's role set, dropping duplicate ids.
func (u *User) ReplaceRoles(roleIDs []uuid.UUID) {
	seen := make(map[uuid.UUID]struct{}, len(roleIDs))
	out := make([]uuid.UUID, 0, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	u.RoleIDs = out
	u.UpdatedAt = time.Now().UTC()
}

// Disable blocks the account from authenticating and refreshing tokens.
func (u *User) Disable() {
	u.Disabled = true
	u.UpdatedAt = time.Now().UTC()
}

// Deleted reports whether the user has been soft-deleted.
func (u *User) Deleted() bool {
	return u.DeletedAt != nil
}

func dedupePermissions(permissions []authz.Permission) []authz.Permission {
	seen := make(map[authz.Permission]struct{}, len(permissions))
	out := make([]authz.Permission, 0, len(permissions))
	for _, p := range permissions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
