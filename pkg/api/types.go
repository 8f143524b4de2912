package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// loginFailedMessage is the single message returned for every login failure
// mode, so responses do not reveal whether an email is registered.
const loginFailedMessage = "invalid email or password"

// LoginRequest is the POST /auth/login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the POST /auth/refresh and /auth/logout payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// MeResponse describes the authenticated principal
type MeResponse struct {
	UserID  uuid.UUID   `json:"user_id"`
	RoleIDs []uuid.UUID `json:"role_ids"`
}

// CreateRoleRequest is the POST /roles payload; permissions use the textual
// "resource:action:scope" form, scope defaulting to "*"
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest is the PUT /roles/{id} payload
type UpdateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SetPermissionsRequest is the PUT /roles/{id}/permissions payload
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// RoleResponse is the wire form of a role
type RoleResponse struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions []authz.Permission `json:"permissions"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func newRoleResponse(role *rbac.Role) RoleResponse {
	return RoleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

// RoleListResponse is the GET /roles payload
type RoleListResponse struct {
	Roles  []RoleResponse `json:"roles"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// CreateUserRequest is the POST /users payload
type CreateUserRequest struct {
	Email    string      `json:"email"`
	FullName string      `json:"full_name"`
	Password string      `json:"password"`
	RoleIDs  []uuid.UUID `json:"role_ids"`
}

// UserResponse is the wire form of a user. The password hash never crosses
// the API boundary.
type UserResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	FullName  string      `json:"full_name"`
	RoleIDs   []uuid.UUID `json:"role_ids"`
	Disabled  bool        `json:"disabled"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newUserResponse(user *rbac.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		RoleIDs:   user.RoleIDs,
		Disabled:  user.Disabled,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

// DisableUserResponse reports the side effects of disabling an account
type DisableUserResponse struct {
	User          UserResponse `json:"user"`
	TokensRevoked int64        `json:"tokens_revoked"`
}
