package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/password"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/token"
)

// UserHandlers handles user administration requests
type UserHandlers struct {
	users     rbac.UserStore
	tokens    *token.Service
	hasher    *password.Hasher
	evaluator *authz.Evaluator
	logger    *observability.Logger
}

// NewUserHandlers creates a new UserHandlers
func NewUserHandlers(users rbac.UserStore, tokens *token.Service, hasher *password.Hasher, evaluator *authz.Evaluator, logger *observability.Logger) *UserHandlers {
	return &UserHandlers{
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		evaluator: evaluator,
		logger:    logger.WithField("component", "user_handlers"),
	}
}

// RegisterRoutes registers user routes, each behind its permission
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	guard := func(action string, handler http.HandlerFunc) http.Handler {
		p := authz.MustPermission("user", action, "*")
		return middleware.RequirePermission(h.evaluator, p)(handler)
	}

	router.Handle("/users", guard("create", h.CreateUser)).Methods("POST")
	router.Handle("/users/{id}", guard("read", h.GetUser)).Methods("GET")
	router.Handle("/users/{id}/roles", guard("update", h.SetRoles)).Methods("PUT")
	router.Handle("/users/{id}/disable", guard("disable", h.DisableUser)).Methods("POST")
}

// CreateUser handles POST /users
func (h *UserHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user, err := rbac.NewUser(req.Email, req.FullName, hash, req.RoleIDs)
	if err != nil {
		httputil.WriteStoreError(w, err)
		return
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		h.logger.WithError(err).Debug("user creation failed")
		httputil.WriteStoreError(w, err)
		return
	}

	httputil.WriteCreated(w, newUserResponse(user))
}

// GetUser handles GET /users/{id}
func (h *UserHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, newUserResponse(user))
}

// SetRolesRequest is the PUT /users/{id}/roles payload
type SetRolesRequest struct {
	RoleIDs []uuid.UUID `json:"role_ids"`
}

// SetRoles handles PUT /users/{id}/roles, replacing the user's role set
func (h *UserHandlers) SetRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req SetRolesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteStoreError(w, err)
		return
	}

	user.ReplaceRoles(req.RoleIDs)
	if err := h.users.Update(r.Context(), user); err != nil {
		h.logger.WithError(err).Debug("user role update failed")
		httputil.WriteStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, newUserResponse(user))
}

// DisableUser handles POST /users/{id}/disable. Disabling an account also
// revokes its refresh tokens; outstanding access tokens age out on their own.
func (h *UserHandlers) DisableUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteStoreError(w, err)
		return
	}

	if !user.Disabled {
		user.Disable()
		if err := h.users.Update(r.Context(), user); err != nil {
			h.logger.WithError(err).Debug("user disable failed")
			httputil.WriteStoreError(w, err)
			return
		}
	}

	revoked, err := h.tokens.RevokeAllForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).Error("token revocation failed after disable")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, DisableUserResponse{
		User:          newUserResponse(user),
		TokensRevoked: revoked,
	})
}
