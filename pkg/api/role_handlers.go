package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// RoleHandlers handles role administration requests
type RoleHandlers struct {
	roles     rbac.RoleStore
	registry  *authz.Registry
	evaluator *authz.Evaluator
	logger    *observability.Logger
}

// NewRoleHandlers creates a new RoleHandlers
func NewRoleHandlers(roles rbac.RoleStore, registry *authz.Registry, evaluator *authz.Evaluator, logger *observability.Logger) *RoleHandlers {
	return &RoleHandlers{
		roles:     roles,
		registry:  registry,
		evaluator: evaluator,
		logger:    logger.WithField("component", "role_handlers"),
	}
}

// RegisterRoutes registers role routes, each behind its permission
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	guard := func(action string, handler http.HandlerFunc) http.Handler {
		p := authz.MustPermission("role", action, "*")
		return middleware.RequirePermission(h.evaluator, p)(handler)
	}

	router.Handle("/roles", guard("create", h.CreateRole)).Methods("POST")
	router.Handle("/roles", guard("read", h.ListRoles)).Methods("GET")
	router.Handle("/roles/{id}", guard("read", h.GetRole)).Methods("GET")
	router.Handle("/roles/{id}", guard("update", h.UpdateRole)).Methods("PUT")
	router.Handle("/roles/{id}", guard("delete", h.DeleteRole)).Methods("DELETE")
	router.Handle("/roles/{id}/permissions", guard("update", h.SetPermissions)).Methods("PUT")
}

// CreateRole handles POST /roles
func (h *RoleHandlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	permissions, err := h.parsePermissions(req.Permissions)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	role, err := rbac.NewRole(req.Name, req.Description, permissions)
	if err != nil {
		httputil.WriteStoreError(w, err)
		return
	}

	if err := h.roles.Create(r.Context(), role); err != nil {
		h.logStoreError(err, "role creation failed")
		httputil.WriteStoreError(w, err)
		return
	}

	httputil.WriteCreated(w, newRoleResponse(role))
}

// ListRoles handles GET /roles
func (h *RoleHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}

	roles, err := h.roles.List(r.Context(), limit, offset)
	if err != nil {
		h.logStoreError(err, "role listing failed")
		httputil.WriteStoreError(w, err)
		return
	}
	total, err := h.roles.Count(r.Context())
	if err != nil {
		h.logStoreError(err, "role count failed")
		httputil.WriteStoreError(w, err)
		return
	}

	resp := RoleListResponse{
		Roles:  make([]RoleResponse, 0, len(roles)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, role := range roles {
		resp.Roles = append(resp.Roles, newRoleResponse(role))
	}
	httputil.WriteSuccess(w, resp)
}

// GetRole handles GET /roles/{id}
func (h *RoleHandlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.roles.GetByID(r.Context(), id)
	if err != nil {
		h.logStoreError(err, "role lookup failed")
		httputil.WriteStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(role))
}

// UpdateRole handles PUT /roles/{id}, updating name and description
func (h *RoleHandlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.roles.GetByID(r.Context(), id)
	if err != nil {
		h.logStoreError(err, "role lookup failed")
		httputil.WriteStoreError(w, err)
		return
	}

	if err := role.Rename(req.Name, req.Description); err != nil {
		httputil.WriteStoreError(w, err)
		return
	}
	if err := h.roles.Update(r.Context(), role); err != nil {
		h.logStoreError(err, "role update failed")
		httputil.WriteStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(role))
}

// DeleteRole handles DELETE /roles/{id}
func (h *RoleHandlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.roles.SoftDelete(r.Context(), id); err != nil {
		h.logStoreError(err, "role deletion failed")
		httputil.WriteStoreError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// SetPermissions handles PUT /roles/{id}/permissions, replacing the role's
// permission set wholesale
func (h *RoleHandlers) SetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req SetPermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	permissions, err := h.parsePermissions(req.Permissions)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.roles.SetPermissions(r.Context(), id, permissions); err != nil {
		h.logStoreError(err, "permission replacement failed")
		httputil.WriteStoreError(w, err)
		return
	}

	role, err := h.roles.GetByID(r.Context(), id)
	if err != nil {
		h.logStoreError(err, "role lookup failed")
		httputil.WriteStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(role))
}

// parsePermissions converts textual permissions, rejecting any that no
// feature area registered. A submitted wildcard is accepted when it covers
// at least one registered permission.
func (h *RoleHandlers) parsePermissions(raw []string) ([]authz.Permission, error) {
	permissions := make([]authz.Permission, 0, len(raw))
	for _, s := range raw {
		p, err := authz.ParsePermission(s)
		if err != nil {
			return nil, fmt.Errorf("invalid permission %q: %w", s, err)
		}
		if !h.grantable(p) {
			return nil, fmt.Errorf("unknown permission %q", s)
		}
		permissions = append(permissions, p)
	}
	return permissions, nil
}

func (h *RoleHandlers) grantable(p authz.Permission) bool {
	if h.registry.Contains(p) {
		return true
	}
	for _, known := range h.registry.Permissions() {
		if p.Matches(known) {
			return true
		}
	}
	return false
}

func (h *RoleHandlers) logStoreError(err error, message string) {
	h.logger.WithError(err).Debug(message)
}
