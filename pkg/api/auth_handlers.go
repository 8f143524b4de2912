package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/password"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/token"
)

// AuthHandlers handles login, token refresh, logout and session introspection
type AuthHandlers struct {
	users  rbac.UserStore
	tokens *token.Service
	hasher *password.Hasher
	logger *observability.Logger
}

// NewAuthHandlers creates a new AuthHandlers
func NewAuthHandlers(users rbac.UserStore, tokens *token.Service, hasher *password.Hasher, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		logger: logger.WithField("component", "auth_handlers"),
	}
}

// RegisterPublicRoutes registers the unauthenticated auth routes
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.Login).Methods("POST")
	router.HandleFunc("/auth/refresh", h.Refresh).Methods("POST")
	router.HandleFunc("/auth/logout", h.Logout).Methods("POST")
}

// RegisterProtectedRoutes registers auth routes that need a principal
func (h *AuthHandlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.Me).Methods("GET")
}

// Login handles POST /auth/login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			// Burn a bcrypt comparison so an unknown email takes as long
			// as a wrong password.
			h.hasher.Verify(req.Password, password.DummyHash)
			httputil.WriteUnauthorized(w, loginFailedMessage)
			return
		}
		h.logger.WithError(err).Error("user lookup failed during login")
		httputil.WriteInternalError(w)
		return
	}

	if !h.hasher.Verify(req.Password, user.PasswordHash) {
		httputil.WriteUnauthorized(w, loginFailedMessage)
		return
	}

	pair, err := h.tokens.GenerateTokens(r.Context(), user)
	if err != nil {
		if errors.Is(err, token.ErrUserDisabled) {
			httputil.WriteUnauthorized(w, loginFailedMessage)
			return
		}
		h.logger.WithError(err).Error("token issuance failed during login")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, pair)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pair, err := h.tokens.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrInvalidRefreshToken) {
			httputil.WriteUnauthorized(w, "invalid refresh token")
			return
		}
		h.logger.WithError(err).Error("token rotation failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, pair)
}

// Logout handles POST /auth/logout. It succeeds for any input; a logout with
// a token that was never issued is indistinguishable from a real one.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.tokens.RevokeTokens(r.Context(), req.RefreshToken); err != nil {
		h.logger.WithError(err).Error("token revocation failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"status": "logged out"})
}

// Me handles GET /auth/me
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal := contextkeys.PrincipalFrom(r.Context())
	if !principal.Authenticated {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	httputil.WriteSuccess(w, MeResponse{
		UserID:  principal.UserID,
		RoleIDs: principal.RoleIDs,
	})
}
