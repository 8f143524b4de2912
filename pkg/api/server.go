package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/password"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/token"
)

// maxRequestBody bounds request bodies; no legitimate payload here is large.
const maxRequestBody = 1 << 20

// Server is the HTTP API surface: auth flows, role and user administration.
type Server struct {
	router *mux.Router
}

// Deps carries everything the server wires together.
type Deps struct {
	Roles     rbac.RoleStore
	Users     rbac.UserStore
	Tokens    *token.Service
	Hasher    *password.Hasher
	Registry  *authz.Registry
	Evaluator *authz.Evaluator
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// NewServer creates the API server and mounts all routes.
func NewServer(deps Deps) *Server {
	router := mux.NewRouter()

	base := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.LoggingMiddleware(deps.Logger, deps.Metrics),
		httputil.MaxBytesMiddleware(maxRequestBody),
	)
	router.Use(base)

	authHandlers := NewAuthHandlers(deps.Users, deps.Tokens, deps.Hasher, deps.Logger)
	authHandlers.RegisterPublicRoutes(router)

	authenticator := middleware.NewAuthenticator(deps.Tokens, deps.Logger)
	protected := router.NewRoute().Subrouter()
	protected.Use(authenticator.Handler)

	authHandlers.RegisterProtectedRoutes(protected)
	NewRoleHandlers(deps.Roles, deps.Registry, deps.Evaluator, deps.Logger).RegisterRoutes(protected)
	NewUserHandlers(deps.Users, deps.Tokens, deps.Hasher, deps.Evaluator, deps.Logger).RegisterRoutes(protected)

	return &Server{router: router}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
