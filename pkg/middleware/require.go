package middleware

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/httputil"
)

// Require creates middleware enforcing a requirement against the request's
// principal. Unauthenticated requests get 401; authenticated but denied
// requests get 403.
func Require(evaluator *authz.Evaluator, req authz.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := contextkeys.PrincipalFrom(r.Context())
			if !principal.Authenticated {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if !evaluator.Evaluate(r.Context(), req, principal).Allowed() {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission is shorthand for Require with a permission requirement.
func RequirePermission(evaluator *authz.Evaluator, p authz.Permission) func(http.Handler) http.Handler {
	return Require(evaluator, authz.PermissionRequirement{Permission: p})
}
