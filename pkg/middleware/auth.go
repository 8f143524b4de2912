package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/token"
)

const (
	// DefaultClaimsCacheSize bounds the verified-claims cache
	DefaultClaimsCacheSize = 4096
	// DefaultClaimsCacheTTL bounds how long a verified token skips
	// re-verification
	DefaultClaimsCacheTTL = time.Minute
)

// TokenValidator verifies an access token, returning nil claims for any
// invalid token. Satisfied by token.Service.
type TokenValidator interface {
	ValidateToken(tokenString string) *token.Claims
}

// Authenticator resolves bearer tokens into principals. Signature
// verification results are held in a bounded expirable LRU so the hot path
// does not re-verify every request; a cached entry is still checked against
// its own expiry, so the cache TTL can never outlive the token.
type Authenticator struct {
	tokens   TokenValidator
	cache    *expirable.LRU[string, *token.Claims]
	logger   *observability.Logger
	now      func() time.Time
	optional bool
}

// AuthenticatorOption customizes an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthClock replaces the authenticator clock. Intended for tests.
func WithAuthClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = now }
}

// WithOptionalAuth lets requests without an Authorization header through as
// the anonymous principal instead of rejecting them.
func WithOptionalAuth() AuthenticatorOption {
	return func(a *Authenticator) { a.optional = true }
}

// NewAuthenticator creates the authentication middleware.
func NewAuthenticator(tokens TokenValidator, logger *observability.Logger, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		tokens: tokens,
		cache:  expirable.NewLRU[string, *token.Claims](DefaultClaimsCacheSize, nil, DefaultClaimsCacheTTL),
		logger: logger.WithField("component", "auth_middleware"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler wraps an HTTP handler with bearer-token authentication.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if a.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		claims := a.resolve(parts[1])
		if claims == nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		principal := authz.Principal{
			UserID:        claims.UserID,
			RoleIDs:       claims.RoleIDs,
			Authenticated: true,
		}
		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(tokenString string) *token.Claims {
	if claims, ok := a.cache.Get(tokenString); ok {
		// The token may have expired while cached.
		if a.now().Before(claims.ExpiresAt) {
			return claims
		}
		a.cache.Remove(tokenString)
		return nil
	}

	claims := a.tokens.ValidateToken(tokenString)
	if claims == nil {
		return nil
	}
	a.cache.Add(tokenString, claims)
	return claims
}
