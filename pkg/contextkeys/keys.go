// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import (
	"context"

	"github.com/platinummonkey/warden/pkg/authz"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains authz.Principal
	// Set by: middleware.Authenticator after token validation
	// Required by: All protected API endpoints, authorization middleware
	// Type: authz.Principal
	PrincipalKey Key = "principal"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestID middleware
	// Used by: Logger, request tracing
	// Type: string
	RequestIDKey Key = "request_id"
)

// Helper functions for type-safe context operations

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, p authz.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFrom retrieves the principal from context. Requests that never
// passed the authenticator resolve to the anonymous principal.
func PrincipalFrom(ctx context.Context) authz.Principal {
	if p, ok := ctx.Value(PrincipalKey).(authz.Principal); ok {
		return p
	}
	return authz.Anonymous()
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
