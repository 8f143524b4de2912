// Package authz implements the authorization core: resource/action/scope
// permissions with per-component wildcards, requirement types for protected
// operations, and an evaluator that resolves a principal's roles into an
// allow/deny decision.
//
// # Permissions
//
// A permission is an immutable "resource:action:scope" triple. Any component
// may be the wildcard "*". A held permission grants a required one when every
// component is either the wildcard or equal (case-insensitively, by
// normalization at construction):
//
//	held, _ := authz.ParsePermission("user:read:*")
//	required := authz.MustPermission("user", "read", "team")
//	held.Matches(required) // true
//
// # Requirements
//
// Protected operations declare what they demand once, as a value:
//
//	canManageRoles := authz.RequirePermission("role", "update", "*")
//	adminsOnly := authz.RequireAnyRole("admin", "owner")
//
// # Evaluation
//
// Evaluate never returns an error. Unauthenticated principals, principals
// without roles, and any fault while resolving roles all produce Deny; the
// system fails closed.
package authz
