// Package middleware provides the HTTP request guards: bearer-token
// authentication resolving tokens to principals, and requirement enforcement
// in front of protected handlers.
package middleware
