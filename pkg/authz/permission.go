package authz

import (
	"fmt"
	"strings"
)

// Wildcard matches any value when it appears as a permission component.
const Wildcard = "*"

// Permission is an immutable resource/action/scope triple. Components are
// lowercase-normalized at construction, so two permissions describing the
// same grant always compare equal. The zero value is not a valid permission;
// use NewPermission or ParsePermission.
type Permission struct {
	resource string
	action   string
	scope    string
}

// NewPermission builds a permission from its three components. Each component
// is trimmed and lowercased; an empty component is rejected.
func NewPermission(resource, action, scope string) (Permission, error) {
	resource = normalizeComponent(resource)
	action = normalizeComponent(action)
	scope = normalizeComponent(scope)

	if resource == "" {
		return Permission{}, fmt.Errorf("permission resource must not be empty")
	}
	if action == "" {
		return Permission{}, fmt.Errorf("permission action must not be empty")
	}
	if scope == "" {
		return Permission{}, fmt.Errorf("permission scope must not be empty")
	}

	return Permission{resource: resource, action: action, scope: scope}, nil
}

// MustPermission is NewPermission for static permission declarations; it
// panics on invalid input.
func MustPermission(resource, action, scope string) Permission {
	p, err := NewPermission(resource, action, scope)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePermission parses the textual "resource:action:scope" form. The
// two-segment form "resource:action" is accepted with the scope defaulting
// to the wildcard.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		return NewPermission(parts[0], parts[1], Wildcard)
	case 3:
		return NewPermission(parts[0], parts[1], parts[2])
	default:
		return Permission{}, fmt.Errorf("invalid permission %q: expected resource:action[:scope]", s)
	}
}

// Resource returns the resource component.
func (p Permission) Resource() string { return p.resource }

// Action returns the action component.
func (p Permission) Action() string { return p.action }

// Scope returns the scope component.
func (p Permission) Scope() string { return p.scope }

// String returns the canonical "resource:action:scope" form.
func (p Permission) String() string {
	return p.resource + ":" + p.action + ":" + p.scope
}

// Matches reports whether this (held) permission grants the required one.
// Every component must either be the wildcard or equal the required
// component. Components were lowercased at construction, so comparison is
// effectively case-insensitive.
func (p Permission) Matches(required Permission) bool {
	return componentMatches(p.resource, required.resource) &&
		componentMatches(p.action, required.action) &&
		componentMatches(p.scope, required.scope)
}

// MarshalJSON encodes the permission in its textual form.
func (p Permission) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON decodes the textual form produced by MarshalJSON.
func (p *Permission) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func componentMatches(held, required string) bool {
	return held == Wildcard || held == required
}

func normalizeComponent(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
