package authz

// Registry is the immutable set of permissions known to the system. Each
// feature area contributes its permission list through a plain function, and
// startup aggregates them once; there is no runtime discovery.
type Registry struct {
	known   map[Permission]struct{}
	ordered []Permission
}

// NewRegistry aggregates permission lists into a registry, dropping
// duplicates while preserving first-seen order.
func NewRegistry(lists ...[]Permission) *Registry {
	r := &Registry{known: make(map[Permission]struct{})}
	for _, list := range lists {
		for _, p := range list {
			if _, ok := r.known[p]; ok {
				continue
			}
			r.known[p] = struct{}{}
			r.ordered = append(r.ordered, p)
		}
	}
	return r
}

// Contains reports whether the exact permission triple is registered.
// Wildcard components are treated literally here; a registry entry
// "role:*:*" does not make "role:read:team" registered.
func (r *Registry) Contains(p Permission) bool {
	_, ok := r.known[p]
	return ok
}

// Permissions returns the registered permissions in registration order.
func (r *Registry) Permissions() []Permission {
	out := make([]Permission, len(r.ordered))
	copy(out, r.ordered)
	return out
}
