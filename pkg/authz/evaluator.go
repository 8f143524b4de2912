package authz

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny is the default outcome; any fault during evaluation degrades to it.
	Deny Decision = iota
	// Allow grants the requested operation.
	Allow
)

// Allowed reports whether the decision grants the operation.
func (d Decision) Allowed() bool { return d == Allow }

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// RoleView is the evaluator's read-only snapshot of a role.
type RoleView struct {
	ID          uuid.UUID
	Name        string
	Permissions []Permission
}

// RoleSource resolves role ids to snapshots. A nil result with a nil error
// means the role does not exist (or is soft-deleted) and is simply skipped.
type RoleSource interface {
	RoleByID(ctx context.Context, id uuid.UUID) (*RoleView, error)
}

// Evaluator turns a requirement and a principal into an Allow/Deny decision.
// It never returns an error: role resolution failures are logged and the
// decision degrades to Deny.
type Evaluator struct {
	roles   RoleSource
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEvaluator creates an evaluator backed by the given role source.
// A nil metrics handle disables instrumentation.
func NewEvaluator(roles RoleSource, logger *observability.Logger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		roles:   roles,
		logger:  logger.WithField("component", "authz"),
		metrics: metrics,
	}
}

// Evaluate decides whether the principal satisfies the requirement.
func (e *Evaluator) Evaluate(ctx context.Context, req Requirement, principal Principal) Decision {
	decision := e.evaluate(ctx, req, principal)
	e.metrics.RecordAuthzDecision(requirementKind(req), decision.String())
	return decision
}

func (e *Evaluator) evaluate(ctx context.Context, req Requirement, principal Principal) Decision {
	if !principal.Authenticated || len(principal.RoleIDs) == 0 {
		return Deny
	}

	switch r := req.(type) {
	case PermissionRequirement:
		return e.evaluatePermission(ctx, r, principal)
	case RoleRequirement:
		return e.evaluateRoles(ctx, r, principal)
	default:
		e.logger.WithField("requirement", requirementKind(req)).Warn("unknown requirement type, denying")
		return Deny
	}
}

func (e *Evaluator) evaluatePermission(ctx context.Context, req PermissionRequirement, principal Principal) Decision {
	for _, roleID := range principal.RoleIDs {
		role, err := e.roles.RoleByID(ctx, roleID)
		if err != nil {
			e.logger.WithError(err).WithField("role_id", roleID.String()).Warn("role lookup failed, denying")
			return Deny
		}
		if role == nil {
			continue
		}
		for _, held := range role.Permissions {
			if held.Matches(req.Permission) {
				return Allow
			}
		}
	}
	return Deny
}

func (e *Evaluator) evaluateRoles(ctx context.Context, req RoleRequirement, principal Principal) Decision {
	held := make(map[string]struct{}, len(principal.RoleIDs))
	for _, roleID := range principal.RoleIDs {
		role, err := e.roles.RoleByID(ctx, roleID)
		if err != nil {
			e.logger.WithError(err).WithField("role_id", roleID.String()).Warn("role lookup failed, denying")
			return Deny
		}
		if role == nil {
			continue
		}
		held[strings.ToLower(role.Name)] = struct{}{}
	}

	if req.RequireAll {
		// An empty name list is vacuously satisfied; callers are expected
		// to always name at least one role.
		for _, name := range req.Names {
			if _, ok := held[strings.ToLower(name)]; !ok {
				return Deny
			}
		}
		return Allow
	}

	for _, name := range req.Names {
		if _, ok := held[strings.ToLower(name)]; ok {
			return Allow
		}
	}
	return Deny
}

func requirementKind(req Requirement) string {
	switch req.(type) {
	case PermissionRequirement:
		return "permission"
	case RoleRequirement:
		return "role"
	default:
		return "unknown"
	}
}
