package authz

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/observability"
)

// fakeRoleSource serves fixed role snapshots and can be forced to fail.
type fakeRoleSource struct {
	roles map[uuid.UUID]*RoleView
	err   error
}

func (f *fakeRoleSource) RoleByID(_ context.Context, id uuid.UUID) (*RoleView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[id], nil
}

func testEvaluator(src RoleSource) *Evaluator {
	return NewEvaluator(src, observability.NewLogger(observability.ErrorLevel, io.Discard), nil)
}

func managerFixture(t *testing.T) (*fakeRoleSource, Principal) {
	t.Helper()
	roleID := uuid.New()
	src := &fakeRoleSource{roles: map[uuid.UUID]*RoleView{
		roleID: {
			ID:          roleID,
			Name:        "Manager",
			Permissions: []Permission{MustPermission("user", "read", "team")},
		},
	}}
	principal := Principal{UserID: uuid.New(), RoleIDs: []uuid.UUID{roleID}, Authenticated: true}
	return src, principal
}

func TestEvaluate_PermissionRequirement(t *testing.T) {
	src, principal := managerFixture(t)
	e := testEvaluator(src)
	ctx := context.Background()

	if d := e.Evaluate(ctx, RequirePermission("user", "read", "team"), principal); !d.Allowed() {
		t.Error("expected Allow for held permission")
	}
	if d := e.Evaluate(ctx, RequirePermission("user", "read", "organization"), principal); d.Allowed() {
		t.Error("expected Deny for wider scope than held")
	}
	if d := e.Evaluate(ctx, RequirePermission("role", "read", "team"), principal); d.Allowed() {
		t.Error("expected Deny for unrelated resource")
	}
}

func TestEvaluate_UnauthenticatedDenied(t *testing.T) {
	src, principal := managerFixture(t)
	e := testEvaluator(src)
	ctx := context.Background()
	req := RequirePermission("user", "read", "team")

	if d := e.Evaluate(ctx, req, Anonymous()); d.Allowed() {
		t.Error("expected Deny for anonymous principal")
	}

	principal.Authenticated = false
	if d := e.Evaluate(ctx, req, principal); d.Allowed() {
		t.Error("expected Deny for unauthenticated principal")
	}

	noRoles := Principal{UserID: uuid.New(), Authenticated: true}
	if d := e.Evaluate(ctx, req, noRoles); d.Allowed() {
		t.Error("expected Deny for principal without roles")
	}
}

func TestEvaluate_FailsClosedOnStoreError(t *testing.T) {
	_, principal := managerFixture(t)
	e := testEvaluator(&fakeRoleSource{err: errors.New("store unavailable")})
	ctx := context.Background()

	if d := e.Evaluate(ctx, RequirePermission("user", "read", "team"), principal); d.Allowed() {
		t.Error("expected Deny when role resolution fails")
	}
	if d := e.Evaluate(ctx, RequireAnyRole("Manager"), principal); d.Allowed() {
		t.Error("expected Deny when role resolution fails for role requirement")
	}
}

func TestEvaluate_SkipsMissingRoles(t *testing.T) {
	src, principal := managerFixture(t)
	// A dangling role id (deleted role) must be skipped, not fail the check.
	principal.RoleIDs = append([]uuid.UUID{uuid.New()}, principal.RoleIDs...)
	e := testEvaluator(src)

	if d := e.Evaluate(context.Background(), RequirePermission("user", "read", "team"), principal); !d.Allowed() {
		t.Error("expected Allow despite dangling role id")
	}
}

func TestEvaluate_RoleRequirement(t *testing.T) {
	adminID, viewerID := uuid.New(), uuid.New()
	src := &fakeRoleSource{roles: map[uuid.UUID]*RoleView{
		adminID:  {ID: adminID, Name: "Admin"},
		viewerID: {ID: viewerID, Name: "Viewer"},
	}}
	e := testEvaluator(src)
	ctx := context.Background()
	principal := Principal{UserID: uuid.New(), RoleIDs: []uuid.UUID{adminID, viewerID}, Authenticated: true}

	// Any-of semantics, case-insensitive names.
	if d := e.Evaluate(ctx, RequireAnyRole("admin"), principal); !d.Allowed() {
		t.Error("expected Allow for held role name")
	}
	if d := e.Evaluate(ctx, RequireAnyRole("auditor", "VIEWER"), principal); !d.Allowed() {
		t.Error("expected Allow when any required role is held")
	}
	if d := e.Evaluate(ctx, RequireAnyRole("auditor"), principal); d.Allowed() {
		t.Error("expected Deny for role not held")
	}

	// All-of semantics.
	if d := e.Evaluate(ctx, RequireAllRoles("Admin", "Viewer"), principal); !d.Allowed() {
		t.Error("expected Allow when all required roles are held")
	}
	if d := e.Evaluate(ctx, RequireAllRoles("Admin", "Auditor"), principal); d.Allowed() {
		t.Error("expected Deny when a required role is missing")
	}
}

func TestEvaluate_EmptyRequireAllIsVacuouslyAllowed(t *testing.T) {
	src, principal := managerFixture(t)
	e := testEvaluator(src)

	if d := e.Evaluate(context.Background(), RequireAllRoles(), principal); !d.Allowed() {
		t.Error("expected Allow for empty require-all role list")
	}
}
