package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/contextkeys"
)

type staticRoleSource struct {
	roles map[uuid.UUID]*authz.RoleView
}

func (s *staticRoleSource) RoleByID(ctx context.Context, id uuid.UUID) (*authz.RoleView, error) {
	return s.roles[id], nil
}

func TestRequire(t *testing.T) {
	adminRoleID := uuid.New()
	viewerRoleID := uuid.New()
	source := &staticRoleSource{roles: map[uuid.UUID]*authz.RoleView{
		adminRoleID: {
			ID:   adminRoleID,
			Name: "admin",
			Permissions: []authz.Permission{
				authz.MustPermission("role", "*", "*"),
			},
		},
		viewerRoleID: {
			ID:   viewerRoleID,
			Name: "viewer",
			Permissions: []authz.Permission{
				authz.MustPermission("role", "read", "*"),
			},
		},
	}}
	evaluator := authz.NewEvaluator(source, testLogger(), nil)

	requirement := authz.RequirePermission("role", "delete", "*")
	handler := Require(evaluator, requirement)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(principal *authz.Principal) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/roles/123", nil)
		if principal != nil {
			req = req.WithContext(contextkeys.WithPrincipal(req.Context(), *principal))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("no principal", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(nil).Code)
	})

	t.Run("permitted role", func(t *testing.T) {
		p := &authz.Principal{UserID: uuid.New(), RoleIDs: []uuid.UUID{adminRoleID}, Authenticated: true}
		assert.Equal(t, http.StatusOK, serve(p).Code)
	})

	t.Run("insufficient role", func(t *testing.T) {
		p := &authz.Principal{UserID: uuid.New(), RoleIDs: []uuid.UUID{viewerRoleID}, Authenticated: true}
		assert.Equal(t, http.StatusForbidden, serve(p).Code)
	})

	t.Run("unauthenticated principal", func(t *testing.T) {
		p := &authz.Principal{UserID: uuid.New(), RoleIDs: []uuid.UUID{adminRoleID}}
		assert.Equal(t, http.StatusUnauthorized, serve(p).Code)
	})
}

func TestRequirePermissionShorthand(t *testing.T) {
	roleID := uuid.New()
	source := &staticRoleSource{roles: map[uuid.UUID]*authz.RoleView{
		roleID: {
			ID:   roleID,
			Name: "editor",
			Permissions: []authz.Permission{
				authz.MustPermission("role", "update", "*"),
			},
		},
	}}
	evaluator := authz.NewEvaluator(source, testLogger(), nil)

	handler := RequirePermission(evaluator, authz.MustPermission("role", "update", "*"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	serve := func(p authz.Principal) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/roles/123", nil)
		req = req.WithContext(contextkeys.WithPrincipal(req.Context(), p))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	granted := authz.Principal{UserID: uuid.New(), RoleIDs: []uuid.UUID{roleID}, Authenticated: true}
	assert.Equal(t, http.StatusOK, serve(granted).Code)

	denied := authz.Principal{UserID: uuid.New(), Authenticated: true}
	assert.Equal(t, http.StatusForbidden, serve(denied).Code)
}
