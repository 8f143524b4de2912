package api

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/password"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/token"
)

// memRoleStore is an in-memory rbac.RoleStore for handler tests.
type memRoleStore struct {
	mu    sync.Mutex
	roles map[uuid.UUID]*rbac.Role
}

func newMemRoleStore() *memRoleStore {
	return &memRoleStore{roles: make(map[uuid.UUID]*rbac.Role)}
}

func (s *memRoleStore) GetByID(ctx context.Context, id uuid.UUID) (*rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok || role.Deleted() {
		return nil, rbac.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (s *memRoleStore) GetByName(ctx context.Context, name string) (*rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if strings.EqualFold(role.Name, name) && !role.Deleted() {
			cp := *role
			return &cp, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (s *memRoleStore) List(ctx context.Context, limit, offset int) ([]*rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*rbac.Role
	for _, role := range s.roles {
		if !role.Deleted() {
			cp := *role
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memRoleStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.GetByName(ctx, name)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (s *memRoleStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, role := range s.roles {
		if !role.Deleted() {
			n++
		}
	}
	return n, nil
}

func (s *memRoleStore) Create(ctx context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, role.Name) && !existing.Deleted() {
			return rbac.ErrRoleNameTaken
		}
	}
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *memRoleStore) Update(ctx context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.roles[role.ID]; !ok || existing.Deleted() {
		return rbac.ErrNotFound
	}
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *memRoleStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok || role.Deleted() {
		return rbac.ErrNotFound
	}
	now := time.Now().UTC()
	role.DeletedAt = &now
	return nil
}

func (s *memRoleStore) SetPermissions(ctx context.Context, id uuid.UUID, permissions []authz.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok || role.Deleted() {
		return rbac.ErrNotFound
	}
	role.ReplacePermissions(permissions)
	return nil
}

func (s *memRoleStore) GetPermissions(ctx context.Context, id uuid.UUID) ([]authz.Permission, error) {
	role, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return role.Permissions, nil
}

// memUserStore is an in-memory rbac.UserStore for handler tests.
type memUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*rbac.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[uuid.UUID]*rbac.User)}
}

func (s *memUserStore) GetByID(ctx context.Context, id uuid.UUID) (*rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || user.Deleted() {
		return nil, rbac.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *memUserStore) GetByEmail(ctx context.Context, email string) (*rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) && !user.Deleted() {
			cp := *user
			return &cp, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (s *memUserStore) List(ctx context.Context, limit, offset int) ([]*rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*rbac.User
	for _, user := range s.users {
		if !user.Deleted() {
			cp := *user
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memUserStore) Exists(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (s *memUserStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, user := range s.users {
		if !user.Deleted() {
			n++
		}
	}
	return n, nil
}

func (s *memUserStore) Create(ctx context.Context, user *rbac.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) && !existing.Deleted() {
			return rbac.ErrEmailTaken
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memUserStore) Update(ctx context.Context, user *rbac.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; !ok || existing.Deleted() {
		return rbac.ErrNotFound
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memUserStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || user.Deleted() {
		return rbac.ErrNotFound
	}
	now := time.Now().UTC()
	user.DeletedAt = &now
	return nil
}

// memTokenStore is an in-memory token.Store for handler tests.
type memTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*token.RefreshToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{byHash: make(map[string]*token.RefreshToken)}
}

func (s *memTokenStore) Create(ctx context.Context, t *token.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[t.TokenHash]; ok {
		return token.ErrDuplicateToken
	}
	cp := *t
	s.byHash[t.TokenHash] = &cp
	return nil
}

func (s *memTokenStore) GetByHash(ctx context.Context, hash string) (*token.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTokenStore) RevokeActive(ctx context.Context, hash string, now time.Time) (*token.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok || !t.Active(now) {
		return nil, token.ErrTokenNotFound
	}
	revokedAt := now
	t.RevokedAt = &revokedAt
	cp := *t
	return &cp, nil
}

func (s *memTokenStore) Revoke(ctx context.Context, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byHash[hash]; ok && !t.Revoked() {
		revokedAt := now
		t.RevokedAt = &revokedAt
	}
	return nil
}

func (s *memTokenStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.byHash {
		if t.UserID == userID && t.Active(now) {
			revokedAt := now
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (s *memTokenStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, t := range s.byHash {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}

// env is a fully wired in-memory server for tests.
type env struct {
	server *Server
	roles  *memRoleStore
	users  *memUserStore
	hasher *password.Hasher
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	roles := newMemRoleStore()
	users := newMemUserStore()
	hasher := password.NewHasher(bcrypt.MinCost)

	tokens, err := token.NewService(token.Config{
		Secret: []byte("test-signing-secret"),
	}, newMemTokenStore(), users, logger, nil)
	require.NoError(t, err)

	registry := authz.NewRegistry(rbac.Permissions(), token.Permissions())
	evaluator := authz.NewEvaluator(rbac.NewRoleSource(roles), logger, nil)

	e := &env{
		roles:  roles,
		users:  users,
		hasher: hasher,
	}
	e.server = NewServer(Deps{
		Roles:     roles,
		Users:     users,
		Tokens:    tokens,
		Hasher:    hasher,
		Registry:  registry,
		Evaluator: evaluator,
		Logger:    logger,
		Metrics:   nil,
	})
	return e
}

func jsonBody(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// seedUser creates a user with the given password and role ids.
func (e *env) seedUser(t *testing.T, email, plaintext string, roleIDs ...uuid.UUID) *rbac.User {
	t.Helper()
	hash, err := e.hasher.Hash(plaintext)
	require.NoError(t, err)
	user, err := rbac.NewUser(email, "Test User", hash, roleIDs)
	require.NoError(t, err)
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// seedRole creates a role holding the given permissions.
func (e *env) seedRole(t *testing.T, name string, permissions ...authz.Permission) *rbac.Role {
	t.Helper()
	role, err := rbac.NewRole(name, "", permissions)
	require.NoError(t, err)
	require.NoError(t, e.roles.Create(context.Background(), role))
	return role
}
