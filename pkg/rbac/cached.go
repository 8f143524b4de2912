package rbac

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/observability"
)

// TTLConfig holds the cache TTL tiers. Shorter TTLs where staleness is more
// visible (list views), longer where it is cheap (counts).
type TTLConfig struct {
	Entity    time.Duration
	List      time.Duration
	Aggregate time.Duration
}

// DefaultTTLs returns the standard TTL tiers.
func DefaultTTLs() TTLConfig {
	return TTLConfig{
		Entity:    15 * time.Minute,
		List:      5 * time.Minute,
		Aggregate: 30 * time.Minute,
	}
}

// cacheOps holds the cache plumbing shared by the cached stores: read/populate
// with hit/miss accounting, and failure handling. Cache failures are logged
// and swallowed; the persistent store is the single source of truth and a
// lost invalidation is bounded by the TTL.
type cacheOps struct {
	cache     *cache.Client
	namespace string
	logger    *observability.Logger
	metrics   *observability.Metrics
}

func newCacheOps(c *cache.Client, namespace string, logger *observability.Logger, metrics *observability.Metrics) cacheOps {
	return cacheOps{
		cache:     c,
		namespace: namespace,
		logger:    logger.WithField("component", "rbac.cache"),
		metrics:   metrics,
	}
}

func (o *cacheOps) cacheHit(ctx context.Context, key string, dest interface{}) bool {
	found, err := o.cache.Get(ctx, key, dest)
	if err != nil {
		o.cacheFailure(err, "read")
		o.metrics.RecordCacheMiss(o.namespace)
		return false
	}
	if found {
		o.metrics.RecordCacheHit(o.namespace)
		return true
	}
	o.metrics.RecordCacheMiss(o.namespace)
	return false
}

func (o *cacheOps) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration, tag string) {
	if err := o.cache.Set(ctx, key, value, ttl); err != nil {
		o.cacheFailure(err, "populate")
		return
	}
	if tag != "" {
		if err := o.cache.Tag(ctx, tag, ttl, key); err != nil {
			o.cacheFailure(err, "tag")
		}
	}
}

func (o *cacheOps) cacheFailure(err error, op string) {
	o.metrics.RecordCacheError()
	o.logger.WithError(err).Debugf("cache %s failed", op)
}

// CachedRoleStore is a cache-aside wrapper around a RoleStore. Reads go
// through the cache; every mutation writes through to the persistent store
// first and only then invalidates.
type CachedRoleStore struct {
	store RoleStore
	ttl   TTLConfig
	cacheOps
}

// NewCachedRoleStore wraps a role store with the cache layer.
func NewCachedRoleStore(store RoleStore, c *cache.Client, ttl TTLConfig, logger *observability.Logger, metrics *observability.Metrics) *CachedRoleStore {
	return &CachedRoleStore{
		store:    store,
		ttl:      ttl,
		cacheOps: newCacheOps(c, "roles", logger, metrics),
	}
}

func roleIDKey(id uuid.UUID) string    { return "roles:id:" + id.String() }
func roleNameKey(name string) string   { return "roles:name:" + strings.ToLower(name) }
func roleExistsKey(name string) string { return "roles:exists:" + strings.ToLower(name) }
func rolePermsKey(id uuid.UUID) string { return "roles:perms:" + id.String() }
func roleTag(id uuid.UUID) string      { return "role:" + id.String() }
func roleListKey(limit, offset int) string {
	return fmt.Sprintf("roles:list:%d:%d", limit, offset)
}

const (
	roleCountKey    = "roles:count"
	roleListPattern = "roles:list:*"
)

// GetByID reads through the cache.
func (s *CachedRoleStore) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	key := roleIDKey(id)
	var cached Role
	if s.cacheHit(ctx, key, &cached) {
		return &cached, nil
	}

	role, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, role, s.ttl.Entity, roleTag(role.ID))
	return role, nil
}

// GetByName reads through the cache by natural key.
func (s *CachedRoleStore) GetByName(ctx context.Context, name string) (*Role, error) {
	key := roleNameKey(name)
	var cached Role
	if s.cacheHit(ctx, key, &cached) {
		return &cached, nil
	}

	role, err := s.store.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, role, s.ttl.Entity, roleTag(role.ID))
	return role, nil
}

// List reads a page through the cache.
func (s *CachedRoleStore) List(ctx context.Context, limit, offset int) ([]*Role, error) {
	key := roleListKey(limit, offset)
	var cached []*Role
	if s.cacheHit(ctx, key, &cached) {
		return cached, nil
	}

	roles, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		s.cacheSet(ctx, key, roles, s.ttl.List, "")
	}
	return roles, nil
}

// Exists reads the existence check through the cache.
func (s *CachedRoleStore) Exists(ctx context.Context, name string) (bool, error) {
	key := roleExistsKey(name)
	var cached bool
	if s.cacheHit(ctx, key, &cached) {
		return cached, nil
	}

	exists, err := s.store.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		s.cacheSet(ctx, key, exists, s.ttl.Entity, "")
	}
	return exists, nil
}

// Count reads the aggregate count through the cache.
func (s *CachedRoleStore) Count(ctx context.Context) (int64, error) {
	var cached int64
	if s.cacheHit(ctx, roleCountKey, &cached) {
		return cached, nil
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	s.cacheSet(ctx, roleCountKey, count, s.ttl.Aggregate, "")
	return count, nil
}

// Create writes through and invalidates.
func (s *CachedRoleStore) Create(ctx context.Context, role *Role) error {
	if err := s.store.Create(ctx, role); err != nil {
		return err
	}
	s.invalidate(ctx, role.ID, role.Name)
	return nil
}

// Update writes through and invalidates.
func (s *CachedRoleStore) Update(ctx context.Context, role *Role) error {
	if err := s.store.Update(ctx, role); err != nil {
		return err
	}
	s.invalidate(ctx, role.ID, role.Name)
	return nil
}

// SoftDelete writes through and invalidates. The name is resolved up front
// so the name and existence entries are swept too; the delete flips the
// existence answer, which the id tag alone does not cover.
func (s *CachedRoleStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	name := ""
	if role, err := s.store.GetByID(ctx, id); err == nil {
		name = role.Name
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id, name)
	return nil
}

// SetPermissions writes through and invalidates.
func (s *CachedRoleStore) SetPermissions(ctx context.Context, id uuid.UUID, permissions []authz.Permission) error {
	if err := s.store.SetPermissions(ctx, id, permissions); err != nil {
		return err
	}
	s.invalidate(ctx, id, "")
	return nil
}

// GetPermissions reads the permission set through the cache.
func (s *CachedRoleStore) GetPermissions(ctx context.Context, id uuid.UUID) ([]authz.Permission, error) {
	key := rolePermsKey(id)
	var cached []authz.Permission
	if s.cacheHit(ctx, key, &cached) {
		return cached, nil
	}

	permissions, err := s.store.GetPermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, permissions, s.ttl.Entity, roleTag(id))
	return permissions, nil
}

// invalidate sweeps every cache entry derived from the role: the id-tagged
// direct keys (id, name, permissions), the explicit name/exists keys when
// the name is known, the count aggregate, and the whole list namespace.
// Issued strictly after the persistent write committed.
func (s *CachedRoleStore) invalidate(ctx context.Context, id uuid.UUID, name string) {
	keys := []string{roleIDKey(id), rolePermsKey(id), roleCountKey}
	if name != "" {
		keys = append(keys, roleNameKey(name), roleExistsKey(name))
	}
	if err := s.cache.Remove(ctx, keys...); err != nil {
		s.cacheFailure(err, "invalidate role keys")
	}
	if err := s.cache.RemoveByTag(ctx, roleTag(id)); err != nil {
		s.cacheFailure(err, "invalidate role tag")
	}
	if err := s.cache.RemoveByPattern(ctx, roleListPattern); err != nil {
		s.cacheFailure(err, "invalidate role lists")
	}
	s.metrics.RecordCacheInvalidation("roles")
}

// CachedUserStore is the cache-aside wrapper for users, identical in shape
// to CachedRoleStore.
type CachedUserStore struct {
	store UserStore
	ttl   TTLConfig
	cacheOps
}

// NewCachedUserStore wraps a user store with the cache layer.
func NewCachedUserStore(store UserStore, c *cache.Client, ttl TTLConfig, logger *observability.Logger, metrics *observability.Metrics) *CachedUserStore {
	return &CachedUserStore{
		store:    store,
		ttl:      ttl,
		cacheOps: newCacheOps(c, "users", logger, metrics),
	}
}

func userIDKey(id uuid.UUID) string    { return "users:id:" + id.String() }
func userEmailKey(email string) string { return "users:email:" + strings.ToLower(email) }
func userExistsKey(email string) string {
	return "users:exists:" + strings.ToLower(email)
}
func userTag(id uuid.UUID) string { return "user:" + id.String() }
func userListKey(limit, offset int) string {
	return fmt.Sprintf("users:list:%d:%d", limit, offset)
}

const (
	userCountKey    = "users:count"
	userListPattern = "users:list:*"
)

// GetByID reads through the cache.
func (s *CachedUserStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	key := userIDKey(id)
	var cached User
	if s.cacheHit(ctx, key, &cached) {
		return &cached, nil
	}

	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, user, s.ttl.Entity, userTag(user.ID))
	return user, nil
}

// GetByEmail reads through the cache by natural key.
func (s *CachedUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	key := userEmailKey(email)
	var cached User
	if s.cacheHit(ctx, key, &cached) {
		return &cached, nil
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, user, s.ttl.Entity, userTag(user.ID))
	return user, nil
}

// List reads a page through the cache.
func (s *CachedUserStore) List(ctx context.Context, limit, offset int) ([]*User, error) {
	key := userListKey(limit, offset)
	var cached []*User
	if s.cacheHit(ctx, key, &cached) {
		return cached, nil
	}

	users, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		s.cacheSet(ctx, key, users, s.ttl.List, "")
	}
	return users, nil
}

// Exists reads the existence check through the cache.
func (s *CachedUserStore) Exists(ctx context.Context, email string) (bool, error) {
	key := userExistsKey(email)
	var cached bool
	if s.cacheHit(ctx, key, &cached) {
		return cached, nil
	}

	exists, err := s.store.Exists(ctx, email)
	if err != nil {
		return false, err
	}
	if exists {
		s.cacheSet(ctx, key, exists, s.ttl.Entity, "")
	}
	return exists, nil
}

// Count reads the aggregate count through the cache.
func (s *CachedUserStore) Count(ctx context.Context) (int64, error) {
	var cached int64
	if s.cacheHit(ctx, userCountKey, &cached) {
		return cached, nil
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	s.cacheSet(ctx, userCountKey, count, s.ttl.Aggregate, "")
	return count, nil
}

// Create writes through and invalidates.
func (s *CachedUserStore) Create(ctx context.Context, user *User) error {
	if err := s.store.Create(ctx, user); err != nil {
		return err
	}
	s.invalidate(ctx, user.ID, user.Email)
	return nil
}

// Update writes through and invalidates.
func (s *CachedUserStore) Update(ctx context.Context, user *User) error {
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}
	s.invalidate(ctx, user.ID, user.Email)
	return nil
}

// SoftDelete writes through and invalidates. The email is resolved up front
// so the email and existence entries are swept too.
func (s *CachedUserStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	email := ""
	if user, err := s.store.GetByID(ctx, id); err == nil {
		email = user.Email
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id, email)
	return nil
}

func (s *CachedUserStore) invalidate(ctx context.Context, id uuid.UUID, email string) {
	keys := []string{userIDKey(id), userCountKey}
	if email != "" {
		keys = append(keys, userEmailKey(email), userExistsKey(email))
	}
	if err := s.cache.Remove(ctx, keys...); err != nil {
		s.cacheFailure(err, "invalidate user keys")
	}
	if err := s.cache.RemoveByTag(ctx, userTag(id)); err != nil {
		s.cacheFailure(err, "invalidate user tag")
	}
	if err := s.cache.RemoveByPattern(ctx, userListPattern); err != nil {
		s.cacheFailure(err, "invalidate user lists")
	}
	s.metrics.RecordCacheInvalidation("users")
}
