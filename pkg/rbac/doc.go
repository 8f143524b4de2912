// Package rbac provides the role and user model behind authorization
// decisions, with postgres persistence and a redis cache-aside layer.
//
// # Entities
//
// A Role is a named, case-insensitively unique set of permissions. A User
// holds role ids, a password hash, and a disabled flag. Both are
// soft-deleted only: mutations never remove rows.
//
// # Stores
//
// RoleStore and UserStore are the persistence contracts; PostgresRoleStore
// and PostgresUserStore implement them over database/sql. CachedRoleStore
// and CachedUserStore wrap any implementation with cache-aside semantics:
//
//   - reads check redis first and populate it on a miss with a
//     tier-appropriate TTL (entities 15m, lists 5m, aggregates 30m)
//   - mutations write through to postgres first and invalidate afterwards,
//     sweeping direct keys, natural-key entries, existence checks, counts,
//     the whole list namespace by pattern, and id-tagged derived keys
//   - cache backend failures are logged and swallowed; postgres failures
//     propagate
//
// The evaluator consumes roles through RoleSource, which hides deleted and
// missing roles.
package rbac
