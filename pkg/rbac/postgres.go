package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/warden/pkg/authz"
)

// uniqueViolation is the postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// PostgresRoleStore persists roles in postgres. Permissions are stored as a
// JSONB array of "resource:action:scope" strings.
type PostgresRoleStore struct {
	db *sql.DB
}

// NewPostgresRoleStore creates a role store over the given connection pool.
func NewPostgresRoleStore(db *sql.DB) *PostgresRoleStore {
	return &PostgresRoleStore{db: db}
}

const roleColumns = `id, name, description, permissions, created_at, updated_at, deleted_at`

// GetByID retrieves a non-deleted role.
func (s *PostgresRoleStore) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1 AND deleted_at IS NULL`
	return scanRole(s.db.QueryRowContext(ctx, query, id))
}

// GetByName retrieves a non-deleted role by case-insensitive name.
func (s *PostgresRoleStore) GetByName(ctx context.Context, name string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL`
	return scanRole(s.db.QueryRowContext(ctx, query, name))
}

// List returns a page of non-deleted roles ordered by name.
func (s *PostgresRoleStore) List(ctx context.Context, limit, offset int) ([]*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE deleted_at IS NULL ORDER BY LOWER(name) LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Exists reports whether a non-deleted role with the name exists.
func (s *PostgresRoleStore) Exists(ctx context.Context, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM roles WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check role existence: %w", err)
	}
	return exists, nil
}

// Count returns the number of non-deleted roles.
func (s *PostgresRoleStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE deleted_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count roles: %w", err)
	}
	return count, nil
}

// Create inserts a new role.
func (s *PostgresRoleStore) Create(ctx context.Context, role *Role) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO roles (id, name, description, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		role.ID, role.Name, role.Description, permissions, role.CreatedAt, role.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrRoleNameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// Update rewrites a role's name, description and permission set.
func (s *PostgresRoleStore) Update(ctx context.Context, role *Role) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		UPDATE roles SET name = $2, description = $3, permissions = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		role.ID, role.Name, role.Description, permissions, role.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrRoleNameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireRow(result)
}

// SoftDelete marks a role deleted without removing the row.
func (s *PostgresRoleStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE roles SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to soft-delete role: %w", err)
	}
	return requireRow(result)
}

// SetPermissions replaces the role's permission set.
func (s *PostgresRoleStore) SetPermissions(ctx context.Context, id uuid.UUID, permissions []authz.Permission) error {
	data, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `UPDATE roles SET permissions = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return requireRow(result)
}

// GetPermissions returns the role's permission set.
func (s *PostgresRoleStore) GetPermissions(ctx context.Context, id uuid.UUID) ([]authz.Permission, error) {
	query := `SELECT permissions FROM roles WHERE id = $1 AND deleted_at IS NULL`
	var data []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions: %w", err)
	}

	var permissions []authz.Permission
	if err := json.Unmarshal(data, &permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return permissions, nil
}

// PostgresUserStore persists users in postgres. Role assignments are stored
// as a JSONB array of role ids on the user row.
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a user store over the given connection pool.
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, email, full_name, password_hash, role_ids, disabled, created_at, updated_at, deleted_at`

// GetByID retrieves a non-deleted user.
func (s *PostgresUserStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a non-deleted user by case-insensitive email.
func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// List returns a page of non-deleted users ordered by email.
func (s *PostgresUserStore) List(ctx context.Context, limit, offset int) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL ORDER BY email LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Exists reports whether a non-deleted user with the email exists.
func (s *PostgresUserStore) Exists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// Count returns the number of non-deleted users.
func (s *PostgresUserStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Create inserts a new user.
func (s *PostgresUserStore) Create(ctx context.Context, user *User) error {
	roleIDs, err := json.Marshal(user.RoleIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal role ids: %w", err)
	}

	query := `
		INSERT INTO users (id, email, full_name, password_hash, role_ids, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FullName, user.PasswordHash, roleIDs, user.Disabled,
		user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update rewrites a user's mutable fields.
func (s *PostgresUserStore) Update(ctx context.Context, user *User) error {
	roleIDs, err := json.Marshal(user.RoleIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal role ids: %w", err)
	}

	query := `
		UPDATE users SET email = $2, full_name = $3, password_hash = $4, role_ids = $5, disabled = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FullName, user.PasswordHash, roleIDs, user.Disabled, user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result)
}

// SoftDelete marks a user deleted without removing the row.
func (s *PostgresUserStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to soft-delete user: %w", err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var permissions []byte
	var deletedAt sql.NullTime

	err := row.Scan(&role.ID, &role.Name, &role.Description, &permissions,
		&role.CreatedAt, &role.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}

	if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		role.DeletedAt = &t
	}
	return &role, nil
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var roleIDs []byte
	var deletedAt sql.NullTime

	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash,
		&roleIDs, &user.Disabled, &user.CreatedAt, &user.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if err := json.Unmarshal(roleIDs, &user.RoleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role ids: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		user.DeletedAt = &t
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
