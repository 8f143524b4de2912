package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists refresh token records.
type Store interface {
	// Create inserts a new refresh token record.
	Create(ctx context.Context, t *RefreshToken) error

	// GetByHash returns the token with the given hash, or ErrTokenNotFound.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// RevokeActive atomically revokes the token with the given hash, but only
	// if it is still active at now. It returns the revoked record, or
	// ErrTokenNotFound if no active token matched. Of any number of
	// concurrent callers presenting the same hash, exactly one succeeds.
	RevokeActive(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// Revoke marks the token with the given hash revoked. Revoking a token
	// that is already revoked, expired or absent is not an error.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllForUser revokes every active token belonging to a user and
	// returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)

	// PurgeExpired deletes tokens whose lifetime ended before the cutoff and
	// returns how many were removed.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

const uniqueViolation = "23505"

// PostgresStore is the PostgreSQL-backed refresh token store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a refresh token store over the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked_at, created_at`

// Create inserts a new refresh token record.
func (s *PostgresStore) Create(ctx context.Context, t *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateToken
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetByHash returns the token with the given hash.
func (s *PostgresStore) GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	t, err := scanRefreshToken(s.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return t, nil
}

// RevokeActive revokes the token only if it is still active at now. The
// conditional UPDATE is the whole concurrency story: the row transitions to
// revoked at most once, so a second caller racing on the same hash sees zero
// rows and gets ErrTokenNotFound.
func (s *PostgresStore) RevokeActive(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING ` + refreshTokenColumns

	t, err := scanRefreshToken(s.db.QueryRowContext(ctx, query, tokenHash, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return t, nil
}

// Revoke marks the token revoked if it is still active. Absent, expired or
// already revoked tokens are left alone without error.
func (s *PostgresStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL`

	if _, err := s.db.ExecContext(ctx, query, tokenHash, now); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active token belonging to a user.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`

	result, err := s.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke tokens for user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count revoked tokens: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes tokens that expired before the cutoff.
func (s *PostgresStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged tokens: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRefreshToken(row rowScanner) (*RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
