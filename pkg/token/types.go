package token

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenTypeBearer is the token-type label on issued pairs.
const TokenTypeBearer = "Bearer"

// RefreshToken is the persisted record of an issued refresh token. Only the
// SHA-256 hash of the secret is stored. A token moves forward only:
// Active -> Revoked (explicit) or Active -> Expired (derived from the clock
// at read time); neither terminal state ever returns to Active.
type RefreshToken struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Revoked reports whether the token has been explicitly revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token's lifetime has passed at the given time.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the token can still be used for a refresh.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}

// Pair bundles the credentials returned by login and refresh.
type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// NewPair builds a token pair, enforcing at construction that the access
// expiry lies in the future of the supplied clock reading.
func NewPair(accessToken, refreshToken string, expiresAt, now time.Time) (*Pair, error) {
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("token pair expiry %s is not in the future", expiresAt)
	}
	return &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		TokenType:    TokenTypeBearer,
	}, nil
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    uuid.UUID
	RoleIDs   []uuid.UUID
	TokenID   uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}
