package token

import "errors"

var (
	// ErrInvalidRefreshToken is returned whenever a presented refresh token
	// cannot be used: unknown, malformed, expired, or already revoked. The
	// causes are deliberately indistinguishable to the caller.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrUserDisabled is returned when minting tokens for a disabled account.
	ErrUserDisabled = errors.New("user account is disabled")

	// ErrDuplicateToken is returned when persisting a refresh token whose
	// secret hash collides with an existing active token.
	ErrDuplicateToken = errors.New("duplicate refresh token")

	// ErrTokenNotFound is returned by store lookups that miss.
	ErrTokenNotFound = errors.New("refresh token not found")
)
