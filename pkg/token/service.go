package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

const (
	// DefaultAccessTTL is the lifetime of issued access tokens.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the lifetime of issued refresh tokens.
	DefaultRefreshTTL = 30 * 24 * time.Hour
	// DefaultIssuer is the iss claim on issued access tokens.
	DefaultIssuer = "warden"

	signingMethod = "HS256"
	typeAccess    = "access"
)

// UserDirectory is the read-only user lookup the service needs when rotating
// tokens. Satisfied by rbac.UserStore.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*rbac.User, error)
}

// Config holds token service settings.
type Config struct {
	// Secret signs access tokens (HMAC-SHA256). Required.
	Secret []byte
	// Issuer is the iss claim. Defaults to DefaultIssuer.
	Issuer string
	// AccessTTL is the access token lifetime. Defaults to DefaultAccessTTL.
	AccessTTL time.Duration
	// RefreshTTL is the refresh token lifetime. Defaults to DefaultRefreshTTL.
	RefreshTTL time.Duration
}

// Service issues, rotates, revokes and validates tokens. Access tokens are
// signed JWTs validated locally; refresh tokens are opaque, single-use and
// consulted against the store on every rotation.
type Service struct {
	store      Store
	users      UserDirectory
	gen        *Generator
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the service clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGenerator replaces the refresh token generator. Intended for tests.
func WithGenerator(gen *Generator) Option {
	return func(s *Service) { s.gen = gen }
}

// NewService creates a token service.
func NewService(cfg Config, store Store, users UserDirectory, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("token: signing secret must not be empty")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	s := &Service{
		store:      store,
		users:      users,
		gen:        NewGenerator(),
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type accessClaims struct {
	jwt.RegisteredClaims
	TokenType string   `json:"typ"`
	RoleIDs   []string `json:"roles,omitempty"`
}

// GenerateTokens issues a fresh access/refresh pair for a user, typically
// after a successful login.
func (s *Service) GenerateTokens(ctx context.Context, user *rbac.User) (*Pair, error) {
	if user.Disabled || user.Deleted() {
		s.metrics.RecordTokenOperation("generate", "rejected")
		return nil, ErrUserDisabled
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		s.metrics.RecordTokenOperation("generate", "error")
		return nil, err
	}

	s.metrics.RecordTokenOperation("generate", "success")
	s.logger.WithField("user_id", user.ID.String()).Debug("issued token pair")
	return pair, nil
}

// RefreshTokens exchanges a refresh token for a fresh pair and invalidates
// the presented token. The revoke-then-issue order means a presented token is
// consumed exactly once: of any concurrent refreshes with the same token,
// one wins and the rest get ErrInvalidRefreshToken.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*Pair, error) {
	if err := s.gen.ValidateFormat(refreshToken); err != nil {
		s.metrics.RecordTokenOperation("refresh", "rejected")
		return nil, ErrInvalidRefreshToken
	}

	now := s.now()
	record, err := s.store.RevokeActive(ctx, s.gen.Hash(refreshToken), now)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			s.metrics.RecordTokenOperation("refresh", "rejected")
			return nil, ErrInvalidRefreshToken
		}
		s.metrics.RecordTokenOperation("refresh", "error")
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			s.metrics.RecordTokenOperation("refresh", "rejected")
			return nil, ErrInvalidRefreshToken
		}
		s.metrics.RecordTokenOperation("refresh", "error")
		return nil, fmt.Errorf("failed to load user for refresh: %w", err)
	}
	if user.Disabled || user.Deleted() {
		s.metrics.RecordTokenOperation("refresh", "rejected")
		return nil, ErrInvalidRefreshToken
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		s.metrics.RecordTokenOperation("refresh", "error")
		return nil, err
	}

	s.metrics.RecordTokenOperation("refresh", "success")
	s.logger.WithField("user_id", user.ID.String()).Debug("rotated token pair")
	return pair, nil
}

// RevokeTokens invalidates a refresh token. Malformed, unknown, expired and
// already-revoked tokens all succeed silently, so callers cannot probe which
// tokens exist. Only storage failures surface as errors.
func (s *Service) RevokeTokens(ctx context.Context, refreshToken string) error {
	if err := s.gen.ValidateFormat(refreshToken); err != nil {
		s.metrics.RecordTokenOperation("revoke", "success")
		return nil
	}

	if err := s.store.Revoke(ctx, s.gen.Hash(refreshToken), s.now()); err != nil {
		s.metrics.RecordTokenOperation("revoke", "error")
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.metrics.RecordTokenOperation("revoke", "success")
	return nil
}

// RevokeAllForUser invalidates every active refresh token belonging to a
// user, e.g. after a password change or account disable.
func (s *Service) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.store.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		s.metrics.RecordTokenOperation("revoke_all", "error")
		return 0, fmt.Errorf("failed to revoke tokens for user: %w", err)
	}

	s.metrics.RecordTokenOperation("revoke_all", "success")
	s.logger.WithFields(map[string]interface{}{
		"user_id": userID.String(),
		"revoked": n,
	}).Info("revoked all refresh tokens for user")
	return n, nil
}

// ValidateToken verifies an access token and returns its claims, or nil if
// the token is invalid for any reason. It never returns an error: a bad
// token is an expected input, not a fault.
func (s *Service) ValidateToken(tokenString string) *Claims {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)

	var claims accessClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		s.metrics.RecordTokenOperation("validate", "rejected")
		return nil
	}
	if claims.TokenType != typeAccess {
		s.metrics.RecordTokenOperation("validate", "rejected")
		return nil
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.metrics.RecordTokenOperation("validate", "rejected")
		return nil
	}
	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		s.metrics.RecordTokenOperation("validate", "rejected")
		return nil
	}

	roleIDs := make([]uuid.UUID, 0, len(claims.RoleIDs))
	for _, raw := range claims.RoleIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.metrics.RecordTokenOperation("validate", "rejected")
			return nil
		}
		roleIDs = append(roleIDs, id)
	}

	s.metrics.RecordTokenOperation("validate", "success")
	return &Claims{
		UserID:    userID,
		RoleIDs:   roleIDs,
		TokenID:   tokenID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
}

// CleanupExpired deletes refresh tokens whose lifetime has ended. Run
// periodically; revocation state for live tokens is never touched.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	if n > 0 {
		s.logger.WithField("purged", n).Info("purged expired refresh tokens")
	}
	return n, nil
}

func (s *Service) issuePair(ctx context.Context, user *rbac.User) (*Pair, error) {
	now := s.now()

	refreshToken, refreshHash, err := s.gen.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record := &RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	accessExpiry := now.Add(s.accessTTL)
	accessToken, err := s.signAccessToken(user, record.ID, now, accessExpiry)
	if err != nil {
		return nil, err
	}

	return NewPair(accessToken, refreshToken, accessExpiry, now)
}

func (s *Service) signAccessToken(user *rbac.User, tokenID uuid.UUID, now, expiresAt time.Time) (string, error) {
	roleIDs := make([]string, 0, len(user.RoleIDs))
	for _, id := range user.RoleIDs {
		roleIDs = append(roleIDs, id.String())
	}

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			ID:        tokenID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType: typeAccess,
		RoleIDs:   roleIDs,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Permissions returns the permission set this feature area contributes to
// the static registry.
func Permissions() []authz.Permission {
	return []authz.Permission{
		authz.MustPermission("session", "revoke", "*"),
		authz.MustPermission("session", "read", "*"),
	}
}
