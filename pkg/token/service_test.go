package token

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// memStore is an in-memory Store for service tests. Its RevokeActive mirrors
// the conditional-update semantics of the SQL store: at most one caller can
// transition a token out of the active state.
type memStore struct {
	mu     sync.Mutex
	byHash map[string]*RefreshToken
}

func newMemStore() *memStore {
	return &memStore{byHash: make(map[string]*RefreshToken)}
}

func (m *memStore) Create(ctx context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[t.TokenHash]; ok {
		return ErrDuplicateToken
	}
	cp := *t
	m.byHash[t.TokenHash] = &cp
	return nil
}

func (m *memStore) GetByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) RevokeActive(ctx context.Context, hash string, now time.Time) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[hash]
	if !ok || !t.Active(now) {
		return nil, ErrTokenNotFound
	}
	revokedAt := now
	t.RevokedAt = &revokedAt
	cp := *t
	return &cp, nil
}

func (m *memStore) Revoke(ctx context.Context, hash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byHash[hash]; ok && !t.Revoked() {
		revokedAt := now
		t.RevokedAt = &revokedAt
	}
	return nil
}

func (m *memStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.byHash {
		if t.UserID == userID && t.Active(now) {
			revokedAt := now
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (m *memStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, t := range m.byHash {
		if t.ExpiresAt.Before(cutoff) {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}

type memDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*rbac.User
}

func (d *memDirectory) GetByID(ctx context.Context, id uuid.UUID) (*rbac.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, rbac.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type fixture struct {
	svc   *Service
	store *memStore
	dir   *memDirectory
	user  *rbac.User

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	user := &rbac.User{
		ID:      uuid.New(),
		Email:   "ops@example.com",
		RoleIDs: []uuid.UUID{uuid.New()},
	}

	f := &fixture{
		store: newMemStore(),
		dir:   &memDirectory{users: map[uuid.UUID]*rbac.User{user.ID: user}},
		user:  user,
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	svc, err := NewService(Config{
		Secret:     []byte("test-signing-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, f.store, f.dir,
		observability.NewLogger(observability.ErrorLevel, io.Discard), nil,
		WithClock(f.clock))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	f.svc = svc
	return f
}

func TestService_GenerateTokens(t *testing.T) {
	f := newFixture(t)

	pair, err := f.svc.GenerateTokens(context.Background(), f.user)
	if err != nil {
		t.Fatalf("GenerateTokens() error = %v", err)
	}

	if pair.TokenType != TokenTypeBearer {
		t.Errorf("TokenType = %q, want %q", pair.TokenType, TokenTypeBearer)
	}
	if !pair.ExpiresAt.After(f.clock()) {
		t.Error("pair expiry should be in the future")
	}

	claims := f.svc.ValidateToken(pair.AccessToken)
	if claims == nil {
		t.Fatal("freshly issued access token should validate")
	}
	if claims.UserID != f.user.ID {
		t.Errorf("UserID = %v, want %v", claims.UserID, f.user.ID)
	}
	if len(claims.RoleIDs) != 1 || claims.RoleIDs[0] != f.user.RoleIDs[0] {
		t.Errorf("RoleIDs = %v, want %v", claims.RoleIDs, f.user.RoleIDs)
	}
	if got := pair.ExpiresAt; !claims.ExpiresAt.Equal(got) {
		t.Errorf("claims expiry %v should match pair expiry %v", claims.ExpiresAt, got)
	}
}

func TestService_GenerateTokensDisabledUser(t *testing.T) {
	f := newFixture(t)
	f.user.Disabled = true

	if _, err := f.svc.GenerateTokens(context.Background(), f.user); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("GenerateTokens() error = %v, want ErrUserDisabled", err)
	}
}

func TestService_RefreshRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GenerateTokens(ctx, f.user)
	if err != nil {
		t.Fatalf("GenerateTokens() error = %v", err)
	}

	second, err := f.svc.RefreshTokens(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh should mint a new refresh token")
	}
	if f.svc.ValidateToken(second.AccessToken) == nil {
		t.Error("new access token should validate")
	}

	// The presented token was consumed.
	if _, err := f.svc.RefreshTokens(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("reusing a rotated token: error = %v, want ErrInvalidRefreshToken", err)
	}

	// The replacement still works.
	if _, err := f.svc.RefreshTokens(ctx, second.RefreshToken); err != nil {
		t.Errorf("refreshing with the replacement: error = %v", err)
	}
}

func TestService_ConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.GenerateTokens(ctx, f.user)
	if err != nil {
		t.Fatalf("GenerateTokens() error = %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RefreshTokens(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidRefreshToken):
		default:
			t.Errorf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("concurrent refreshes with one token: %d winners, want exactly 1", wins)
	}
}

func TestService_RefreshRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("malformed token", func(t *testing.T) {
		if _, err := f.svc.RefreshTokens(ctx, "not-a-refresh-token"); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		token, _, err := f.svc.gen.Generate()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.RefreshTokens(ctx, token); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		pair, err := f.svc.GenerateTokens(ctx, f.user)
		if err != nil {
			t.Fatal(err)
		}
		f.advance(25 * time.Hour)
		defer f.advance(-25 * time.Hour)
		if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
	})

	t.Run("disabled user", func(t *testing.T) {
		pair, err := f.svc.GenerateTokens(ctx, f.user)
		if err != nil {
			t.Fatal(err)
		}
		f.user.Disabled = true
		defer func() { f.user.Disabled = false }()
		if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("error = %v, want ErrInvalidRefreshToken", err)
		}
	})
}

func TestService_RevokeTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.GenerateTokens(ctx, f.user)
	if err != nil {
		t.Fatalf("GenerateTokens() error = %v", err)
	}

	if err := f.svc.RevokeTokens(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("RevokeTokens() error = %v", err)
	}
	if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("refreshing a revoked token: error = %v, want ErrInvalidRefreshToken", err)
	}

	// Revoking again, revoking garbage and revoking an unknown token all
	// succeed indistinguishably.
	if err := f.svc.RevokeTokens(ctx, pair.RefreshToken); err != nil {
		t.Errorf("second revoke: error = %v", err)
	}
	if err := f.svc.RevokeTokens(ctx, "garbage"); err != nil {
		t.Errorf("revoking malformed token: error = %v", err)
	}
	unknown, _, err := f.svc.gen.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RevokeTokens(ctx, unknown); err != nil {
		t.Errorf("revoking unknown token: error = %v", err)
	}
}

func TestService_RevokeAllForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.GenerateTokens(ctx, f.user)
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.GenerateTokens(ctx, f.user)
	if err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.RevokeAllForUser(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}
	if n != 2 {
		t.Errorf("revoked %d tokens, want 2", n)
	}

	for _, refresh := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := f.svc.RefreshTokens(ctx, refresh); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("refreshing after revoke-all: error = %v, want ErrInvalidRefreshToken", err)
		}
	}
}

func TestService_ValidateTokenRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.GenerateTokens(ctx, f.user)
	if err != nil {
		t.Fatalf("GenerateTokens() error = %v", err)
	}

	t.Run("garbage", func(t *testing.T) {
		if f.svc.ValidateToken("not.a.jwt") != nil {
			t.Error("garbage token should not validate")
		}
		if f.svc.ValidateToken("") != nil {
			t.Error("empty token should not validate")
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
		if f.svc.ValidateToken(tampered) != nil {
			t.Error("tampered token should not validate")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   f.user.ID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(f.clock().Add(time.Hour)),
		}).SignedString([]byte("some-other-secret"))
		if err != nil {
			t.Fatal(err)
		}
		if f.svc.ValidateToken(forged) != nil {
			t.Error("token signed with another secret should not validate")
		}
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   f.user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(f.clock().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if f.svc.ValidateToken(unsigned) != nil {
			t.Error("alg=none token should not validate")
		}
	})

	t.Run("missing typ claim", func(t *testing.T) {
		wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   f.user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(f.clock()),
			ExpiresAt: jwt.NewNumericDate(f.clock().Add(time.Hour)),
		}).SignedString([]byte("test-signing-secret"))
		if err != nil {
			t.Fatal(err)
		}
		if f.svc.ValidateToken(wrongType) != nil {
			t.Error("token without typ=access should not validate")
		}
	})

	t.Run("expired", func(t *testing.T) {
		f.advance(16 * time.Minute)
		defer f.advance(-16 * time.Minute)
		if f.svc.ValidateToken(pair.AccessToken) != nil {
			t.Error("expired access token should not validate")
		}
	})
}

func TestService_CleanupExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.GenerateTokens(ctx, f.user); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GenerateTokens(ctx, f.user); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if n != 0 {
		t.Errorf("purged %d live tokens, want 0", n)
	}

	f.advance(25 * time.Hour)
	n, err = f.svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d tokens, want 2", n)
	}
}
