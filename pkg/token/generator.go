package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	// RefreshTokenPrefix identifies Warden refresh tokens
	RefreshTokenPrefix = "wrt_"
	// RefreshTokenLength is the total length of random bytes (32 bytes = 256 bits)
	RefreshTokenLength = 32
)

// Generator generates and hashes opaque refresh tokens.
type Generator struct {
	rand io.Reader
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorWithRand creates a generator with a caller-supplied entropy
// source. Intended for tests.
func NewGeneratorWithRand(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate creates a new refresh token.
// Format: wrt_<base64url(32 random bytes)>
// Returns the plaintext token (shown to the caller once) and its SHA-256
// hash, which is what gets stored.
func (g *Generator) Generate() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, RefreshTokenLength)
	if _, err := io.ReadFull(g.rand, randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Encode to base64url (URL-safe, no padding)
	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := RefreshTokenPrefix + encoded

	return fullToken, g.Hash(fullToken), nil
}

// Hash computes the SHA-256 hash of a token for storage and lookup.
func (g *Generator) Hash(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateFormat checks if a token has the correct shape before any storage
// lookup is attempted.
func (g *Generator) ValidateFormat(token string) error {
	if !strings.HasPrefix(token, RefreshTokenPrefix) {
		return fmt.Errorf("token must start with %q", RefreshTokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, RefreshTokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}
