package token

import (
	"strings"
	"testing"
)

func TestGenerator_Generate(t *testing.T) {
	g := NewGenerator()

	token, tokenHash, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !strings.HasPrefix(token, RefreshTokenPrefix) {
		t.Errorf("token should start with %q, got %q", RefreshTokenPrefix, token)
	}

	// SHA-256 = 64 hex chars
	if len(tokenHash) != 64 {
		t.Errorf("tokenHash length = %d, want 64", len(tokenHash))
	}

	if tokenHash != g.Hash(token) {
		t.Error("returned hash should match Hash() of the plaintext token")
	}

	if err := g.ValidateFormat(token); err != nil {
		t.Errorf("generated token should pass ValidateFormat, got %v", err)
	}
}

func TestGenerator_Generate_Uniqueness(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %q", token)
		}
		seen[token] = true
	}
}

func TestGenerator_Hash_Deterministic(t *testing.T) {
	g := NewGenerator()

	h1 := g.Hash("wrt_sometoken")
	h2 := g.Hash("wrt_sometoken")
	if h1 != h2 {
		t.Errorf("Hash should be deterministic: %q != %q", h1, h2)
	}

	if g.Hash("wrt_other") == h1 {
		t.Error("different tokens should hash differently")
	}
}

func TestGenerator_ValidateFormat(t *testing.T) {
	g := NewGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", "wrt_dGVzdHRva2VuZGF0YQ", false},
		{"missing prefix", "dGVzdHRva2VuZGF0YQ", true},
		{"wrong prefix", "tok_dGVzdHRva2VuZGF0YQ", true},
		{"prefix only", "wrt_", true},
		{"invalid base64url", "wrt_not!valid!base64!", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateFormat(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}
