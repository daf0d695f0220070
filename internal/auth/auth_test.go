package auth

import (
	"strings"
	"testing"
	"time"
)

func testConfig(expiration time.Duration) *TokenConfig {
	return &TokenConfig{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Expiration: expiration,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig(time.Hour)

	token, err := GenerateToken("u1", cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	parsed, err := ParseToken(token, cfg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.UserID != "u1" {
		t.Fatalf("expected u1, got %s", parsed.UserID)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testConfig(-time.Minute)

	token, err := GenerateToken("u1", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(token, cfg); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	cfg := testConfig(time.Hour)

	token, err := GenerateToken("u1", cfg)
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "X." + parts[1]
	if _, err := ParseToken(tampered, cfg); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}

	otherSecret := testConfig(time.Hour)
	otherSecret.Secret = []byte("ffffffffffffffffffffffffffffffff")
	if _, err := ParseToken(token, otherSecret); err == nil {
		t.Fatal("expected wrong-secret token to be rejected")
	}
}
