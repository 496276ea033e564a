package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	SetHashCost(bcrypt.MinCost)
	defer SetHashCost(defaultBcryptCost)

	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "other") {
		t.Fatalf("expected mismatch for wrong password")
	}
	EqualizeTiming("whatever")
}

func TestGenerateSessionKey(t *testing.T) {
	key, err := GenerateSessionKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(key) != 40 {
		t.Fatalf("expected 40 hex chars, got %d", len(key))
	}
	other, _ := GenerateSessionKey()
	if key == other {
		t.Fatalf("expected distinct keys")
	}
	digest := DigestSessionKey(key)
	if len(digest) != 64 || digest == key {
		t.Fatalf("unexpected digest %q", digest)
	}
	if DigestSessionKey(key) != digest {
		t.Fatalf("digest must be deterministic")
	}
}

func TestUIDRoundTrip(t *testing.T) {
	uid := EncodeUID(42)
	if strings.Contains(uid, "=") {
		t.Fatalf("uid must be unpadded: %q", uid)
	}
	id, err := DecodeUID(uid)
	if err != nil || id != 42 {
		t.Fatalf("decode: id=%d err=%v", id, err)
	}
	if _, err := DecodeUID("!!not-base64"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for malformed uid, got %v", err)
	}
	if _, err := DecodeUID(EncodeUID(0)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for zero uid")
	}
}

func TestResetTokenLifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	uid := EncodeUID(7)
	token, err := GenerateResetToken("secret", 7, "hash-a", now, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ParseResetToken("secret", uid, "hash-a", token, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if _, err := ParseResetToken("secret", uid, "hash-a", token, now.Add(2*time.Hour)); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
	if _, err := ParseResetToken("secret", uid, "hash-b", token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("password change must invalidate token, got %v", err)
	}
	if _, err := ParseResetToken("secret", EncodeUID(8), "hash-a", token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token must be bound to uid, got %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := ParseResetToken("secret", uid, "hash-a", tampered, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid tampered token, got %v", err)
	}
}
