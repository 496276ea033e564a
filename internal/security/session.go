package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// sessionKeyBytes is the entropy of a session key; its hex form is 40 characters.
const sessionKeyBytes = 20

// GenerateSessionKey creates a new random session key.
func GenerateSessionKey() (string, error) {
	secret := make([]byte, sessionKeyBytes)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

// DigestSessionKey returns the hex SHA-256 digest stored in place of the raw key.
func DigestSessionKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
