package security

import (
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// defaultBcryptCost defines the bcrypt work factor used in production.
const defaultBcryptCost = 12

// bcryptCost holds the active work factor.
var bcryptCost atomic.Int64

func init() {
	bcryptCost.Store(defaultBcryptCost)
}

// SetHashCost overrides the bcrypt work factor. Values outside bcrypt's range restore the default.
func SetHashCost(cost int) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultBcryptCost
	}
	bcryptCost.Store(int64(cost))
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), int(bcryptCost.Load()))
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash is compared against when the account does not exist so that
// unknown usernames cost the same as wrong passwords.
var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// EqualizeTiming burns one bcrypt comparison against a fixed hash.
func EqualizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dnastore-timing-equalizer"), int(bcryptCost.Load()))
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
