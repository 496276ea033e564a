package security

import (
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Reset token validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// ResetClaims defines JWT claims for password reset tokens.
type ResetClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// EncodeUID encodes an account id for use in reset links.
func EncodeUID(userID uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(userID, 10)))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(uid string) (uint64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// resetSigningKey binds the token to the current password hash so a password
// change invalidates every outstanding token.
func resetSigningKey(secret, passwordHash string) []byte {
	return []byte(secret + passwordHash)
}

// GenerateResetToken signs a password reset token for the account.
func GenerateResetToken(secret string, userID uint64, passwordHash string, now time.Time, expiry time.Duration) (string, error) {
	claims := ResetClaims{
		UID: EncodeUID(userID),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.UTC()),
			ExpiresAt: jwt.NewNumericDate(now.UTC().Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(resetSigningKey(secret, passwordHash))
}

// ParseResetToken validates a reset token for the given uid and password hash.
func ParseResetToken(secret, uid, passwordHash, tokenString string, now time.Time) (*ResetClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	token, err := parser.ParseWithClaims(tokenString, &ResetClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return resetSigningKey(secret, passwordHash), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid || claims.UID != uid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
