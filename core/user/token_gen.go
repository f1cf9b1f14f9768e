package user

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"time"
)

var (
	tokenBytes = 32
	nowFunc    = time.Now // mockable
)

// makeToken returns a random, URL-safe password reset token.
func makeToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// verifyToken checks token against the one stored on usr. It fails closed.
func verifyToken(usr User, token string) error {
	if token == "" || usr.ResetToken == "" || usr.ResetTokenExpiry.IsZero() {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(usr.ResetToken), []byte(token)) == 0 {
		return ErrInvalidToken
	}
	if !nowFunc().Before(usr.ResetTokenExpiry) {
		return ErrTokenExpired
	}
	return nil
}

// CheckAdminCode compares the submitted admin code in constant time.
func CheckAdminCode(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
