// Package auth inspects the bearer token issued by the drive backend.
//
// The backend signs its tokens with a server-side secret, so the client can
// never verify a signature. It only reads the claims to tell an expired
// session apart from a live one before any request is sent.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means no bearer token is configured.
	ErrNoToken = errors.New("no token configured")
	// ErrTokenExpired means the token's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the claims the backend puts into its session tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// TokenInfo is what the client can learn from a token without the signing key.
type TokenInfo struct {
	UserID    int64
	Username  string
	FirstName string
	ExpiresAt time.Time // zero when the token carries no exp claim
	Opaque    bool      // token is not a JWT; nothing could be read
}

// Expired reports whether the token has expired at now.
func (i *TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Remaining returns the time left until expiry, or 0 when unknown or expired.
func (i *TokenInfo) Remaining(now time.Time) time.Duration {
	if i.ExpiresAt.IsZero() || !now.Before(i.ExpiresAt) {
		return 0
	}
	return i.ExpiresAt.Sub(now)
}

// Inspect reads the claims of token without verifying its signature.
// Tokens that are not JWTs are reported as Opaque; the server stays the
// authority on those.
func Inspect(token string) (*TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}
	if strings.Count(token, ".") != 2 {
		return &TokenInfo{Opaque: true}, nil
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	info := &TokenInfo{
		UserID:    claims.UserID,
		Username:  claims.Username,
		FirstName: claims.FirstName,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// CheckToken returns ErrNoToken or ErrTokenExpired when token cannot be used
// at now, and nil otherwise. Malformed JWTs are rejected too.
func CheckToken(token string, now time.Time) error {
	info, err := Inspect(token)
	if err != nil {
		return err
	}
	if info.Expired(now) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, info.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
