// Package auth inspects portal bearer tokens on the client side.
//
// Tokens are issued and refreshed by the portal. The client never verifies
// signatures; it only reads claims to warn before a token expires.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryWarningWindow is how close to expiry a token triggers a warning.
const ExpiryWarningWindow = 24 * time.Hour

// ErrOpaqueToken is returned for tokens that are not JWTs.
var ErrOpaqueToken = errors.New("token is not a JWT")

// Claims are the portal claims read from a token.
type Claims struct {
	ClientID string `json:"client_id,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenInfo summarises a token for display.
type TokenInfo struct {
	Subject   string
	Email     string
	Role      string
	ClientID  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the token has no exp claim
}

// InspectToken reads the claims of token without verifying its signature.
func InspectToken(token string) (*TokenInfo, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, errors.New("token is empty")
	}
	if strings.Count(token, ".") != 2 {
		return nil, ErrOpaqueToken
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	info := &TokenInfo{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Role:     claims.Role,
		ClientID: claims.ClientID,
		Issuer:   claims.Issuer,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Expired reports whether the token expired before now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// ExpiresWithin reports whether the token is still valid but expires within d of now.
func (t *TokenInfo) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !t.ExpiresAt.IsZero() && !t.Expired(now) && t.ExpiresAt.Sub(now) <= d
}

// Remaining returns the time left before expiry, or zero.
func (t *TokenInfo) Remaining(now time.Time) time.Duration {
	if t.ExpiresAt.IsZero() || t.Expired(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

// ExpiryWarning returns a user-facing warning when the token is expired or
// about to expire, and "" otherwise. Opaque tokens never warn.
func ExpiryWarning(token string, now time.Time) string {
	info, err := InspectToken(token)
	if err != nil {
		return ""
	}
	switch {
	case info.Expired(now):
		return fmt.Sprintf("API token expired at %s - request a new one from the portal", info.ExpiresAt.Local().Format(time.RFC1123))
	case info.ExpiresWithin(now, ExpiryWarningWindow):
		return fmt.Sprintf("API token expires in %s", info.Remaining(now).Round(time.Minute))
	}
	return ""
}
