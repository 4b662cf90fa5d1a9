package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the gateway can read out of an access token issued by the
// remote auth service. The token is verified server-side on every request; the
// gateway only inspects claims for expiry hints and display.
type TokenInfo struct {
	Subject   string
	Roles     []string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	TokenType string   `json:"token_type"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

var ErrNotAToken = errors.New("access token is not a JWT")

// InspectAccessToken decodes the claims of raw without verifying the
// signature. Opaque (non-JWT) tokens return ErrNotAToken; callers treat that
// as "no expiry hint available", not as a failure.
func InspectAccessToken(raw string) (*TokenInfo, error) {
	claims := &accessClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, ErrNotAToken
	}
	info := &TokenInfo{
		Subject: claims.Subject,
		Roles:   claims.Roles,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
