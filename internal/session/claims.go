package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// Claims are the identity claims carried by an identity-provider token.
// They are decoded for display only; the backend verifies the signature.
type Claims struct {
	jwt.RegisteredClaims

	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	PhoneNumber   string `json:"phone_number"`
}

// ClaimsFromToken decodes the claims of a JWT bearer token without
// verifying its signature.
func ClaimsFromToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIdentityTokenRejected, "token is not a valid JWT", err)
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// Expiry returns the token expiry, or the zero time if the token has none.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the token expired before now.
func (c *Claims) Expired(now time.Time) bool {
	exp := c.Expiry()
	return !exp.IsZero() && now.After(exp)
}
