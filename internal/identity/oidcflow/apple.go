package oidcflow

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppleAudience is the audience of Sign in with Apple client secrets.
const AppleAudience = "https://appleid.apple.com"

// appleSecretLifetime stays well under Apple's six month maximum.
const appleSecretLifetime = 24 * time.Hour

// AppleSecret identifies the signing key of a Sign in with Apple client.
type AppleSecret struct {
	ClientID string
	TeamID   string
	KeyID    string
	Key      *ecdsa.PrivateKey
}

// LoadAppleKey reads the PKCS#8 .p8 key downloaded from the Apple
// developer portal.
func LoadAppleKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Apple private key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Apple private key: %w", err)
	}
	return key, nil
}

// Sign returns the ES256 client-secret JWT Apple expects at the token
// endpoint.
func (s AppleSecret) Sign(now time.Time) (string, error) {
	if s.Key == nil || s.ClientID == "" || s.TeamID == "" || s.KeyID == "" {
		return "", fmt.Errorf("apple client secret requires client ID, team ID, key ID and key")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    s.TeamID,
		Subject:   s.ClientID,
		Audience:  jwt.ClaimStrings{AppleAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appleSecretLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.KeyID
	return token.SignedString(s.Key)
}
