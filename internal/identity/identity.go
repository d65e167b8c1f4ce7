// Package identity defines the contract servicehub consumes from identity
// providers. Providers are called, never implemented, by the auth layer:
// they verify credentials and mint the identity token that the backend
// exchanges for a session.
package identity

import "context"

// Provider IDs accepted by SignInWithCredential.
const (
	ProviderGoogle = "google.com"
	ProviderApple  = "apple.com"
)

// User is a user signed in with an identity provider.
type User interface {
	UID() string
	Email() string
	DisplayName() string
	PhoneNumber() string
	// IsNewUser reports whether the sign-in created the account.
	IsNewUser() bool
	// IDToken returns the provider-issued identity token, refreshing it
	// first when forceRefresh is set or the cached token is near expiry.
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Credential is a third-party credential obtained from an OAuth provider.
type Credential struct {
	ProviderID  string
	IDToken     string
	AccessToken string
	// RawNonce is the unhashed nonce whose SHA-256 was sent to the provider.
	RawNonce string
}

// Confirmation is a pending phone verification.
type Confirmation interface {
	Confirm(ctx context.Context, code string) (User, error)
}

// Provider is the identity-provider SDK surface used by the auth strategies.
type Provider interface {
	SignInWithEmailAndPassword(ctx context.Context, email, password string) (User, error)
	CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (User, error)
	SignInWithCredential(ctx context.Context, cred Credential) (User, error)
	SendVerificationCode(ctx context.Context, phoneNumber string) (Confirmation, error)
}
