// Package auth provides the sign-in strategies of servicehub.
//
// It implements a pluggable strategy architecture supporting:
//   - Email/password (sign in or create account)
//   - Google via the OIDC loopback flow
//   - Sign in with Apple via the OIDC loopback flow with a nonce
//   - Phone number with an SMS one-time code
//
// Every strategy obtains a credential from the user, then exchanges it with
// the identity provider for an identity token. The session layer depends
// only on the Strategy interface.
package auth

import (
	"context"

	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/identity"
)

// Provider names reported by Strategy.Name.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
	ProviderApple  = "apple"
	ProviderPhone  = "phone"
)

// Strategy signs a user in with one identity provider.
//
// Implementations must report a user cancellation as an error matching
// errors.ErrCanceled so that SignIn can tell it apart from a failure.
type Strategy interface {
	// Name returns the provider name (e.g., "email", "google").
	Name() string

	// ObtainCredential collects the credential from the user or the
	// provider's consent page. Local validation happens here, before any
	// network call.
	ObtainCredential(ctx context.Context) (*Credential, error)

	// ExchangeForToken trades the credential for an identity token.
	ExchangeForToken(ctx context.Context, cred *Credential) (*Result, error)
}

// Credential is what a strategy collected from the user.
type Credential struct {
	// Provider is the strategy name that produced the credential.
	Provider string

	// Email and Password are set by the email strategy.
	Email    string
	Password string

	// IDToken, AccessToken and RawNonce are set by the OAuth strategies.
	IDToken     string
	AccessToken string
	RawNonce    string

	// Phone and Code are set by the phone strategy.
	Phone string
	Code  string

	// Name is the display name when the provider shared it.
	Name string
}

// Result is a successful sign-in.
type Result struct {
	// Token is the identity token the backend exchanges for a session.
	Token     string
	Email     string
	Name      string
	UID       string
	Phone     string
	IsNewUser bool
}

// SignIn runs a strategy to completion. It returns (nil, nil) when the user
// canceled; every other failure is returned as an error.
func SignIn(ctx context.Context, s Strategy) (*Result, error) {
	cred, err := s.ObtainCredential(ctx)
	if err != nil {
		if IsCanceled(err) {
			return nil, nil
		}
		return nil, err
	}

	result, err := s.ExchangeForToken(ctx, cred)
	if err != nil {
		if IsCanceled(err) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// IsCanceled reports whether err means the user dismissed the sign-in.
func IsCanceled(err error) bool {
	return errors.Is(err, errors.ErrCanceled)
}

// resultFromUser fetches a fresh identity token for user.
func resultFromUser(ctx context.Context, provider string, user identity.User) (*Result, error) {
	token, err := user.IDToken(ctx, true)
	if err != nil {
		return nil, providerError(provider, err)
	}
	return &Result{
		Token:     token,
		Email:     user.Email(),
		Name:      user.DisplayName(),
		UID:       user.UID(),
		Phone:     user.PhoneNumber(),
		IsNewUser: user.IsNewUser(),
	}, nil
}

// friendlyError is implemented by provider errors that carry a message meant
// for the user.
type friendlyError interface {
	error
	Friendly() string
}

// providerError wraps an identity-provider failure, surfacing the
// provider's user-facing message when it has one.
func providerError(provider string, err error) error {
	if errors.CodeOf(err) != "" {
		return err
	}
	var fe friendlyError
	if errors.As(err, &fe) {
		return errors.Wrap(errors.ErrCodeProvider, fe.Friendly(), err)
	}
	return errors.NewProviderError(provider, err)
}
