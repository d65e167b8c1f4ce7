package auth

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/servicehub/internal/identity"
)

// EmailStrategy signs in, or creates an account, with email and password.
type EmailStrategy struct {
	provider identity.Provider

	Email    string
	Password string
	// CreateAccount registers a new account instead of signing in.
	CreateAccount bool
}

// NewEmailStrategy creates an email/password strategy.
func NewEmailStrategy(provider identity.Provider, email, password string, createAccount bool) *EmailStrategy {
	return &EmailStrategy{
		provider:      provider,
		Email:         strings.TrimSpace(email),
		Password:      password,
		CreateAccount: createAccount,
	}
}

// Name returns "email".
func (s *EmailStrategy) Name() string {
	return ProviderEmail
}

// ObtainCredential validates the email and password locally.
func (s *EmailStrategy) ObtainCredential(context.Context) (*Credential, error) {
	if err := ValidateEmail(s.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(s.Password); err != nil {
		return nil, err
	}
	return &Credential{Provider: ProviderEmail, Email: s.Email, Password: s.Password}, nil
}

// ExchangeForToken signs in (or signs up) and returns a fresh identity token.
func (s *EmailStrategy) ExchangeForToken(ctx context.Context, cred *Credential) (*Result, error) {
	var (
		user identity.User
		err  error
	)
	if s.CreateAccount {
		user, err = s.provider.CreateUserWithEmailAndPassword(ctx, cred.Email, cred.Password)
	} else {
		user, err = s.provider.SignInWithEmailAndPassword(ctx, cred.Email, cred.Password)
	}
	if err != nil {
		return nil, providerError(s.Name(), err)
	}

	result, err := resultFromUser(ctx, s.Name(), user)
	if err != nil {
		return nil, err
	}
	if result.Email == "" {
		result.Email = cred.Email
	}
	return result, nil
}
