package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/identity"
	"github.com/felixgeelhaar/servicehub/internal/identity/oidcflow"
	"github.com/felixgeelhaar/servicehub/internal/log"
)

// FlowRunner runs a browser sign-in. *oidcflow.Flow implements it.
type FlowRunner interface {
	Run(ctx context.Context) (*oidcflow.Result, error)
}

// FlowFactory builds the browser flow on first use.
type FlowFactory func(ctx context.Context, cfg oidcflow.Config) (FlowRunner, error)

// DefaultFlowFactory discovers the issuer with oidcflow.New.
func DefaultFlowFactory(opts ...oidcflow.Option) FlowFactory {
	return func(ctx context.Context, cfg oidcflow.Config) (FlowRunner, error) {
		return oidcflow.New(ctx, cfg, opts...)
	}
}

// OAuthOption configures the Google and Apple strategies.
type OAuthOption func(*oauthStrategy)

// WithFlowFactory replaces how the browser flow is built.
func WithFlowFactory(factory FlowFactory) OAuthOption {
	return func(s *oauthStrategy) {
		s.newFlow = factory
	}
}

// WithOAuthLogger sets the logger.
func WithOAuthLogger(logger *log.Logger) OAuthOption {
	return func(s *oauthStrategy) {
		s.logger = logger
	}
}

// oauthStrategy is the shared machinery of the browser-based strategies:
// one-time configuration, a lazily built flow and the credential exchange.
type oauthStrategy struct {
	name       string
	providerID string
	provider   identity.Provider
	newFlow    FlowFactory
	logger     *log.Logger

	mu         sync.Mutex
	configured bool
	key        string
	flowCfg    oidcflow.Config
	flow       FlowRunner
}

func newOAuthStrategy(name, providerID string, provider identity.Provider, opts []OAuthOption) *oauthStrategy {
	s := &oauthStrategy{
		name:       name,
		providerID: providerID,
		provider:   provider,
		newFlow:    DefaultFlowFactory(),
		logger:     log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth", "provider", name)
	return s
}

// configure records the flow configuration once. key identifies the static
// parameters; configuring again with the same key is a no-op.
func (s *oauthStrategy) configure(cfg oidcflow.Config, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configured {
		if s.key == key {
			return nil
		}
		return errors.New(errors.ErrCodeAlreadyConfigured,
			fmt.Sprintf("%s sign-in is already configured with different parameters", s.name))
	}
	s.flowCfg = cfg
	s.key = key
	s.configured = true
	s.logger.Debug("sign-in configured", "client_id", cfg.ClientID)
	return nil
}

func (s *oauthStrategy) runner(ctx context.Context) (FlowRunner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return nil, errors.New(errors.ErrCodeProviderNotConfigured, fmt.Sprintf("%s sign-in is not configured", s.name)).
			WithSuggestion(fmt.Sprintf("Set %s.client_id in config.yaml", s.name))
	}
	if s.flow == nil {
		flow, err := s.newFlow(ctx, s.flowCfg)
		if err != nil {
			return nil, err
		}
		s.flow = flow
	}
	return s.flow, nil
}

func (s *oauthStrategy) obtain(ctx context.Context) (*Credential, error) {
	flow, err := s.runner(ctx)
	if err != nil {
		return nil, err
	}
	result, err := flow.Run(ctx)
	if err != nil {
		if IsCanceled(err) {
			s.logger.Debug("sign-in canceled by user")
		}
		return nil, err
	}
	return &Credential{
		Provider:    s.name,
		Email:       result.Email,
		IDToken:     result.IDToken,
		AccessToken: result.AccessToken,
		RawNonce:    result.RawNonce,
		Name:        result.Name,
	}, nil
}

func (s *oauthStrategy) exchange(ctx context.Context, cred *Credential) (*Result, error) {
	user, err := s.provider.SignInWithCredential(ctx, identity.Credential{
		ProviderID:  s.providerID,
		IDToken:     cred.IDToken,
		AccessToken: cred.AccessToken,
		RawNonce:    cred.RawNonce,
	})
	if err != nil {
		return nil, providerError(s.name, err)
	}

	result, err := resultFromUser(ctx, s.name, user)
	if err != nil {
		return nil, err
	}
	// Apple shares the name and email only on the first authorization.
	if result.Email == "" {
		result.Email = cred.Email
	}
	if result.Name == "" {
		result.Name = cred.Name
	}
	return result, nil
}

// GoogleStrategy signs in with a Google account.
type GoogleStrategy struct {
	*oauthStrategy
}

// NewGoogleStrategy creates an unconfigured Google strategy.
func NewGoogleStrategy(provider identity.Provider, opts ...OAuthOption) *GoogleStrategy {
	return &GoogleStrategy{oauthStrategy: newOAuthStrategy(ProviderGoogle, identity.ProviderGoogle, provider, opts)}
}

// Configure sets the OAuth client once. Calling it again with the same
// configuration is a no-op; different parameters return an
// AlreadyConfigured error.
func (g *GoogleStrategy) Configure(cfg config.GoogleConfig) error {
	flowCfg := oidcflow.Config{
		Name:         ProviderGoogle,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Issuer:       cfg.Issuer,
		RedirectPort: cfg.RedirectPort,
	}
	return g.configure(flowCfg, fmt.Sprintf("%s|%s|%s|%d", cfg.ClientID, cfg.ClientSecret, cfg.Issuer, cfg.RedirectPort))
}

// Name returns "google".
func (g *GoogleStrategy) Name() string { return ProviderGoogle }

// ObtainCredential runs the browser consent flow.
func (g *GoogleStrategy) ObtainCredential(ctx context.Context) (*Credential, error) {
	return g.obtain(ctx)
}

// ExchangeForToken signs in to the identity provider with the Google ID token.
func (g *GoogleStrategy) ExchangeForToken(ctx context.Context, cred *Credential) (*Result, error) {
	return g.exchange(ctx, cred)
}

// AppleStrategy signs in with an Apple ID.
type AppleStrategy struct {
	*oauthStrategy
	now func() time.Time
}

// NewAppleStrategy creates an unconfigured Apple strategy.
func NewAppleStrategy(provider identity.Provider, opts ...OAuthOption) *AppleStrategy {
	return &AppleStrategy{
		oauthStrategy: newOAuthStrategy(ProviderApple, identity.ProviderApple, provider, opts),
		now:           time.Now,
	}
}

// Configure sets the Services ID and signing key once. Calling it again
// with the same configuration is a no-op; different parameters return an
// AlreadyConfigured error.
func (a *AppleStrategy) Configure(cfg config.AppleConfig) error {
	flowCfg := oidcflow.Config{
		Name:         ProviderApple,
		ClientID:     cfg.ClientID,
		Issuer:       cfg.Issuer,
		RedirectPort: cfg.RedirectPort,
		Scopes:       []string{"openid", "email", "name"},
		UseNonce:     true,
		FormPost:     true,
	}
	if cfg.PrivateKeyPath != "" {
		flowCfg.ClientSecretFunc = a.clientSecret(cfg)
	}

	key := fmt.Sprintf("%s|%s|%s|%s|%s|%d", cfg.ClientID, cfg.TeamID, cfg.KeyID, cfg.PrivateKeyPath, cfg.Issuer, cfg.RedirectPort)
	return a.configure(flowCfg, key)
}

func (a *AppleStrategy) clientSecret(cfg config.AppleConfig) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		key, err := oidcflow.LoadAppleKey(cfg.PrivateKeyPath)
		if err != nil {
			return "", err
		}
		secret := oidcflow.AppleSecret{ClientID: cfg.ClientID, TeamID: cfg.TeamID, KeyID: cfg.KeyID, Key: key}
		return secret.Sign(a.now())
	}
}

// Name returns "apple".
func (a *AppleStrategy) Name() string { return ProviderApple }

// ObtainCredential runs the browser consent flow with a fresh nonce.
func (a *AppleStrategy) ObtainCredential(ctx context.Context) (*Credential, error) {
	return a.obtain(ctx)
}

// ExchangeForToken signs in to the identity provider with the Apple ID token
// and the raw nonce.
func (a *AppleStrategy) ExchangeForToken(ctx context.Context, cred *Credential) (*Result, error) {
	if cred.RawNonce == "" {
		return nil, errors.New(errors.ErrCodeMissingField, "apple credential is missing its nonce")
	}
	return a.exchange(ctx, cred)
}
