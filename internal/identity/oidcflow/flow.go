// Package oidcflow runs the OAuth2 authorization-code flow with PKCE for a
// command-line client: it listens on a loopback port, opens the system
// browser at the provider's consent page and verifies the returned ID token.
package oidcflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/log"
)

// DefaultTimeout bounds how long Run waits for the browser to come back.
const DefaultTimeout = 5 * time.Minute

const callbackPath = "/callback"

// Config configures one provider's flow.
type Config struct {
	// Name identifies the provider in logs and errors, e.g. "google".
	Name         string
	ClientID     string
	ClientSecret string
	// ClientSecretFunc mints the client secret at exchange time. It takes
	// precedence over ClientSecret.
	ClientSecretFunc func(ctx context.Context) (string, error)
	Issuer           string
	// RedirectPort is the loopback port; 0 picks a free port.
	RedirectPort int
	Scopes       []string
	// UseNonce sends SHA-256(raw nonce) to the provider and returns the raw
	// nonce in the Result.
	UseNonce bool
	// FormPost requests response_mode=form_post.
	FormPost bool
	Timeout  time.Duration
}

// Result is the outcome of a completed flow.
type Result struct {
	IDToken     string
	AccessToken string
	RawNonce    string
	Subject     string
	Email       string
	Name        string
}

// BrowserFunc opens url for the user.
type BrowserFunc func(ctx context.Context, url string) error

// Option configures a Flow.
type Option func(*Flow)

// WithBrowser replaces the system browser opener.
func WithBrowser(open BrowserFunc) Option {
	return func(f *Flow) {
		f.openBrowser = open
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithHTTPClient sets the client used for discovery, token exchange and key
// fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = hc
	}
}

// Flow is a configured authorization-code flow. It is safe to Run more than
// once, but not concurrently on a fixed RedirectPort.
type Flow struct {
	cfg         Config
	provider    *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	oauth2      oauth2.Config
	openBrowser BrowserFunc
	httpClient  *http.Client
	logger      *log.Logger
}

// New discovers the issuer's endpoints and prepares the flow.
func New(ctx context.Context, cfg Config, opts ...Option) (*Flow, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	f := &Flow{
		cfg:         cfg,
		openBrowser: OpenBrowser,
		logger:      log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "oidcflow", "provider", cfg.Name)

	provider, err := oidc.NewProvider(f.clientContext(ctx), cfg.Issuer)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProvider, fmt.Sprintf("failed to discover %s sign-in endpoints", cfg.Name), err).
			WithSuggestion("Check your network connection and the configured issuer")
	}

	f.provider = provider
	f.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	f.oauth2 = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}
	return f, nil
}

func validateConfig(cfg Config) error {
	if cfg.ClientID == "" {
		return errors.NewConfigError(cfg.Name+".client_id", "is required")
	}
	if cfg.Issuer == "" {
		return errors.NewConfigError(cfg.Name+".issuer", "is required")
	}
	if cfg.RedirectPort < 0 || cfg.RedirectPort > 65535 {
		return errors.NewConfigError(cfg.Name+".redirect_port", "must be between 0 and 65535")
	}
	return nil
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	if f.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, f.httpClient)
}

// callback is what the loopback handler received from the browser.
type callback struct {
	code     string
	errCode  string
	errDesc  string
	userJSON string
}

// Run performs one sign-in. A flow the user declines, or abandons until ctx
// is done or the timeout passes, returns an error matching
// errors.ErrCanceled.
func (f *Flow) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.cfg.RedirectPort))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProvider, "failed to start local callback listener", err).
			WithSuggestion("Choose a different redirect_port in the configuration")
	}
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	oauthCfg := f.oauth2
	oauthCfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authOpts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}

	var rawNonce, hashedNonce string
	if f.cfg.UseNonce {
		rawNonce = oauth2.GenerateVerifier()
		hashedNonce = HashNonce(rawNonce)
		authOpts = append(authOpts, oidc.Nonce(hashedNonce))
	}
	if f.cfg.FormPost {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("response_mode", "form_post"))
	}

	results := make(chan callback, 1)
	server := &http.Server{
		Handler:           f.callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		_ = server.Serve(listener)
	}()
	defer server.Close()

	authURL := oauthCfg.AuthCodeURL(state, authOpts...)
	f.logger.DebugContext(ctx, "opening browser for sign-in", "redirect_port", port)
	if err := f.openBrowser(ctx, authURL); err != nil {
		f.logger.WithError(err).Warn("could not open browser", "url", authURL)
	}

	var cb callback
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrCodeCanceled, fmt.Sprintf("%s sign-in was not completed", f.cfg.Name), ctx.Err())
	case cb = <-results:
	}

	if cb.errCode != "" {
		if isCancelCode(cb.errCode) {
			return nil, errors.New(errors.ErrCodeCanceled, fmt.Sprintf("%s sign-in canceled by user", f.cfg.Name))
		}
		msg := cb.errCode
		if cb.errDesc != "" {
			msg = cb.errDesc
		}
		return nil, errors.NewProviderError(f.cfg.Name, fmt.Errorf("%s", msg))
	}

	return f.exchange(ctx, oauthCfg, cb, verifier, rawNonce, hashedNonce)
}

func (f *Flow) exchange(ctx context.Context, oauthCfg oauth2.Config, cb callback, verifier, rawNonce, hashedNonce string) (*Result, error) {
	if f.cfg.ClientSecretFunc != nil {
		secret, err := f.cfg.ClientSecretFunc(ctx)
		if err != nil {
			return nil, errors.NewProviderError(f.cfg.Name, fmt.Errorf("client secret: %w", err))
		}
		oauthCfg.ClientSecret = secret
	}

	httpCtx := f.clientContext(ctx)
	if f.httpClient != nil {
		httpCtx = context.WithValue(httpCtx, oauth2.HTTPClient, f.httpClient)
	}

	token, err := oauthCfg.Exchange(httpCtx, cb.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, errors.NewProviderError(f.cfg.Name, fmt.Errorf("code exchange: %w", err))
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New(errors.ErrCodeIdentityTokenRejected, "no id_token in token response")
	}

	idToken, err := f.verifier.Verify(httpCtx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIdentityTokenRejected, "failed to verify ID token", err)
	}
	if hashedNonce != "" && idToken.Nonce != hashedNonce {
		return nil, errors.New(errors.ErrCodeIdentityTokenRejected, "ID token nonce does not match")
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIdentityTokenRejected, "failed to parse ID token claims", err)
	}

	result := &Result{
		IDToken:     rawIDToken,
		AccessToken: token.AccessToken,
		RawNonce:    rawNonce,
		Subject:     idToken.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
	}
	applyUserJSON(result, cb.userJSON)

	f.logger.DebugContext(ctx, "sign-in flow completed", "subject", idToken.Subject)
	return result, nil
}

func (f *Flow) callbackHandler(state string, results chan<- callback) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed callback", http.StatusBadRequest)
			return
		}
		if r.Form.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}

		cb := callback{
			code:     r.Form.Get("code"),
			errCode:  r.Form.Get("error"),
			errDesc:  r.Form.Get("error_description"),
			userJSON: r.Form.Get("user"),
		}
		if cb.code == "" && cb.errCode == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}

		select {
		case results <- cb:
		default:
			// A result was already delivered.
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if cb.errCode != "" {
			fmt.Fprint(w, closePage("Sign-in was not completed. You can close this window."))
			return
		}
		fmt.Fprint(w, closePage("Signed in. You can close this window and return to the terminal."))
	})
	return mux
}

func closePage(message string) string {
	return "<!doctype html><html><head><title>servicehub</title></head><body><p>" + message + "</p></body></html>"
}

// isCancelCode reports whether an authorization error means the user
// declined.
func isCancelCode(code string) bool {
	switch code {
	case "access_denied", "user_cancelled_authorize", "user_canceled":
		return true
	}
	return false
}

// HashNonce returns the hex SHA-256 of a raw nonce.
func HashNonce(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// applyUserJSON fills name and email from the "user" field Apple posts on
// the first authorization.
func applyUserJSON(result *Result, userJSON string) {
	if userJSON == "" {
		return
	}
	var user struct {
		Name struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return
	}
	if result.Name == "" {
		name := user.Name.FirstName
		if user.Name.LastName != "" {
			if name != "" {
				name += " "
			}
			name += user.Name.LastName
		}
		result.Name = name
	}
	if result.Email == "" {
		result.Email = user.Email
	}
}
