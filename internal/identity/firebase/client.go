// Package firebase implements identity.Provider on the Firebase Identity
// Toolkit and Secure Token REST APIs.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/identity"
	"github.com/felixgeelhaar/servicehub/internal/log"
)

// Client calls the Firebase Auth REST endpoints with a project API key.
type Client struct {
	apiKey         string
	identityURL    string
	secureTokenURL string
	recaptchaToken string
	httpClient     *http.Client
	logger         *log.Logger
	now            func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client from the firebase configuration section.
func New(cfg config.FirebaseConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeProviderNotConfigured, "firebase API key is not configured").
			WithSuggestion("Set firebase.api_key in config.yaml or SERVICEHUB_FIREBASE_API_KEY")
	}

	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = 30 * time.Second

	c := &Client{
		apiKey:         cfg.APIKey,
		identityURL:    strings.TrimRight(cfg.IdentityToolkitURL, "/"),
		secureTokenURL: strings.TrimRight(cfg.SecureTokenURL, "/"),
		recaptchaToken: cfg.RecaptchaToken,
		httpClient:     hc,
		logger:         log.DefaultLogger(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "firebase")
	return c, nil
}

var _ identity.Provider = (*Client)(nil)

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// signInResponse is the common shape of the accounts:* sign-in responses.
type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	FullName     string `json:"fullName"`
	PhoneNumber  string `json:"phoneNumber"`
	IsNewUser    bool   `json:"isNewUser"`
}

// SignInWithEmailAndPassword signs in an existing email account.
func (c *Client) SignInWithEmailAndPassword(ctx context.Context, email, password string) (identity.User, error) {
	var resp signInResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := c.post(ctx, "accounts:signInWithPassword", req, &resp); err != nil {
		return nil, err
	}
	return c.newUser(resp, false), nil
}

// CreateUserWithEmailAndPassword creates an email account and signs it in.
func (c *Client) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (identity.User, error) {
	var resp signInResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := c.post(ctx, "accounts:signUp", req, &resp); err != nil {
		return nil, err
	}
	return c.newUser(resp, true), nil
}

type idpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

// SignInWithCredential signs in with an OAuth credential from Google or Apple.
func (c *Client) SignInWithCredential(ctx context.Context, cred identity.Credential) (identity.User, error) {
	if cred.ProviderID == "" || (cred.IDToken == "" && cred.AccessToken == "") {
		return nil, errors.New(errors.ErrCodeMissingField, "credential requires a provider and a token")
	}

	form := url.Values{"providerId": {cred.ProviderID}}
	if cred.IDToken != "" {
		form.Set("id_token", cred.IDToken)
	}
	if cred.AccessToken != "" {
		form.Set("access_token", cred.AccessToken)
	}
	if cred.RawNonce != "" {
		form.Set("nonce", cred.RawNonce)
	}

	var resp signInResponse
	req := idpRequest{
		PostBody:            form.Encode(),
		RequestURI:          "http://localhost",
		ReturnIdpCredential: true,
		ReturnSecureToken:   true,
	}
	if err := c.post(ctx, "accounts:signInWithIdp", req, &resp); err != nil {
		return nil, err
	}
	if resp.DisplayName == "" {
		resp.DisplayName = resp.FullName
	}
	return c.newUser(resp, resp.IsNewUser), nil
}

// SendVerificationCode sends an SMS code to phoneNumber.
func (c *Client) SendVerificationCode(ctx context.Context, phoneNumber string) (identity.Confirmation, error) {
	req := map[string]string{"phoneNumber": phoneNumber}
	if c.recaptchaToken != "" {
		req["recaptchaToken"] = c.recaptchaToken
	}

	var resp struct {
		SessionInfo string `json:"sessionInfo"`
	}
	if err := c.post(ctx, "accounts:sendVerificationCode", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionInfo == "" {
		return nil, errors.New(errors.ErrCodeBadResponse, "firebase returned no verification session")
	}
	c.logger.DebugContext(ctx, "verification code sent", "session_fp", log.Fingerprint(resp.SessionInfo))
	return &confirmation{client: c, sessionInfo: resp.SessionInfo}, nil
}

type confirmation struct {
	client      *Client
	sessionInfo string
}

// Confirm completes phone sign-in with the SMS code.
func (cf *confirmation) Confirm(ctx context.Context, code string) (identity.User, error) {
	req := map[string]string{"sessionInfo": cf.sessionInfo, "code": code}
	var resp signInResponse
	if err := cf.client.post(ctx, "accounts:signInWithPhoneNumber", req, &resp); err != nil {
		return nil, err
	}
	return cf.client.newUser(resp, resp.IsNewUser), nil
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// refresh exchanges a refresh token for a fresh identity token.
func (c *Client) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	endpoint := fmt.Sprintf("%s/v1/token?key=%s", c.secureTokenURL, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/v1/%s?key=%s", c.identityURL, method, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "calling identity toolkit", "method", method)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("firebase request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read firebase response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.ErrCodeBadResponse, "failed to decode firebase response", err)
	}
	return nil
}

func (c *Client) newUser(resp signInResponse, isNew bool) *User {
	return &User{
		client:       c,
		uid:          resp.LocalID,
		email:        resp.Email,
		displayName:  resp.DisplayName,
		phoneNumber:  resp.PhoneNumber,
		isNew:        isNew,
		idToken:      resp.IDToken,
		refreshToken: resp.RefreshToken,
		expiresAt:    c.now().Add(parseExpiresIn(resp.ExpiresIn)),
	}
}

// parseExpiresIn parses Firebase's lifetime in seconds. Unknown values are
// treated as already expired so the next IDToken call refreshes.
func parseExpiresIn(s string) time.Duration {
	d, err := time.ParseDuration(s + "s")
	if err != nil {
		return 0
	}
	return d
}
