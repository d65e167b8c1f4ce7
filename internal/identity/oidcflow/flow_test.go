package oidcflow

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/log"
)

const testClientID = "servicehub-test"

// fakeIssuer is a minimal OpenID provider: discovery, keys and token
// endpoints. The authorization endpoint is played by the test browser.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu            sync.Mutex
	challenge     string
	nonce         string
	overrideNonce string
	claims        jwt.MapClaims
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{t: t, key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/keys", f.keys)
	mux.HandleFunc("/token", f.token)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                f.server.URL,
		"authorization_endpoint":                f.server.URL + "/authorize",
		"token_endpoint":                        f.server.URL + "/token",
		"jwks_uri":                              f.server.URL + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) keys(w http.ResponseWriter, r *http.Request) {
	enc := base64.RawURLEncoding
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   enc.EncodeToString(f.key.N.Bytes()),
			"e":   enc.EncodeToString(big.NewInt(int64(f.key.E)).Bytes()),
		}},
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.PostForm.Get("code") != "good-code" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}
	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	assert.Equal(f.t, f.challenge, base64.RawURLEncoding.EncodeToString(sum[:]), "PKCE verifier must match the challenge")

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   f.server.URL,
		"aud":   testClientID,
		"sub":   "subject-1",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"email": "ada@example.com",
	}
	if f.nonce != "" {
		claims["nonce"] = f.nonce
	}
	if f.overrideNonce != "" {
		claims["nonce"] = f.overrideNonce
	}
	for k, v := range f.claims {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(f.key)
	require.NoError(f.t, err)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "access-1",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     signed,
	})
}

// browser returns a BrowserFunc that answers the authorization request with
// the given callback parameters.
func (f *fakeIssuer) browser(t *testing.T, params url.Values, formPost bool) BrowserFunc {
	return func(ctx context.Context, authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()

		f.mu.Lock()
		f.challenge = q.Get("code_challenge")
		f.nonce = q.Get("nonce")
		f.mu.Unlock()

		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.Equal(t, testClientID, q.Get("client_id"))

		values := url.Values{"state": {q.Get("state")}}
		for k, v := range params {
			values[k] = v
		}

		var resp *http.Response
		if formPost {
			assert.Equal(t, "form_post", q.Get("response_mode"))
			resp, err = http.PostForm(q.Get("redirect_uri"), values)
		} else {
			resp, err = http.Get(q.Get("redirect_uri") + "?" + values.Encode())
		}
		require.NoError(t, err)
		resp.Body.Close()
		return nil
	}
}

func newFlow(t *testing.T, issuer *fakeIssuer, cfg Config, browser BrowserFunc) *Flow {
	t.Helper()
	cfg.ClientID = testClientID
	cfg.Issuer = issuer.server.URL
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	flow, err := New(context.Background(), cfg, WithBrowser(browser), WithLogger(log.Nop()))
	require.NoError(t, err)
	return flow
}

func TestRunSuccess(t *testing.T) {
	issuer := newFakeIssuer(t)
	flow := newFlow(t, issuer, Config{}, issuer.browser(t, url.Values{"code": {"good-code"}}, false))

	result, err := flow.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.IDToken)
	assert.Equal(t, "access-1", result.AccessToken)
	assert.Equal(t, "subject-1", result.Subject)
	assert.Equal(t, "ada@example.com", result.Email)
	assert.Empty(t, result.RawNonce)
}

func TestRunWithNonceAndFormPost(t *testing.T) {
	issuer := newFakeIssuer(t)
	user := `{"name":{"firstName":"Ada","lastName":"Lovelace"},"email":"ada@example.com"}`
	var secretCalls int
	flow := newFlow(t, issuer, Config{
		Name:     "apple",
		UseNonce: true,
		FormPost: true,
		ClientSecretFunc: func(context.Context) (string, error) {
			secretCalls++
			return "minted-secret", nil
		},
	}, issuer.browser(t, url.Values{"code": {"good-code"}, "user": {user}}, true))

	result, err := flow.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.RawNonce)
	assert.Equal(t, HashNonce(result.RawNonce), issuer.nonce, "provider receives the hashed nonce")
	assert.Equal(t, "Ada Lovelace", result.Name)
	assert.Equal(t, 1, secretCalls)
}

func TestRunNonceMismatch(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.overrideNonce = "forged"
	flow := newFlow(t, issuer, Config{UseNonce: true}, issuer.browser(t, url.Values{"code": {"good-code"}}, false))

	_, err := flow.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeIdentityTokenRejected))
}

func TestRunUserDeclines(t *testing.T) {
	for _, code := range []string{"access_denied", "user_cancelled_authorize"} {
		t.Run(code, func(t *testing.T) {
			issuer := newFakeIssuer(t)
			flow := newFlow(t, issuer, Config{}, issuer.browser(t, url.Values{"error": {code}}, false))

			_, err := flow.Run(context.Background())
			assert.ErrorIs(t, err, errors.ErrCanceled)
		})
	}
}

func TestRunAbandoned(t *testing.T) {
	issuer := newFakeIssuer(t)
	ctx, cancel := context.WithCancel(context.Background())
	flow := newFlow(t, issuer, Config{}, func(context.Context, string) error {
		cancel()
		return nil
	})

	_, err := flow.Run(ctx)
	assert.ErrorIs(t, err, errors.ErrCanceled)
}

func TestRunProviderError(t *testing.T) {
	issuer := newFakeIssuer(t)
	flow := newFlow(t, issuer, Config{Name: "google"}, issuer.browser(t, url.Values{
		"error":             {"server_error"},
		"error_description": {"temporarily unavailable"},
	}, false))

	_, err := flow.Run(context.Background())
	require.True(t, errors.HasCode(err, errors.ErrCodeProvider))
	assert.Contains(t, err.Error(), "temporarily unavailable")
	assert.NotErrorIs(t, err, errors.ErrCanceled)
}

func TestRunBadCode(t *testing.T) {
	issuer := newFakeIssuer(t)
	flow := newFlow(t, issuer, Config{}, issuer.browser(t, url.Values{"code": {"stolen"}}, false))

	_, err := flow.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeProvider))
}

func TestValidateConfig(t *testing.T) {
	assert.True(t, errors.HasCode(validateConfig(Config{Name: "google", Issuer: "https://x"}), errors.ErrCodeConfigInvalid))
	assert.True(t, errors.HasCode(validateConfig(Config{Name: "google", ClientID: "c"}), errors.ErrCodeConfigInvalid))
	assert.True(t, errors.HasCode(validateConfig(Config{Name: "google", ClientID: "c", Issuer: "https://x", RedirectPort: 70000}), errors.ErrCodeConfigInvalid))
	assert.NoError(t, validateConfig(Config{Name: "google", ClientID: "c", Issuer: "https://x"}))
}

func TestAppleSecret(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	now := time.Now().Truncate(time.Second)

	secret := AppleSecret{ClientID: "com.example.app", TeamID: "TEAM123", KeyID: "KEY456", Key: key}
	signed, err := secret.Sign(now)
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(signed, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		assert.Equal(t, "KEY456", tok.Header["kid"])
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithAudience(AppleAudience))
	require.NoError(t, err)

	claims := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "TEAM123", claims.Issuer)
	assert.Equal(t, "com.example.app", claims.Subject)
	assert.True(t, claims.ExpiresAt.After(now))

	_, err = AppleSecret{ClientID: "x"}.Sign(now)
	assert.Error(t, err)
}

func TestHashNonce(t *testing.T) {
	got := HashNonce("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
	assert.False(t, strings.ContainsAny(got, "ABCDEF"))
}
