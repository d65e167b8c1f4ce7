package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/servicehub/internal/api"
	"github.com/felixgeelhaar/servicehub/internal/auth"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/httpclient"
	"github.com/felixgeelhaar/servicehub/internal/log"
	"github.com/felixgeelhaar/servicehub/internal/metrics"
	"github.com/felixgeelhaar/servicehub/internal/session"
	"github.com/felixgeelhaar/servicehub/internal/tokenstore"
)

// backend is a fake servicehub API.
type backend struct {
	mu         sync.Mutex
	validToken string
	loginCalls int
	lastLogin  api.FirebaseLoginRequest
	meStatus   int
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		write := func(status int, v any) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(v)
		}
		authorized := r.Header.Get("Authorization") == "Bearer "+b.validToken

		switch r.URL.Path {
		case "/api/auth/firebase-login":
			b.loginCalls++
			require.NoError(t, json.NewDecoder(r.Body).Decode(&b.lastLogin))
			b.validToken = "backend-" + b.lastLogin.IDToken
			write(http.StatusOK, api.LoginResponse{Token: b.validToken, User: api.User{ID: "u1", Email: "ada@example.com", DisplayName: "Ada"}})
		case "/api/auth/verify-otp-simple":
			var req api.VerifyOTPRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.OTP != "123456" {
				write(http.StatusBadRequest, map[string]string{"detail": "Invalid OTP"})
				return
			}
			b.validToken = "backend-otp"
			write(http.StatusOK, api.LoginResponse{Token: b.validToken, User: api.User{ID: "u2", PhoneNumber: req.PhoneNumber}, IsNewUser: true})
		case "/api/users/me":
			if b.meStatus != 0 {
				write(b.meStatus, map[string]string{"detail": "unavailable"})
				return
			}
			if !authorized {
				write(http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
				return
			}
			if r.Method == http.MethodPatch {
				var update api.UserUpdate
				require.NoError(t, json.NewDecoder(r.Body).Decode(&update))
				write(http.StatusOK, api.User{ID: "u1", DisplayName: *update.DisplayName})
				return
			}
			write(http.StatusOK, api.User{ID: "u1", Email: "ada@example.com", DisplayName: "Ada", IsProvider: true})
		case "/api/users/me/profile":
			if !authorized {
				write(http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
				return
			}
			if r.Method == http.MethodPut {
				var p api.Profile
				require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
				write(http.StatusOK, p)
				return
			}
			write(http.StatusOK, api.Profile{UserID: "u1", Bio: "Electrician"})
		case "/api/auth/change-password-with-token":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

// strategy is a scripted auth.Strategy.
type strategy struct {
	result *auth.Result
	err    error
}

func (s *strategy) Name() string { return "google" }

func (s *strategy) ObtainCredential(context.Context) (*auth.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &auth.Credential{Provider: "google"}, nil
}

func (s *strategy) ExchangeForToken(context.Context, *auth.Credential) (*auth.Result, error) {
	return s.result, nil
}

type fixture struct {
	backend  *backend
	store    tokenstore.Store
	sessions *session.Manager
	metrics  *metrics.Metrics
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemoryStore()
	sessions := session.NewManager(store, session.WithLogger(log.Nop()))
	cfg := &httpclient.Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second, ConnectTimeout: time.Second, RetryDelay: time.Millisecond}
	client := api.NewClient(httpclient.New(cfg, sessions, httpclient.WithLogger(log.Nop())))
	_, m := metrics.NewRegistry()

	ctrl := New(sessions, client, WithLogger(log.Nop()), WithMetrics(m))
	t.Cleanup(ctrl.Close)
	return &fixture{backend: b, store: store, sessions: sessions, metrics: m, ctrl: ctrl}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ctrl.Login(ctx, &strategy{result: &auth.Result{Token: "idtok", Name: "Ada"}})
	require.NoError(t, err)

	state := f.ctrl.State()
	assert.Equal(t, "backend-idtok", state.Token)
	assert.Equal(t, "u1", state.User.ID)
	assert.False(t, state.Loading)
	assert.Empty(t, state.ErrorMessage)

	stored, ok, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "backend-idtok", stored)
	assert.Equal(t, "google", f.backend.lastLogin.Provider)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SignIns.WithLabelValues("google", "success")))
}

func TestLoginCanceled(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.Login(context.Background(), &strategy{err: errors.ErrCanceled})
	require.NoError(t, err)

	state := f.ctrl.State()
	assert.True(t, state.Canceled)
	assert.Empty(t, state.ErrorMessage, "cancellation is not a failure message")
	assert.False(t, state.Authenticated())
	assert.Zero(t, f.backend.loginCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SignIns.WithLabelValues("google", "canceled")))
}

func TestLoginFailure(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.Login(context.Background(), &strategy{err: errors.New(errors.ErrCodeProvider, "The email or password is incorrect.")})
	require.Error(t, err)

	state := f.ctrl.State()
	assert.Equal(t, "The email or password is incorrect.", state.ErrorMessage)
	assert.False(t, state.Canceled)

	f.ctrl.ClearError()
	assert.Empty(t, f.ctrl.State().ErrorMessage)
}

func TestLoginStorageFailureKeepsSignedOut(t *testing.T) {
	f := newFixture(t)
	f.sessions = session.NewManager(readOnlyStore{f.store}, session.WithLogger(log.Nop()))
	f.ctrl = New(f.sessions, f.ctrl.api, WithLogger(log.Nop()))
	defer f.ctrl.Close()

	err := f.ctrl.Login(context.Background(), &strategy{result: &auth.Result{Token: "idtok"}})
	assert.Equal(t, errors.ErrCodeStorageUnavailable, errors.CodeOf(err))
	assert.False(t, f.ctrl.State().Authenticated())
	assert.NotEmpty(t, f.ctrl.State().ErrorMessage)
}

type readOnlyStore struct {
	tokenstore.Store
}

func (readOnlyStore) Set(context.Context, string) error {
	return errors.NewStorageError("set", fmt.Errorf("read-only file system"))
}

func TestBootstrap(t *testing.T) {
	t.Run("restores session and profile", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.backend.validToken = "persisted"
		require.NoError(t, f.store.Set(ctx, "persisted"))

		require.NoError(t, f.ctrl.Bootstrap(ctx))

		state := f.ctrl.State()
		assert.Equal(t, "persisted", state.Token)
		assert.Equal(t, "Ada", state.User.DisplayName)
		require.NotNil(t, state.Profile)
		assert.Equal(t, "Electrician", state.Profile.Bio)
		assert.Equal(t, "u1", f.sessions.User().ID)
	})

	t.Run("rejected token signs out", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.backend.validToken = "current"
		require.NoError(t, f.store.Set(ctx, "stale"))

		err := f.ctrl.Bootstrap(ctx)
		assert.True(t, httpclient.IsAuthFailure(err))

		state := f.ctrl.State()
		assert.False(t, state.Authenticated())
		assert.Equal(t, SessionExpiredMessage, state.ErrorMessage)
		_, ok, _ := f.store.Get(ctx)
		assert.False(t, ok, "stale token removed from storage")
	})

	t.Run("server failure keeps the session", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.backend.meStatus = http.StatusServiceUnavailable
		require.NoError(t, f.store.Set(ctx, "persisted"))

		err := f.ctrl.Bootstrap(ctx)
		require.Error(t, err)
		assert.True(t, f.ctrl.State().Authenticated())
		assert.NotEmpty(t, f.ctrl.State().ErrorMessage)
	})

	t.Run("storage failure forces logout", func(t *testing.T) {
		f := newFixture(t)
		sessions := session.NewManager(brokenStore{}, session.WithLogger(log.Nop()))
		ctrl := New(sessions, f.ctrl.api, WithLogger(log.Nop()))
		defer ctrl.Close()

		err := ctrl.Bootstrap(context.Background())
		assert.Equal(t, errors.ErrCodeStorageUnavailable, errors.CodeOf(err))
		assert.False(t, ctrl.State().Authenticated())
		assert.NotEmpty(t, ctrl.State().ErrorMessage)
	})

	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ctrl.Bootstrap(context.Background()))
		assert.False(t, f.ctrl.State().Authenticated())
		assert.True(t, f.sessions.Snapshot().Initialized)
	})
}

type brokenStore struct{}

func (brokenStore) Get(context.Context) (string, bool, error) {
	return "", false, errors.NewStorageError("get", fmt.Errorf("corrupted"))
}
func (brokenStore) Set(context.Context, string) error { return nil }
func (brokenStore) Remove(context.Context) error      { return nil }

func TestVerifyOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ctrl.VerifyOTP(ctx, "+15555550100", "12")
	assert.Equal(t, errors.ErrCodeInvalidOTP, errors.CodeOf(err))

	err = f.ctrl.VerifyOTP(ctx, "+15555550100", "000000")
	var apiErr *httpclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid OTP", f.ctrl.State().ErrorMessage)

	require.NoError(t, f.ctrl.VerifyOTP(ctx, "+1 555 555 0100", "123456"))
	assert.Equal(t, "backend-otp", f.sessions.Token())
	assert.True(t, f.sessions.User().IsNewUser)
}

func TestUserAndProfileUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	name := "Ada L."
	err := f.ctrl.UserUpdate(ctx, api.UserUpdate{DisplayName: &name})
	assert.Equal(t, errors.ErrCodeNotSignedIn, errors.CodeOf(err))

	require.NoError(t, f.ctrl.Login(ctx, &strategy{result: &auth.Result{Token: "idtok"}}))

	require.NoError(t, f.ctrl.UserUpdate(ctx, api.UserUpdate{DisplayName: &name}))
	assert.Equal(t, "Ada L.", f.ctrl.State().User.DisplayName)
	assert.Equal(t, "Ada L.", f.sessions.User().DisplayName)

	require.NoError(t, f.ctrl.ProfileUpdate(ctx, api.Profile{Bio: "Carpenter"}))
	assert.Equal(t, "Carpenter", f.ctrl.State().Profile.Bio)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, errors.ErrCodeWeakPassword, errors.CodeOf(f.ctrl.ChangePassword(ctx, "reset", "123")))
	assert.Equal(t, errors.ErrCodeMissingField, errors.CodeOf(f.ctrl.ChangePassword(ctx, "", "secret1")))
	assert.NoError(t, f.ctrl.ChangePassword(ctx, "reset", "secret1"))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Login(ctx, &strategy{result: &auth.Result{Token: "idtok"}}))

	require.NoError(t, f.ctrl.Logout(ctx))
	state := f.ctrl.State()
	assert.False(t, state.Authenticated())
	assert.Nil(t, state.User)
	assert.False(t, f.sessions.IsAuthenticated())

	assert.NoError(t, f.ctrl.Logout(ctx), "logout is idempotent")
}

func TestMirrorsExternalSessionChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Login(ctx, &strategy{result: &auth.Result{Token: "idtok"}}))

	require.NoError(t, f.sessions.ClearSession(ctx))
	state := f.ctrl.State()
	assert.Empty(t, state.Token)
	assert.Nil(t, state.User)
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)

	var (
		mu     sync.Mutex
		states []State
	)
	unsubscribe := f.ctrl.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, f.ctrl.Login(context.Background(), &strategy{result: &auth.Result{Token: "idtok"}}))
	unsubscribe()
	f.ctrl.ClearError()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.True(t, states[0].Loading, "loading is published first")
	last := states[len(states)-1]
	assert.False(t, last.Loading)
	assert.True(t, last.Authenticated())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "enter a valid email address", Message(auth.ValidateEmail("x")))
	assert.Equal(t, "Invalid OTP", Message(&httpclient.APIError{StatusCode: 400, Message: "Invalid OTP"}))
	assert.Equal(t, "boom", Message(fmt.Errorf("boom")))
}
