// Package account is the auth controller the user interface drives.
//
// It exposes login, logout, userUpdate and profileUpdate, and publishes the
// current {user, profile, token, loading, error} state for rendering. The
// interface never writes session state directly: every change goes through
// the session manager, and the controller mirrors the manager's token.
package account

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/servicehub/internal/api"
	"github.com/felixgeelhaar/servicehub/internal/auth"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/httpclient"
	"github.com/felixgeelhaar/servicehub/internal/log"
	"github.com/felixgeelhaar/servicehub/internal/metrics"
	"github.com/felixgeelhaar/servicehub/internal/session"
)

// SessionExpiredMessage is shown after the backend rejected the token.
const SessionExpiredMessage = "Your session has expired. Please sign in again."

// State is what the user interface renders.
type State struct {
	User    *api.User
	Profile *api.Profile
	Token   string
	Loading bool
	// ErrorMessage is a user-facing failure. It stays set until ClearError.
	ErrorMessage string
	// Canceled is set when the user dismissed the last sign-in.
	Canceled bool
}

// Authenticated reports whether a session token is held.
func (s State) Authenticated() bool {
	return s.Token != ""
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics records sign-ins and transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller coordinates sign-in, the backend session and the user profile.
type Controller struct {
	sessions *session.Manager
	api      *api.Client
	metrics  *metrics.Metrics
	logger   *log.Logger

	mu    sync.Mutex
	state State

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int

	unsubscribe func()
}

// New creates a controller over the session manager and backend client.
func New(sessions *session.Manager, client *api.Client, opts ...Option) *Controller {
	c := &Controller{
		sessions: sessions,
		api:      client,
		logger:   log.DefaultLogger(),
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "account")
	c.state.Token = sessions.Token()
	c.unsubscribe = sessions.Subscribe(c.mirror)
	return c
}

// Close detaches the controller from the session manager.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// mirror follows the session manager. Snapshots arrive in transition order.
func (c *Controller) mirror(s session.State) {
	c.update(func(st *State) {
		if st.Token != s.Token {
			st.User = nil
			st.Profile = nil
		}
		st.Token = s.Token
	})
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to receive the state after every change.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	state := c.state
	c.mu.Unlock()

	c.subsMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, f := range c.subs {
		fns = append(fns, f)
	}
	c.subsMu.Unlock()

	for _, f := range fns {
		f(state)
	}
}

func (c *Controller) setLoading(loading bool) {
	c.update(func(s *State) { s.Loading = loading })
}

// Bootstrap restores the persisted session and loads the user. A storage
// failure forces a logout; a rejected token signs the user out.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.setLoading(true)
	defer c.setLoading(false)

	if err := c.sessions.Initialize(ctx); err != nil {
		c.logger.WithError(err).Warn("could not restore session, signing out")
		c.forceLogout(ctx)
		c.fail(err)
		c.metrics.ObserveTransition("bootstrap", false)
		return err
	}
	c.metrics.ObserveTransition("bootstrap", true)

	if !c.sessions.IsAuthenticated() {
		return nil
	}
	return c.loadUser(ctx)
}

// Refresh reloads the user and profile from the backend.
func (c *Controller) Refresh(ctx context.Context) error {
	if !c.sessions.IsAuthenticated() {
		return errors.NewNotSignedInError()
	}
	c.setLoading(true)
	defer c.setLoading(false)
	return c.loadUser(ctx)
}

func (c *Controller) loadUser(ctx context.Context) error {
	me, err := c.api.Me(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	c.sessions.UpdateUser(sessionUser(me, false))

	var profile *api.Profile
	if me.IsProvider {
		profile, err = c.api.MyProfile(ctx)
		if err != nil {
			c.logger.WithError(err).Debug("provider profile unavailable")
			profile = nil
		}
	}

	c.update(func(s *State) {
		s.User = me
		s.Profile = profile
	})
	return nil
}

// Login signs in with strategy and exchanges the identity token for a
// backend session. A canceled sign-in sets State.Canceled and returns nil.
func (c *Controller) Login(ctx context.Context, strategy auth.Strategy) error {
	c.update(func(s *State) {
		s.Loading = true
		s.Canceled = false
		s.ErrorMessage = ""
	})
	defer c.setLoading(false)

	provider := strategy.Name()
	result, err := auth.SignIn(ctx, strategy)
	if err != nil {
		c.metrics.ObserveSignIn(provider, "failure")
		c.metrics.ObserveError(string(errors.CodeOf(err)), "auth")
		return c.HandleError(ctx, err)
	}
	if result == nil {
		c.logger.Info("sign-in canceled", "provider", provider)
		c.metrics.ObserveSignIn(provider, "canceled")
		c.update(func(s *State) { s.Canceled = true })
		return nil
	}

	resp, err := c.api.FirebaseLogin(ctx, api.FirebaseLoginRequest{
		IDToken:  result.Token,
		Provider: provider,
		Name:     result.Name,
		Phone:    result.Phone,
	})
	if err != nil {
		c.metrics.ObserveSignIn(provider, "failure")
		return c.HandleError(ctx, err)
	}

	if err := c.establish(ctx, resp, result.IsNewUser); err != nil {
		c.metrics.ObserveSignIn(provider, "failure")
		return err
	}
	c.metrics.ObserveSignIn(provider, "success")
	c.logger.Info("signed in", "provider", provider, "user_id", resp.User.ID, "new_user", resp.IsNewUser || result.IsNewUser)
	return nil
}

// VerifyOTP completes the backend-managed phone sign-in.
func (c *Controller) VerifyOTP(ctx context.Context, phone, code string) error {
	phone = auth.NormalizePhone(phone)
	if err := auth.ValidatePhone(phone); err != nil {
		return c.fail(err)
	}
	if err := auth.ValidateOTP(code); err != nil {
		return c.fail(err)
	}

	c.setLoading(true)
	defer c.setLoading(false)

	resp, err := c.api.VerifyOTPSimple(ctx, phone, code)
	if err != nil {
		c.metrics.ObserveSignIn(auth.ProviderPhone, "failure")
		return c.HandleError(ctx, err)
	}
	if err := c.establish(ctx, resp, false); err != nil {
		c.metrics.ObserveSignIn(auth.ProviderPhone, "failure")
		return err
	}
	c.metrics.ObserveSignIn(auth.ProviderPhone, "success")
	return nil
}

// establish stores the backend session and publishes the user.
func (c *Controller) establish(ctx context.Context, resp *api.LoginResponse, newUser bool) error {
	user := resp.User
	err := c.sessions.SetSession(ctx, resp.Token, sessionUser(&user, resp.IsNewUser || newUser))
	c.metrics.ObserveTransition("login", err == nil)
	if err != nil {
		return c.fail(err)
	}
	c.update(func(s *State) {
		s.User = &user
		s.ErrorMessage = ""
	})
	return nil
}

// ChangePassword sets a new password with a reset token.
func (c *Controller) ChangePassword(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return c.fail(errors.New(errors.ErrCodeMissingField, "reset token is required"))
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return c.fail(err)
	}

	c.setLoading(true)
	defer c.setLoading(false)

	if err := c.api.ChangePasswordWithToken(ctx, resetToken, newPassword); err != nil {
		return c.HandleError(ctx, err)
	}
	return nil
}

// UserUpdate changes the signed-in user's account.
func (c *Controller) UserUpdate(ctx context.Context, update api.UserUpdate) error {
	if !c.sessions.IsAuthenticated() {
		return c.fail(errors.NewNotSignedInError())
	}
	c.setLoading(true)
	defer c.setLoading(false)

	user, err := c.api.UpdateMe(ctx, update)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	c.sessions.UpdateUser(sessionUser(user, false))
	c.update(func(s *State) { s.User = user })
	return nil
}

// ProfileUpdate replaces the signed-in user's provider profile.
func (c *Controller) ProfileUpdate(ctx context.Context, profile api.Profile) error {
	if !c.sessions.IsAuthenticated() {
		return c.fail(errors.NewNotSignedInError())
	}
	c.setLoading(true)
	defer c.setLoading(false)

	updated, err := c.api.UpdateProfile(ctx, profile)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	c.update(func(s *State) { s.Profile = updated })
	return nil
}

// Logout clears the session. Memory is cleared even if the persisted token
// could not be removed; that storage error is returned.
func (c *Controller) Logout(ctx context.Context) error {
	err := c.sessions.ClearSession(ctx)
	c.metrics.ObserveTransition("logout", err == nil)
	c.update(func(s *State) {
		s.User = nil
		s.Profile = nil
		s.Token = ""
		s.Loading = false
	})
	if err != nil {
		c.logger.WithError(err).Warn("signed out, but the stored token could not be removed")
	}
	return err
}

func (c *Controller) forceLogout(ctx context.Context) {
	if err := c.Logout(ctx); err != nil {
		c.logger.WithError(err).Debug("forced logout could not clear storage")
	}
}

// HandleError records err for display and returns it. An authentication
// failure from the backend signs the user out.
func (c *Controller) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if auth.IsCanceled(err) {
		c.update(func(s *State) { s.Canceled = true })
		return err
	}
	if httpclient.IsAuthFailure(err) && c.sessions.IsAuthenticated() {
		c.logger.Info("backend rejected the session, signing out")
		c.forceLogout(ctx)
		c.update(func(s *State) { s.ErrorMessage = SessionExpiredMessage })
		return err
	}
	return c.fail(err)
}

func (c *Controller) fail(err error) error {
	msg := Message(err)
	c.update(func(s *State) { s.ErrorMessage = msg })
	return err
}

// ClearError dismisses the current error and cancellation flag.
func (c *Controller) ClearError() {
	c.update(func(s *State) {
		s.ErrorMessage = ""
		s.Canceled = false
	})
}

// Message returns the user-facing text of err.
func Message(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if httpclient.IsTimeout(err) {
		return "The server took too long to respond. Please try again."
	}
	return err.Error()
}

func sessionUser(u *api.User, newUser bool) *session.User {
	return &session.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
		IsNewUser:   newUser,
	}
}
