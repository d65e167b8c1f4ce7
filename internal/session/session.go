// Package session owns the authentication state of the running process: the
// bearer token and the cached identity of the signed-in user.
//
// A Manager is the single writer of that state. Transitions that touch the
// token store (Initialize, SetSession, ClearSession) are serialized by one
// mutex held across the storage I/O, so memory and storage always agree on
// which token is current once a transition returns. Subscribers are notified
// after that mutex is released.
package session

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/log"
	"github.com/felixgeelhaar/servicehub/internal/tokenstore"
)

// User is the cached identity of the signed-in user.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	IsNewUser   bool   `json:"isNewUser"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// State is an immutable snapshot of the session.
type State struct {
	Token       string
	User        *User
	Initialized bool
}

// Authenticated reports whether the snapshot carries a token.
func (s State) Authenticated() bool {
	return s.Token != ""
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for transition logs.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager coordinates the current session across the process lifetime.
type Manager struct {
	store  tokenstore.Store
	logger *log.Logger

	// transition serializes mutators, including their storage I/O.
	transition sync.Mutex

	mu          sync.RWMutex
	token       string
	user        *User
	initialized bool

	subsMu     sync.Mutex
	subs       map[int]func(State)
	nextSub    int
	pending    []State
	delivering bool
}

// NewManager creates a manager over store. No I/O happens until Initialize.
func NewManager(store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: log.DefaultLogger(),
		subs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Store returns the token store backing the manager.
func (m *Manager) Store() tokenstore.Store {
	return m.store
}

// Initialize loads the persisted token into memory. It may be called any
// number of times; each call re-reads the store. Storage failures are
// returned unchanged and leave the in-memory state untouched.
func (m *Manager) Initialize(ctx context.Context) error {
	err := m.initialize(ctx)
	m.deliver()
	return err
}

func (m *Manager) initialize(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	token, ok, err := m.store.Get(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("session initialization failed")
		return err
	}
	if !ok {
		token = ""
	}

	m.mu.Lock()
	if token != m.token {
		// The cached identity belonged to a different token.
		m.user = nil
	}
	m.token = token
	m.initialized = true
	m.mu.Unlock()

	m.logger.Debug("session initialized", "authenticated", token != "", "token_fp", log.Fingerprint(token))
	m.enqueue()
	return nil
}

// SetSession persists token and then publishes token and user in memory.
// If persisting fails, the in-memory session is left unchanged.
func (m *Manager) SetSession(ctx context.Context, token string, user *User) error {
	if token == "" {
		return errors.NewValidationError(errors.ErrCodeMissingField, "session token must not be empty")
	}
	err := m.setSession(ctx, token, user)
	m.deliver()
	return err
}

func (m *Manager) setSession(ctx context.Context, token string, user *User) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	if err := m.store.Set(ctx, token); err != nil {
		m.logger.WithError(err).Warn("failed to persist session")
		return err
	}

	m.mu.Lock()
	m.token = token
	m.user = user.clone()
	m.initialized = true
	m.mu.Unlock()

	m.logger.Debug("session set", "token_fp", log.Fingerprint(token), "has_user", user != nil)
	m.enqueue()
	return nil
}

// UpdateUser replaces the cached identity without touching the token.
func (m *Manager) UpdateUser(user *User) {
	m.transition.Lock()
	m.mu.Lock()
	m.user = user.clone()
	m.mu.Unlock()
	m.enqueue()
	m.transition.Unlock()

	m.deliver()
}

// ClearSession removes the persisted token and clears memory. It is safe to
// call without a session. Memory is cleared even when removal fails; the
// storage error is still returned so the caller can report it.
func (m *Manager) ClearSession(ctx context.Context) error {
	err := m.clearSession(ctx)
	m.deliver()
	return err
}

func (m *Manager) clearSession(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	err := m.store.Remove(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("failed to remove persisted token")
	}

	m.mu.Lock()
	hadToken := m.token != ""
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	m.logger.Debug("session cleared", "had_token", hadToken)
	m.enqueue()
	return err
}

// IsAuthenticated reports whether a token is held in memory.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// Token returns the in-memory bearer token, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User returns a copy of the cached identity, or nil.
func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.clone()
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Token:       m.token,
		User:        m.user.clone(),
		Initialized: m.initialized,
	}
}

// Subscribe registers fn to receive a snapshot after every transition.
// Snapshots are delivered in transition order, after the transition has
// released the manager, so fn may call mutators. Their snapshots are
// delivered once fn returns.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// enqueue records the state produced by a transition. Callers hold
// transition, which fixes the delivery order.
func (m *Manager) enqueue() {
	state := m.Snapshot()
	m.subsMu.Lock()
	if len(m.subs) > 0 {
		m.pending = append(m.pending, state)
	}
	m.subsMu.Unlock()
}

// deliver hands queued snapshots to subscribers. Only one goroutine delivers
// at a time; a nested or concurrent call leaves its snapshots to the active
// deliverer.
func (m *Manager) deliver() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.delivering {
		return
	}
	m.delivering = true
	defer func() { m.delivering = false }()

	for len(m.pending) > 0 {
		state := m.pending[0]
		m.pending = m.pending[1:]
		fns := make([]func(State), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
		m.callUnlocked(fns, state)
	}
}

// callUnlocked runs fns with subsMu released. The caller holds subsMu.
func (m *Manager) callUnlocked(fns []func(State), state State) {
	m.subsMu.Unlock()
	defer m.subsMu.Lock()
	for _, fn := range fns {
		fn(state)
	}
}
