package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/servicehub/internal/identity"
)

type fakeUser struct {
	uid, email, name, phone string
	newUser                 bool
	token                   string
	tokenErr                error
	forced                  bool
}

func (u *fakeUser) UID() string         { return u.uid }
func (u *fakeUser) Email() string       { return u.email }
func (u *fakeUser) DisplayName() string { return u.name }
func (u *fakeUser) PhoneNumber() string { return u.phone }
func (u *fakeUser) IsNewUser() bool     { return u.newUser }

func (u *fakeUser) IDToken(_ context.Context, forceRefresh bool) (string, error) {
	u.forced = forceRefresh
	if u.tokenErr != nil {
		return "", u.tokenErr
	}
	return u.token, nil
}

type fakeConfirmation struct {
	provider *fakeProvider
}

func (c *fakeConfirmation) Confirm(_ context.Context, code string) (identity.User, error) {
	p := c.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "confirm:"+code)
	if code != p.validCode {
		return nil, &friendly{msg: "INVALID_CODE", text: "The verification code is incorrect."}
	}
	return p.user, nil
}

// fakeProvider records calls and answers with a fixed user.
type fakeProvider struct {
	mu        sync.Mutex
	calls     []string
	user      *fakeUser
	err       error
	validCode string
	lastCred  identity.Credential
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		user:      &fakeUser{uid: "uid-1", email: "ada@example.com", name: "Ada", token: "id-token-1"},
		validCode: "123456",
	}
}

func (p *fakeProvider) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.err
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) SignInWithEmailAndPassword(_ context.Context, email, _ string) (identity.User, error) {
	if err := p.record("signin:" + email); err != nil {
		return nil, err
	}
	return p.user, nil
}

func (p *fakeProvider) CreateUserWithEmailAndPassword(_ context.Context, email, _ string) (identity.User, error) {
	if err := p.record("signup:" + email); err != nil {
		return nil, err
	}
	u := *p.user
	u.newUser = true
	return &u, nil
}

func (p *fakeProvider) SignInWithCredential(_ context.Context, cred identity.Credential) (identity.User, error) {
	if err := p.record("idp:" + cred.ProviderID); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.lastCred = cred
	p.mu.Unlock()
	return p.user, nil
}

func (p *fakeProvider) SendVerificationCode(_ context.Context, phone string) (identity.Confirmation, error) {
	if err := p.record("send:" + phone); err != nil {
		return nil, err
	}
	return &fakeConfirmation{provider: p}, nil
}

// friendly mimics a provider error with a user-facing message.
type friendly struct {
	msg, text string
}

func (f *friendly) Error() string    { return fmt.Sprintf("provider: %s", f.msg) }
func (f *friendly) Friendly() string { return f.text }
