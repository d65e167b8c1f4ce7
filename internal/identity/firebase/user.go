package firebase

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/servicehub/internal/identity"
)

// refreshSkew refreshes tokens this long before they expire.
const refreshSkew = 5 * time.Minute

// User is a signed-in Firebase user.
type User struct {
	client      *Client
	uid         string
	email       string
	displayName string
	phoneNumber string
	isNew       bool

	mu           sync.Mutex
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

var _ identity.User = (*User)(nil)

func (u *User) UID() string         { return u.uid }
func (u *User) Email() string       { return u.email }
func (u *User) DisplayName() string { return u.displayName }
func (u *User) PhoneNumber() string { return u.phoneNumber }
func (u *User) IsNewUser() bool     { return u.isNew }

// IDToken returns the cached identity token, refreshing it through the
// Secure Token API when forced or close to expiry.
func (u *User) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !forceRefresh && u.idToken != "" && u.client.now().Add(refreshSkew).Before(u.expiresAt) {
		return u.idToken, nil
	}
	if u.refreshToken == "" {
		// Nothing to refresh with.
		return u.idToken, nil
	}

	resp, err := u.client.refresh(ctx, u.refreshToken)
	if err != nil {
		return "", err
	}
	u.idToken = resp.IDToken
	if resp.RefreshToken != "" {
		u.refreshToken = resp.RefreshToken
	}
	u.expiresAt = u.client.now().Add(parseExpiresIn(resp.ExpiresIn))
	return u.idToken, nil
}
