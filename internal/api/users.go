package api

import (
	"context"
	"net/http"
	"time"
)

// User is the backend account of the signed-in user.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Role        string    `json:"role"`
	IsProvider  bool      `json:"isProvider"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserUpdate changes account fields. Nil fields are left unchanged.
type UserUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

// Profile is the public service-provider profile of a user.
type Profile struct {
	UserID     string   `json:"userId"`
	Bio        string   `json:"bio"`
	Location   string   `json:"location"`
	Services   []string `json:"services"`
	HourlyRate float64  `json:"hourlyRate"`
	Rating     float64  `json:"rating"`
	Reviews    int      `json:"reviewCount"`
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := get(ctx, c.r, "/users/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateMe applies update to the signed-in user.
func (c *Client) UpdateMe(ctx context.Context, update UserUpdate) (*User, error) {
	var user User
	if err := c.r.Do(ctx, http.MethodPatch, "/users/me", update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// MyProfile returns the signed-in user's provider profile.
func (c *Client) MyProfile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := get(ctx, c.r, "/users/me/profile", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile replaces the signed-in user's provider profile.
func (c *Client) UpdateProfile(ctx context.Context, profile Profile) (*Profile, error) {
	var out Profile
	if err := c.r.Do(ctx, http.MethodPut, "/users/me/profile", profile, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
