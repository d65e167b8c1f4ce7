package api

import (
	"context"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// FirebaseLoginRequest exchanges an identity token for a backend session.
type FirebaseLoginRequest struct {
	IDToken  string `json:"idToken"`
	Provider string `json:"provider,omitempty"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phoneNumber,omitempty"`
}

// LoginResponse is the backend session returned by the login endpoints.
type LoginResponse struct {
	Token     string `json:"token"`
	User      User   `json:"user"`
	IsNewUser bool   `json:"isNewUser"`
}

// VerifyOTPRequest confirms a backend-issued SMS code.
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

// ChangePasswordRequest sets a new password with a reset token.
type ChangePasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// FirebaseLogin exchanges an identity token for a backend session token.
func (c *Client) FirebaseLogin(ctx context.Context, req FirebaseLoginRequest) (*LoginResponse, error) {
	if req.IDToken == "" {
		return nil, errors.New(errors.ErrCodeMissingField, "identity token is required")
	}

	var resp LoginResponse
	if err := post(ctx, c.r, "/auth/firebase-login", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New(errors.ErrCodeBadResponse, "login response did not include a session token")
	}
	return &resp, nil
}

// VerifyOTPSimple confirms a code sent by the backend and returns a session.
func (c *Client) VerifyOTPSimple(ctx context.Context, phone, code string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := post(ctx, c.r, "/auth/verify-otp-simple", VerifyOTPRequest{PhoneNumber: phone, OTP: code}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New(errors.ErrCodeBadResponse, "verification response did not include a session token")
	}
	return &resp, nil
}

// ChangePasswordWithToken sets a new password using a reset token.
func (c *Client) ChangePasswordWithToken(ctx context.Context, token, newPassword string) error {
	return post(ctx, c.r, "/auth/change-password-with-token", ChangePasswordRequest{Token: token, NewPassword: newPassword}, nil)
}
