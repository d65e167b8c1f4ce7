package firebase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// Error is an error response from the Firebase Auth REST API.
type Error struct {
	StatusCode int
	// Message is the raw message, e.g. "WEAK_PASSWORD : Password should be
	// at least 6 characters".
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("firebase: %s (status %d)", e.Message, e.StatusCode)
}

// Code returns the upper-case error code at the start of Message.
func (e *Error) Code() string {
	code, _, _ := strings.Cut(e.Message, " ")
	return code
}

// Friendly returns a message suitable for showing to the user.
func (e *Error) Friendly() string {
	switch e.Code() {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return "Incorrect email or password."
	case "EMAIL_EXISTS":
		return "An account with this email already exists."
	case "USER_DISABLED":
		return "This account has been disabled."
	case "WEAK_PASSWORD":
		return "Password should be at least 6 characters."
	case "INVALID_EMAIL":
		return "The email address is badly formatted."
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return "Too many attempts. Try again later."
	case "INVALID_CODE", "INVALID_VERIFICATION_CODE":
		return "The verification code is invalid."
	case "SESSION_EXPIRED", "CODE_EXPIRED":
		return "The verification code has expired. Request a new one."
	case "INVALID_PHONE_NUMBER":
		return "The phone number is invalid."
	case "INVALID_IDP_RESPONSE", "INVALID_ID_TOKEN":
		return "The sign-in provider rejected the credential."
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN":
		return "Your sign-in has expired. Sign in again."
	default:
		return e.Message
	}
}

// IsExpired reports whether the error means a verification session or
// refresh token is no longer usable.
func (e *Error) IsExpired() bool {
	switch e.Code() {
	case "SESSION_EXPIRED", "CODE_EXPIRED", "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN":
		return true
	}
	return false
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseError(status int, data []byte) error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Message == "" {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = "UNKNOWN_ERROR"
		}
		return &Error{StatusCode: status, Message: msg}
	}
	return &Error{StatusCode: status, Message: body.Error.Message}
}

// AsError returns the *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var fbErr *Error
	ok := errors.As(err, &fbErr)
	return fbErr, ok
}
