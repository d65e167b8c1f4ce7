package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Validation errors are detected locally and never reach the network.
	ErrCodeInvalidEmail   ErrorCode = "VALIDATION-001"
	ErrCodeWeakPassword   ErrorCode = "VALIDATION-002"
	ErrCodeInvalidPhone   ErrorCode = "VALIDATION-003"
	ErrCodeInvalidOTP     ErrorCode = "VALIDATION-004"
	ErrCodeMissingField   ErrorCode = "VALIDATION-005"
	ErrCodeInvalidRequest ErrorCode = "VALIDATION-006"

	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeCanceled              ErrorCode = "AUTH-001"
	ErrCodeNoConfirmationPending ErrorCode = "AUTH-002"
	ErrCodeProvider              ErrorCode = "AUTH-003"
	ErrCodeUnauthorized          ErrorCode = "AUTH-004"
	ErrCodeNotSignedIn           ErrorCode = "AUTH-005"
	ErrCodeAlreadyConfigured     ErrorCode = "AUTH-006"
	ErrCodeConfirmationExpired   ErrorCode = "AUTH-007"
	ErrCodeProviderNotConfigured ErrorCode = "AUTH-008"
	ErrCodeIdentityTokenRejected ErrorCode = "AUTH-009"

	// Storage errors (STORE-001 to STORE-099)
	ErrCodeStorageUnavailable ErrorCode = "STORE-001"
	ErrCodeStorageCorrupt     ErrorCode = "STORE-002"

	// Network errors (NET-001 to NET-099)
	ErrCodeTimeout     ErrorCode = "NET-001"
	ErrCodeConnection  ErrorCode = "NET-002"
	ErrCodeServer      ErrorCode = "NET-003"
	ErrCodeAPI         ErrorCode = "NET-004"
	ErrCodeBadResponse ErrorCode = "NET-005"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid    ErrorCode = "CONFIG-001"
	ErrCodeConfigLoadFailed ErrorCode = "CONFIG-002"
)

// Category is the coarse class of an error code, used for exit codes and
// for deciding how the caller should react.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryAuth       Category = "auth"
	CategoryStorage    Category = "storage"
	CategoryNetwork    Category = "network"
	CategoryConfig     Category = "config"
	CategoryUnknown    Category = "unknown"
)

// Category returns the category encoded in the code prefix.
func (c ErrorCode) Category() Category {
	prefix, _, _ := strings.Cut(string(c), "-")
	switch prefix {
	case "VALIDATION":
		return CategoryValidation
	case "AUTH":
		return CategoryAuth
	case "STORE":
		return CategoryStorage
	case "NET":
		return CategoryNetwork
	case "CONFIG":
		return CategoryConfig
	default:
		return CategoryUnknown
	}
}

// AppError is an error carrying a code, optional suggestions and a cause.
type AppError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *AppError with the same code. This lets
// callers compare against sentinel values such as ErrCanceled.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new AppError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// CategoryOf returns the category of the first AppError in err's chain.
func CategoryOf(err error) Category {
	code := CodeOf(err)
	if code == "" {
		return CategoryUnknown
	}
	return code.Category()
}

// Is and As re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Sentinels for comparisons with errors.Is.
var (
	ErrCanceled              = New(ErrCodeCanceled, "sign-in canceled by user")
	ErrNoConfirmationPending = New(ErrCodeNoConfirmationPending, "no confirmation pending")
	ErrNotSignedIn           = New(ErrCodeNotSignedIn, "not signed in")
)

// Common error constructors

// NewValidationError creates a local validation failure.
func NewValidationError(code ErrorCode, message string) *AppError {
	return New(code, message)
}

// NewStorageError wraps a persistence failure for operation op.
func NewStorageError(op string, cause error) *AppError {
	return Wrap(ErrCodeStorageUnavailable, fmt.Sprintf("token storage %s failed", op), cause).
		WithSuggestion("Check that the credentials directory is writable").
		WithSuggestion("Run 'servicehub config path' to see where credentials are stored")
}

// NewProviderError wraps a failure reported by an identity provider.
func NewProviderError(provider string, cause error) *AppError {
	return Wrap(ErrCodeProvider, fmt.Sprintf("%s sign-in failed", provider), cause)
}

// NewNotSignedInError creates the error returned when a command needs a session.
func NewNotSignedInError() *AppError {
	return New(ErrCodeNotSignedIn, "not signed in").
		WithSuggestion("Run 'servicehub auth login' to authenticate")
}

// NewConfigError creates a configuration validation error.
func NewConfigError(field, reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration %s: %s", field, reason)).
		WithSuggestion("Run 'servicehub config view' to inspect the effective configuration")
}
