package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidEmail, "test error message")

	if err.Code != ErrCodeInvalidEmail {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidEmail, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeStorageUnavailable, "failed to write token", cause)

	if err.Code != ErrCodeStorageUnavailable {
		t.Errorf("expected code %s, got %s", ErrCodeStorageUnavailable, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeWeakPassword, "password too short"),
			wantCode: "VALIDATION-002",
			wantMsg:  "password too short",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeStorageUnavailable, "write failed", fmt.Errorf("permission denied")),
			wantCode: "STORE-001",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestWithSuggestions(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad config").
		WithSuggestions("Suggestion 1", "Suggestion 2")

	if len(err.Suggestions) != 2 {
		t.Errorf("expected 2 suggestions, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "Suggestions:") {
		t.Errorf("error string should contain suggestions section")
	}
	for _, suggestion := range err.Suggestions {
		if !strings.Contains(errStr, suggestion) {
			t.Errorf("error string should contain suggestion: %s", suggestion)
		}
	}
}

func TestSentinelComparison(t *testing.T) {
	wrapped := fmt.Errorf("google: %w", New(ErrCodeCanceled, "user closed the browser"))

	if !errors.Is(wrapped, ErrCanceled) {
		t.Error("errors with the same code should match the sentinel")
	}
	if errors.Is(wrapped, ErrNoConfirmationPending) {
		t.Error("errors with different codes must not match")
	}
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(ErrCodeTimeout, "request timed out")
	outer := Wrap(ErrCodeProvider, "google sign-in failed", fmt.Errorf("exchange: %w", inner))

	if !HasCode(outer, ErrCodeProvider) {
		t.Error("expected outer code to be found")
	}
	if !HasCode(outer, ErrCodeTimeout) {
		t.Error("expected inner code to be found through wrapping")
	}
	if HasCode(outer, ErrCodeStorageUnavailable) {
		t.Error("unexpected code match")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeTimeout) {
		t.Error("plain errors carry no code")
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Category
	}{
		{ErrCodeInvalidEmail, CategoryValidation},
		{ErrCodeCanceled, CategoryAuth},
		{ErrCodeStorageCorrupt, CategoryStorage},
		{ErrCodeServer, CategoryNetwork},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrorCode("WHAT-001"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Category(); got != tt.want {
				t.Errorf("Category() = %s, want %s", got, tt.want)
			}
		})
	}

	if CategoryOf(fmt.Errorf("x")) != CategoryUnknown {
		t.Error("plain error should be CategoryUnknown")
	}
}

func TestNewStorageError(t *testing.T) {
	cause := fmt.Errorf("read-only file system")
	err := NewStorageError("set", cause)

	if err.Code != ErrCodeStorageUnavailable {
		t.Errorf("expected code %s, got %s", ErrCodeStorageUnavailable, err.Code)
	}
	if !strings.Contains(err.Message, "set") {
		t.Errorf("message should name the operation, got %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Error("storage error should unwrap to its cause")
	}
	if len(err.Suggestions) == 0 {
		t.Error("expected suggestions")
	}
}
