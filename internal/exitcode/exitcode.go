package exitcode

import (
	"context"
	"os"
	"strings"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates input rejected before any network call
	ValidationError = 3

	// StorageError indicates the credential store could not be used
	StorageError = 4

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// ConfigError indicates invalid or unreadable configuration
	ConfigError = 7

	// Canceled indicates the user interrupted the command
	Canceled = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code. Coded errors are mapped
// by category; uncoded errors fall back to message inspection.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, errors.ErrCanceled) {
		return Canceled
	}

	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return ValidationError
	case errors.CategoryAuth:
		return AuthError
	case errors.CategoryStorage:
		return StorageError
	case errors.CategoryNetwork:
		return NetworkError
	case errors.CategoryConfig:
		return ConfigError
	}

	errMsg := strings.ToLower(err.Error())

	// Usage errors reported by cobra
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationError:
		return "Invalid input"
	case StorageError:
		return "Credential storage error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case ConfigError:
		return "Configuration error"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown error"
	}
}
