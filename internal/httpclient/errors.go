package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api error (status %d, request_id %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// errorResponse covers the error bodies the backend produces.
type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func newAPIError(resp *http.Response, requestID string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if id := resp.Header.Get(RequestIDHeader); id != "" {
		requestID = id
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp.StatusCode, body),
		RequestID:  requestID,
		Body:       body,
	}
}

func errorMessage(status int, body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		var detail string
		if len(parsed.Detail) > 0 && json.Unmarshal(parsed.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
		if len(parsed.Detail) > 0 && string(parsed.Detail) != "null" {
			return string(parsed.Detail)
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		return text
	}
	return http.StatusText(status)
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsAuthFailure reports whether err is a 401 or 403 response.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// IsRetryable reports whether the pipeline retries err: a 5xx response or a
// transient transport failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599
	}
	return isTransient(err)
}

// isTransient reports whether a transport error is a timeout or a failed
// connection.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// failureReason is a short label for metrics and logs.
func failureReason(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 500 {
			return "server_error"
		}
		return "client_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsTimeout(err):
		return "timeout"
	case isTransient(err):
		return "connection"
	default:
		return "other"
	}
}

// AsAppError attaches an error code to a pipeline failure. The original
// error stays reachable through errors.As.
func AsAppError(err error) error {
	if err == nil || errors.CodeOf(err) != "" {
		return err
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		switch {
		case IsAuthFailure(err):
			return errors.Wrap(errors.ErrCodeUnauthorized, "request rejected by the server", err).
				WithSuggestion("Run 'servicehub auth login' to sign in again")
		case apiErr.StatusCode >= 500:
			return errors.Wrap(errors.ErrCodeServer, "server error", err)
		default:
			return errors.Wrap(errors.ErrCodeAPI, "request failed", err)
		}
	case errors.Is(err, context.Canceled):
		return err
	case IsTimeout(err):
		return errors.Wrap(errors.ErrCodeTimeout, "request timed out", err).
			WithSuggestion("Check your network connection or raise api.request_timeout")
	case isTransient(err):
		return errors.Wrap(errors.ErrCodeConnection, "could not reach the server", err).
			WithSuggestion("Check that api.base_url is correct and the server is running")
	default:
		return err
	}
}
