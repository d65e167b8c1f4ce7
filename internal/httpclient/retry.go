package httpclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/felixgeelhaar/servicehub/internal/log"
)

type attemptKey struct{}

type attemptState struct {
	mu       sync.Mutex
	attempts int
	reason   string
}

// WithAttemptCount returns a context that records the attempts made by the
// request sent with it. Do installs one automatically; callers that want to
// read the count afterwards install it themselves.
func WithAttemptCount(ctx context.Context) context.Context {
	if _, ok := ctx.Value(attemptKey{}).(*attemptState); ok {
		return ctx
	}
	return context.WithValue(ctx, attemptKey{}, &attemptState{})
}

// AttemptCount reports how many attempts the request carrying ctx has made.
func AttemptCount(ctx context.Context) int {
	state, ok := ctx.Value(attemptKey{}).(*attemptState)
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.attempts
}

func attemptsOf(ctx context.Context) *attemptState {
	state, _ := ctx.Value(attemptKey{}).(*attemptState)
	return state
}

// checkRetry retries 5xx responses and transient transport failures. 4xx
// responses and cancellation by the caller are final.
func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	reason := ""
	switch {
	case err != nil:
		if !isTransient(err) {
			return false, nil
		}
		reason = failureReason(err)
	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		reason = "server_error"
	default:
		return false, nil
	}

	if state := attemptsOf(ctx); state != nil {
		state.mu.Lock()
		state.reason = reason
		state.mu.Unlock()
	}
	return true, nil
}

// backoff waits RetryDelay multiplied by the retry number: 1x, 2x, 3x.
func (c *Client) backoff(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	wait := linearBackoff(c.cfg.RetryDelay, attemptNum)
	if c.onBackoff != nil {
		c.onBackoff(wait)
	}
	return wait
}

// linearBackoff returns the delay before retry attemptNum+1, where attemptNum
// counts from zero.
func linearBackoff(delay time.Duration, attemptNum int) time.Duration {
	return delay * time.Duration(attemptNum+1)
}

// requestHook runs before every attempt, including the first.
func (c *Client) requestHook(_ retryablehttp.Logger, req *http.Request, attemptNum int) {
	state := attemptsOf(req.Context())
	if state == nil {
		return
	}

	state.mu.Lock()
	state.attempts = attemptNum + 1
	reason := state.reason
	state.mu.Unlock()

	if attemptNum > 0 {
		c.metrics.ObserveRetry(req.Method, reason)
		c.logger.DebugContext(req.Context(), "retrying request",
			"method", req.Method, "path", req.URL.Path,
			"attempt", attemptNum+1, "reason", reason,
			"request_id", req.Header.Get(RequestIDHeader))
	}
}

// prepareRetry replaces the authorization header with the current token.
func (c *Client) prepareRetry(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	req.Header = req.Header.Clone()
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}
	return nil
}

// retryLogger routes the retry library's own messages to debug level. The
// pipeline logs final outcomes itself.
type retryLogger struct {
	l *log.Logger
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.l.Debug(msg, keysAndValues...)
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.l.Debug(msg, keysAndValues...)
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.l.Debug(msg, keysAndValues...)
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.l.Debug(msg, keysAndValues...)
}
