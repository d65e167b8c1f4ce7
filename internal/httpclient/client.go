// Package httpclient is the authenticated request pipeline used for every
// backend call. It attaches the session's bearer token, retries transient
// failures with a deterministic linear backoff, and returns the final
// failure to the caller unmodified.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/log"
	"github.com/felixgeelhaar/servicehub/internal/metrics"
	"github.com/felixgeelhaar/servicehub/internal/version"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies the bearer token. *session.Manager implements it.
type TokenSource interface {
	Token() string
	Initialize(ctx context.Context) error
}

// Config configures the pipeline.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	// RefreshOnRetry re-reads the token before each retry instead of
	// resending the header captured for the first attempt.
	RefreshOnRetry bool
	UserAgent      string
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8000/api",
		Timeout:        30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		UserAgent:      version.UserAgent(),
	}
}

// ConfigFromAPI builds a pipeline configuration from the api section of the
// application configuration.
func ConfigFromAPI(api config.APIConfig) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = api.BaseURL
	cfg.Timeout = api.RequestTimeout
	cfg.ConnectTimeout = api.ConnectTimeout
	cfg.MaxRetries = api.MaxRetries
	cfg.RetryDelay = api.RetryDelay
	cfg.RefreshOnRetry = api.RefreshTokenOnRetry
	return cfg
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records request metrics. A nil value disables them.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTransport replaces the pooled transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// Client sends authenticated JSON requests to the backend.
type Client struct {
	cfg       Config
	tokens    TokenSource
	logger    *log.Logger
	metrics   *metrics.Metrics
	transport http.RoundTripper
	retry     *retryablehttp.Client

	// onBackoff observes every computed retry delay.
	onBackoff func(time.Duration)
}

// New creates a pipeline client. A nil cfg uses DefaultConfig. tokens may be
// nil for unauthenticated clients.
func New(cfg *Config, tokens TokenSource, opts ...Option) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Client{
		cfg:    *cfg,
		tokens: tokens,
		logger: log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "httpclient")

	if c.cfg.MaxRetries < 0 {
		c.cfg.MaxRetries = 0
	}
	if c.transport == nil {
		transport := cleanhttp.DefaultPooledTransport()
		transport.DialContext = (&net.Dialer{
			Timeout:   c.cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		c.transport = transport
	}

	c.retry = &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport: c.transport,
			Timeout:   c.cfg.Timeout,
		},
		Logger:         retryLogger{c.logger},
		RetryWaitMin:   c.cfg.RetryDelay,
		RetryWaitMax:   c.cfg.RetryDelay * time.Duration(c.cfg.MaxRetries+1),
		RetryMax:       c.cfg.MaxRetries,
		CheckRetry:     c.checkRetry,
		Backoff:        c.backoff,
		RequestLogHook: c.requestHook,
		ErrorHandler:   retryablehttp.PassthroughErrorHandler,
	}
	if c.cfg.RefreshOnRetry {
		c.retry.PrepareRetry = c.prepareRetry
	}
	return c
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Get sends a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Patch sends a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends one logical request. body is encoded as JSON when non-nil and the
// response is decoded into out when out is non-nil. Transient failures are
// retried; the final failure is returned as received: an *APIError for a
// non-2xx response, or the transport error.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	start := time.Now()
	ctx = WithAttemptCount(ctx)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidRequest, "failed to encode request body", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.url(path), payload)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "failed to create request", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if token := c.resolveToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		c.metrics.ObserveRequest(method, 0, time.Since(start))
		c.metrics.ObserveRequestError(method, failureReason(err))
		c.logger.WarnContext(ctx, "request failed",
			"method", method, "path", path, "request_id", requestID,
			"attempts", AttemptCount(ctx), "error", err)
		return err
	}
	defer resp.Body.Close()

	c.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp, requestID)
		c.metrics.ObserveRequestError(method, failureReason(apiErr))
		c.logger.DebugContext(ctx, "request rejected",
			"method", method, "path", path, "status", resp.StatusCode,
			"request_id", requestID, "attempts", AttemptCount(ctx))
		return apiErr
	}

	return decodeBody(resp, out)
}

// resolveToken returns the in-memory token, initializing the session first
// when none is held. Initialization failures are logged and the request is
// sent without credentials.
func (c *Client) resolveToken(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	if token := c.tokens.Token(); token != "" {
		return token
	}
	if err := c.tokens.Initialize(ctx); err != nil {
		c.logger.WithError(err).WarnContext(ctx, "lazy session initialization failed, sending unauthenticated")
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBadResponse, "failed to read response body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.ErrCodeBadResponse,
			fmt.Sprintf("failed to decode response from %s", resp.Request.URL.Path), err)
	}
	return nil
}
