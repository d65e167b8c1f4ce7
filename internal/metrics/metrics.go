package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for servicehub
type Metrics struct {
	// Request pipeline metrics
	Requests       *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	Retries        *prometheus.CounterVec
	RequestErrors  *prometheus.CounterVec

	// Session transition metrics
	SessionTransitions *prometheus.CounterVec

	// Sign-in metrics
	SignIns *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicehub_http_requests_total",
				Help: "Total number of logical API requests by final status",
			},
			[]string{"method", "status"},
		),
		RequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "servicehub_http_request_duration_seconds",
				Help:    "API request duration in seconds, including retries",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"method"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicehub_http_retries_total",
				Help: "Total number of request retries",
			},
			[]string{"method", "reason"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicehub_http_request_errors_total",
				Help: "Total number of failed API requests",
			},
			[]string{"method", "error_type"},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicehub_session_transitions_total",
				Help: "Total number of session transitions",
			},
			[]string{"transition", "success"},
		),

		SignIns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicehub_sign_ins_total",
				Help: "Total number of sign-in attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicehub_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveRequest records one completed logical request. status is 0 when no
// response was received.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "none"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.Requests.WithLabelValues(method, label).Inc()
	m.RequestLatency.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveRetry records one retry of a request.
func (m *Metrics) ObserveRetry(method, reason string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(method, reason).Inc()
}

// ObserveRequestError records a request that failed after all attempts.
func (m *Metrics) ObserveRequestError(method, errorType string) {
	if m == nil {
		return
	}
	m.RequestErrors.WithLabelValues(method, errorType).Inc()
}

// ObserveSignIn records the outcome of a sign-in attempt: "success",
// "canceled" or "failure".
func (m *Metrics) ObserveSignIn(provider, outcome string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(provider, outcome).Inc()
}

// ObserveTransition records a session transition.
func (m *Metrics) ObserveTransition(transition string, success bool) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(transition, strconv.FormatBool(success)).Inc()
}

// ObserveError records a coded error.
func (m *Metrics) ObserveError(code, component string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
