// Package metrics exposes Prometheus instrumentation for the identity core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts *prometheus.CounterVec
	Lockouts      prometheus.Counter
	TokensIssued  *prometheus.CounterVec
	AuthFailures  *prometheus.CounterVec
	AuthzDenials  *prometheus.CounterVec
	RoleChanges   *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backend_account_lockouts_total",
			Help: "Accounts moved into the lockout window",
		}),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_tokens_issued_total",
				Help: "Bearer tokens issued, by cause",
			},
			[]string{"cause", "role"},
		),
		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_authentication_failures_total",
				Help: "Requests rejected as unauthenticated, by reason",
			},
			[]string{"reason"},
		),
		AuthzDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_authorization_denials_total",
				Help: "Requests rejected as forbidden, by check",
			},
			[]string{"check"},
		),
		RoleChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_role_changes_total",
				Help: "Privilege administration operations by action and result",
			},
			[]string{"action", "result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.Lockouts,
		m.TokensIssued,
		m.AuthFailures,
		m.AuthzDenials,
		m.RoleChanges,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Metrics) TokenIssued(cause, role string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(cause, role).Inc()
}

func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) AuthzDenied(check string) {
	if m == nil {
		return
	}
	m.AuthzDenials.WithLabelValues(check).Inc()
}

func (m *Metrics) RoleChange(action, result string) {
	if m == nil {
		return
	}
	m.RoleChanges.WithLabelValues(action, result).Inc()
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
