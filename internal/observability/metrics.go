package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	logins          *prometheus.CounterVec
	issuance        *prometheus.CounterVec
	decisions       *prometheus.CounterVec
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apitoken_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apitoken_http_request_duration_seconds",
			Help:    "Time spent handling HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.0, 12),
		}, []string{"method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apitoken_http_errors_total",
			Help: "HTTP requests answered with an error envelope",
		}, []string{"path", "method", "code"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apitoken_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		issuance: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apitoken_tokens_total",
			Help: "Tokens handed out at login, issued or reused",
		}, []string{"kind"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apitoken_authorization_decisions_total",
			Help: "Authorization gate decisions by reason",
		}, []string{"reason"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordLogin counts a login attempt outcome ("success", "invalid_credentials", "error").
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// RecordIssuance counts tokens handed out ("issued" or "reused").
func (m *Metrics) RecordIssuance(kind string) {
	if m == nil {
		return
	}
	m.issuance.WithLabelValues(kind).Inc()
}

// RecordDecision counts gate decisions ("allow" or a deny reason).
func (m *Metrics) RecordDecision(reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(reason).Inc()
}
