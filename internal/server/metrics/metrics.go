// Package metrics holds the Prometheus collectors of the storefront server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	AuthEvents    *prometheus.CounterVec
	MailsTotal    *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec
	SessionsSwept prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AuthEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "auth_events_total",
			Help:      "Authentication flow outcomes.",
		}, []string{"op", "result"}),
		MailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "mails_total",
			Help:      "Outgoing mail by result.",
		}, []string{"result"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the throttle.",
		}, []string{"route"}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.AuthEvents,
		m.MailsTotal,
		m.RateLimited,
		m.SessionsSwept,
	)

	return m
}

// Auth records the outcome of an auth operation, e.g. Auth("login", "ok").
func (m *Metrics) Auth(op, result string) {
	m.AuthEvents.WithLabelValues(op, result).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
