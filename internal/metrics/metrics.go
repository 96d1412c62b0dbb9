// Package metrics defines the Prometheus collectors of the service.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "apisecure"

// Metrics contains the custom collectors.
type Metrics struct {
	Logins             *prometheus.CounterVec
	Registrations      prometheus.Counter
	RateLimited        *prometheus.CounterVec
	TokenVerifications *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
		Registrations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Accounts created",
			},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests refused by the rate limiter by action",
			},
			[]string{"action"},
		),
		TokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_verifications_total",
				Help:      "Token verifications by result",
			},
			[]string{"result"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications by kind and result",
			},
			[]string{"kind", "result"},
		),
	}

	reg.MustRegister(m.Logins, m.Registrations, m.RateLimited, m.TokenVerifications, m.Notifications)
	return m
}

// NewRegistry returns a registry with the Go and process collectors and the service metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, New(reg)
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) Registered() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

func (m *Metrics) Limited(action string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(action).Inc()
}

func (m *Metrics) Verification(result string) {
	if m == nil {
		return
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}
