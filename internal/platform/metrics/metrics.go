package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AccessDecisions *prometheus.CounterVec
	AuditAppends    prometheus.Counter
	AuditFailures   prometheus.Counter
	ConsentGrants   prometheus.Counter
	ConsentRevokes  prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	RequestLatency  *prometheus.HistogramVec
}

// New creates all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a private
// registry so counter values can be asserted in isolation.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AccessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medledger_access_decisions_total",
			Help: "Record access decisions partitioned by outcome and reason",
		}, []string{"outcome", "reason"}),
		AuditAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "medledger_audit_entries_total",
			Help: "Audit entries appended to the ledger",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "medledger_audit_append_failures_total",
			Help: "Failed audit appends; the triggering mutation was rolled back or the access refused",
		}),
		ConsentGrants: factory.NewCounter(prometheus.CounterOpts{
			Name: "medledger_consent_grants_total",
			Help: "Consent tokens granted",
		}),
		ConsentRevokes: factory.NewCounter(prometheus.CounterOpts{
			Name: "medledger_consent_revokes_total",
			Help: "Consent tokens revoked",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "medledger_grant_cache_hits_total",
			Help: "Consent cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "medledger_grant_cache_misses_total",
			Help: "Consent cache misses (fell through to store)",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveDecision records an access decision outcome.
func (m *Metrics) ObserveDecision(granted bool, reason string) {
	if m == nil {
		return
	}
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	m.AccessDecisions.WithLabelValues(outcome, reason).Inc()
}

// ObserveAudit records the outcome of one audit append attempt.
func (m *Metrics) ObserveAudit(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.AuditFailures.Inc()
		return
	}
	m.AuditAppends.Inc()
}

// ObserveLatency records request latency for a route.
func (m *Metrics) ObserveLatency(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, status).Observe(d.Seconds())
}
