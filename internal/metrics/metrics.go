// Package metrics exposes the Prometheus collectors of the application.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Reconciliation result label values.
const (
	ReconcilePlanned  = "planned"
	ReconcileApplied  = "applied"
	ReconcileFailed   = "failed"
	ReconcileDeferred = "deferred"
)

var (
	DirectoryRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "committee_directory_requests_total",
		Help: "Requests sent to the member directory service.",
	}, []string{"operation", "outcome"})

	ReconcilePairs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "committee_reconcile_pairs_total",
		Help: "Payer/receiver pairs handled by automatic reconciliation.",
	}, []string{"result"})

	StaleBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "committee_reconcile_stale_batches_total",
		Help: "Reconciliation batches that finished after the month selection changed.",
	})

	PaymentToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "committee_payment_toggles_total",
		Help: "Manual payment status changes.",
	}, []string{"outcome"})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "committee_payment_events_published_total",
		Help: "Payment status events published to the event feed.",
	}, []string{"outcome"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "committee_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "committee_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "committee_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})

	SuspiciousRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "committee_http_suspicious_requests_total",
		Help: "Requests matching a known attack pattern.",
	})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		DirectoryRequests,
		ReconcilePairs,
		StaleBatches,
		PaymentToggles,
		EventsPublished,
		HTTPRequests,
		HTTPDuration,
		RateLimited,
		SuspiciousRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RegisterGauge exposes a value computed on every scrape, such as the
// number of live sessions.
func RegisterGauge(name, help string, value func() float64) error {
	return registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, value))
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
