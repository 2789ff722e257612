package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Validations tracks validation outcomes by reason
	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_validations_total",
		Help: "Total number of license validations by outcome reason",
	}, []string{"reason"})

	// ClaimConflicts counts validations that lost a compare-and-set race and re-read the license
	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "licensegate_claim_conflicts_total",
		Help: "Number of guild claims retried after a concurrent change",
	})

	// RateLimited tracks requests rejected by the sliding window limiter
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"route"})

	// RequestDuration tracks HTTP handler latency
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "licensegate_http_request_duration_seconds",
		Help:    "Histogram of HTTP request processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})

	// LicensesExpired counts licenses deactivated because their expiry passed
	LicensesExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_licenses_expired_total",
		Help: "Total number of licenses deactivated on expiry",
	}, []string{"source"})

	// EventPublishFailures counts change events that could not be delivered
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "licensegate_event_publish_failures_total",
		Help: "Number of license change events that failed to publish",
	})

	// RateLimiterClients tracks how many client windows the limiter currently holds
	RateLimiterClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "licensegate_rate_limiter_clients",
		Help: "Number of client identities tracked by the rate limiter",
	})
)
