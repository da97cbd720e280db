package ghbridge

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts responses received, by method and status code
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghbridge_requests_total",
			Help: "Total GitHub API responses by method and status code",
		},
		[]string{"method", "status"},
	)

	// requestDuration tracks round trip latency of single attempts
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ghbridge_request_duration_seconds",
			Help:    "GitHub API round trip duration by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// retriesTotal counts retried attempts by reason
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghbridge_retries_total",
			Help: "Total retried GitHub API attempts by reason",
		},
		[]string{"reason"},
	)

	// rateLimitWaits counts waits imposed before or after a request
	rateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghbridge_rate_limit_waits_total",
			Help: "Total rate limit waits by category and source",
		},
		[]string{"category", "source"},
	)

	// rateLimitRemaining mirrors the tracker's latest record
	rateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ghbridge_rate_limit_remaining",
			Help: "Remaining GitHub API quota by category",
		},
		[]string{"category"},
	)
)

const (
	retryReasonConnection = "connection"
	retryReasonNotFound   = "stale_not_found"
	retryReasonRateLimit  = "rate_limit"
	retryReasonAbuseLimit = "abuse_limit"

	waitSourceChecker = "checker"
	waitSourceHandler = "handler"
)

func observeResponse(method string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func observeRetry(reason string) {
	retriesTotal.WithLabelValues(reason).Inc()
}

func observeWait(category RateLimitCategory, source string) {
	rateLimitWaits.WithLabelValues(category.String(), source).Inc()
}

func observeRateLimit(category RateLimitCategory, record RateLimitRecord) {
	if record.IsUnknown() {
		return
	}
	rateLimitRemaining.WithLabelValues(category.String()).Set(float64(record.Remaining))
}
