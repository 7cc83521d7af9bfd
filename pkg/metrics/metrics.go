// Package metrics provides the Prometheus registry, the /metrics handler,
// and HTTP instrumentation for the bdl proxy.
// Domain metrics are defined in their respective packages (client, cache,
// ratelimit) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer is the registry read by Handler. Every package registers its
// metrics with the default registry through promauto.
var Gatherer = prometheus.DefaultGatherer

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bdl_http_requests_total",
		Help: "Total proxy HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bdl_http_request_duration_seconds",
		Help:    "Proxy HTTP request duration in seconds by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
)

// Handler serves the metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps h with request count and latency metrics labelled route.
func Instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		httpRequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(httpRequestsTotal.MustCurryWith(labels), h),
	)
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - bdl_cache_hits_total (Counter): Fresh entries served without an upstream call
//   - bdl_cache_misses_total{state} (Counter): Misses by entry state (absent, stale)
//   - bdl_cache_refreshes_total (Counter): Successful upstream fetches stored
//   - bdl_cache_stale_served_total{error_class} (Counter): Stale entries served after a transient failure
//   - bdl_cache_fetch_errors_total{error_class} (Counter): Failures returned to the caller
//   - bdl_cache_coalesced_requests_total (Counter): Callers that shared another caller's fetch
//   - bdl_cache_entries (Gauge): Entries held in the memory store
//
// Rate Limit Metrics (pkg/ratelimit):
//   - bdl_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - bdl_rate_limit_blocks_total (Counter): Requests blocked locally
//   - bdl_rate_limited_responses_total (Counter): 429 responses received
//
// Request Metrics (pkg/client):
//   - bdl_requests_total{endpoint, status} (Counter): Upstream requests by endpoint and HTTP status
//   - bdl_request_duration_seconds{endpoint} (Histogram): Upstream request duration by endpoint
//   - bdl_errors_total{class} (Counter): Errors by class (client, server, rate_limit, timeout)
//
// Retry Metrics (pkg/client):
//   - bdl_retries_total{error_class} (Counter): Retry attempts by error class
//   - bdl_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - bdl_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Proxy Metrics (pkg/metrics):
//   - bdl_http_requests_total{route, code} (Counter): Proxy requests
//   - bdl_http_request_duration_seconds{route, code} (Histogram): Proxy latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(bdl_cache_hits_total[5m])) /
//   (sum(rate(bdl_cache_hits_total[5m])) + sum(rate(bdl_cache_misses_total[5m])))
//
//   # Share of responses served stale
//   sum(rate(bdl_cache_stale_served_total[5m])) / sum(rate(bdl_http_requests_total[5m]))
//
//   # Upstream 429 rate
//   rate(bdl_rate_limited_responses_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(bdl_request_duration_seconds_bucket[5m]))
