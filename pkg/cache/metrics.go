package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh cache hits (no upstream call made)
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bdl_cache_hits_total",
			Help: "Total number of fresh cache hits served without an upstream call",
		},
	)

	// CacheMisses tracks lookups that required an upstream call, by entry state
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdl_cache_misses_total",
			Help: "Total number of cache lookups that required an upstream fetch",
		},
		[]string{"state"}, // "absent", "stale"
	)

	// CacheRefreshes tracks successful upstream fetches stored in the cache
	CacheRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bdl_cache_refreshes_total",
			Help: "Total number of successful upstream fetches stored in the cache",
		},
	)

	// StaleServed tracks degraded responses served from stale entries
	StaleServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdl_cache_stale_served_total",
			Help: "Total number of stale entries served after a transient upstream failure",
		},
		[]string{"error_class"},
	)

	// FetchErrors tracks upstream failures propagated to callers
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdl_cache_fetch_errors_total",
			Help: "Total number of upstream failures propagated to callers",
		},
		[]string{"error_class"},
	)

	// CoalescedRequests tracks resolves that shared another caller's upstream call
	CoalescedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bdl_cache_coalesced_requests_total",
			Help: "Total number of resolves that shared an in-flight upstream fetch",
		},
	)

	// CacheEntries tracks the number of keys held in memory
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bdl_cache_entries",
			Help: "Current number of cached keys",
		},
	)
)
