// Package cache provides the in-memory response cache that sits between the
// dashboard service layer and the rate-limited balldontlie API.
//
// The cache implements the following policy:
//
// - Entries younger than the TTL (default 5 minutes) are served without any
// upstream call
// - Expired entries are refreshed from upstream and overwritten on success
// - When a refresh fails with a rate limit (429), server error (5xx), or
// timeout, the expired entry is served instead (degraded but present)
// - Client errors (other 4xx) and failures without any entry are always
// returned to the caller
// - Concurrent resolves of the same key share one upstream call
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//	resolver := cache.NewResolver(store, cache.DefaultConfig())
//
//	params := cache.Params{
//		Endpoint: "/games",
//		TeamID:   14,
//		Season:   2024,
//		PerPage:  25,
//	}
//
//	res, err := resolver.ResolveParams(ctx, params, func(ctx context.Context) ([]byte, error) {
//		return bdl.GetGames(ctx, query)
//	})
//	if err != nil {
//		// No data available: nothing cached, or a non-transient failure
//	}
//	if res.Degraded() {
//		// Stale data served, res.Err holds the upstream failure
//	}
//
// # Testing
//
// Inject a clock to move time without sleeping:
//
//	cfg := cache.DefaultConfig()
//	cfg.Clock = fakeClock.Now
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - bdl_cache_hits_total - Fresh hits (no upstream call)
//   - bdl_cache_misses_total{state} - Lookups that needed upstream (absent, stale)
//   - bdl_cache_refreshes_total - Successful fetches stored
//   - bdl_cache_stale_served_total{error_class} - Degraded responses
//   - bdl_cache_fetch_errors_total{error_class} - Failures propagated to callers
//   - bdl_cache_coalesced_requests_total - Resolves that shared an in-flight fetch
//   - bdl_cache_entries - Number of cached keys
package cache
