// Package cache implements the cache-aside engine of the market-data proxy:
// deterministic key construction, the per-category TTL policy table
// (including calendar-aligned midnight-UTC expiry), the Redis-backed store,
// the interceptor that wraps upstream calls, and the admin surface.
//
// Usage:
//
//	policy := cache.NewPolicy(0)
//	store := cache.NewStore(redisClient)
//	icept := cache.NewInterceptor(store, policy)
//
//	data, err := icept.Execute(ctx, "ticker-info", []string{"AAPL"},
//		func(ctx context.Context) (payload.Record, error) {
//			return upstreamClient.Quote(ctx, "AAPL")
//		})
//
// Failure semantics: upstream and normalization errors propagate to the
// caller and are never cached. Store errors never reach the caller; a dead
// Redis turns every request into an upstream fetch, nothing more.
//
// Concurrent misses for one key are not de-duplicated. Both callers fetch
// the same upstream data and the second write wins with an equivalent
// payload, so the race costs at most one extra upstream call.
package cache
