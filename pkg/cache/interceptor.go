package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlytic/market-proxy/pkg/logging"
	"github.com/quantlytic/market-proxy/pkg/payload"
)

// UpstreamFunc produces a record from the upstream provider. It is invoked
// only on a cache miss and must honor ctx cancellation.
type UpstreamFunc func(ctx context.Context) (payload.Record, error)

// Interceptor wraps upstream calls with cache-aside semantics: consult the
// store, fetch and populate on miss, return the canonical payload either way.
type Interceptor struct {
	store  Backend
	policy *Policy
	logger zerolog.Logger
	now    func() time.Time
}

// NewInterceptor creates an interceptor over the given store and policy.
// The policy is shared by reference and must not be mutated after this.
func NewInterceptor(store Backend, policy *Policy) *Interceptor {
	if store == nil {
		panic("store cannot be nil")
	}
	if policy == nil {
		panic("policy cannot be nil")
	}
	return &Interceptor{
		store:  store,
		policy: policy,
		logger: logging.NewLogger("interceptor"),
		now:    time.Now,
	}
}

// SetNowFunc overrides the clock (for testing calendar-aligned TTLs).
func (i *Interceptor) SetNowFunc(now func() time.Time) {
	i.now = now
}

// Execute runs the cache-aside algorithm for one request and returns the
// encoded payload.
//
// Hit path: the cached bytes are validated (well-formed payload with a known
// shape tag) and returned as-is; fetch is never invoked. A corrupt entry
// counts as a miss.
//
// Miss path: fetch is invoked; its failure propagates uncached. On success
// the record is normalized, stored with the category's TTL (best effort;
// store failures are logged and swallowed) and returned.
//
// Two concurrent misses for the same key may both invoke fetch; the racing
// writes carry equivalent data and last-writer-wins, so no per-key
// single-flight is applied.
func (i *Interceptor) Execute(ctx context.Context, category string, args []string, fetch UpstreamFunc) ([]byte, error) {
	key := BuildKey(category, args...).String()

	if data, err := i.store.Get(ctx, key); err == nil {
		if verr := payload.Validate(data); verr == nil {
			cacheHits.WithLabelValues(category).Inc()
			i.logger.Debug().Str("key", key).Msg("Cache hit")
			return data, nil
		}
		i.logger.Warn().Str("key", key).Msg("Corrupt cache entry, refetching")
	}
	cacheMisses.WithLabelValues(category).Inc()
	i.logger.Debug().Str("key", key).Msg("Cache miss")

	rec, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Upstream succeeded with no data. An empty answer is still a
		// valid, cacheable answer.
		rec = &payload.Mapping{}
	}

	data, err := payload.Encode(rec)
	if err != nil {
		return nil, err
	}

	rule := i.policy.Lookup(category)
	ttl := rule.TTLAt(i.now())
	if err := i.store.Set(ctx, key, data, ttl); err != nil {
		i.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed, serving uncached")
	} else {
		i.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached payload")
	}

	return data, nil
}
