package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks served-from-cache responses by category.
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_hits_total",
			Help: "Total number of cache hits by endpoint category",
		},
		[]string{"category"},
	)

	// cacheMisses tracks misses (including degraded reads) by category.
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_misses_total",
			Help: "Total number of cache misses by endpoint category",
		},
		[]string{"category"},
	)

	// cacheErrors tracks backing-store operation failures.
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "clear", "stats"
	)

	// payloadBytes tracks the size of payloads written to the store.
	payloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "market_cache_payload_bytes",
			Help:    "Size distribution of cached payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)
)
