package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quantlytic/market-proxy/pkg/logging"
)

// ErrCacheMiss indicates the requested key holds no live entry. Backend
// failures on read degrade to this error as well: a broken cache forces an
// upstream fetch, it never breaks request handling.
var ErrCacheMiss = errors.New("cache miss")

// Backend is the minimal store contract the interceptor needs. *Store is
// the Redis implementation; tests substitute an in-memory one.
type Backend interface {
	// Get returns the payload for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores payload under key with the given TTL, replacing any
	// existing entry. A non-positive TTL is a no-op.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Stats summarizes the backing store for the admin surface.
type Stats struct {
	Keys            int64   `json:"keys"`
	UsedMemoryBytes int64   `json:"used_memory_bytes"`
	UsedMemoryHuman string  `json:"used_memory_human"`
	KeyspaceHits    int64   `json:"keyspace_hits"`
	KeyspaceMisses  int64   `json:"keyspace_misses"`
	HitRate         float64 `json:"hit_rate"`
}

// Store is the Redis-backed cache store. Expiry is delegated entirely to
// Redis per-key TTLs; the store never sweeps.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewStore creates a Redis-backed store.
func NewStore(client *redis.Client) *Store {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis:  client,
		logger: logging.NewLogger("cache-store"),
	}
}

// Get retrieves a payload by key. Redis being unreachable is not an error
// the caller sees: it is logged, counted, and reported as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		return nil, ErrCacheMiss
	}
	return data, nil
}

// Set stores a payload with the given TTL, overwriting value and TTL of any
// existing entry. Callers treat a returned error as advisory: the response
// has already been produced, it just will not be cached.
func (s *Store) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, key, payload, ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	payloadBytes.Observe(float64(len(payload)))
	return nil
}

// Clear wipes the entire database. Destructive and irreversible; the admin
// route gates it behind the operator token.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.redis.FlushDB(ctx).Err(); err != nil {
		cacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("redis flushdb: %w", err)
	}
	s.logger.Info().Msg("Cache cleared")
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Statistics returns entry count, memory footprint and keyspace hit/miss
// counters from Redis.
func (s *Store) Statistics(ctx context.Context) (Stats, error) {
	keys, err := s.redis.DBSize(ctx).Result()
	if err != nil {
		cacheErrors.WithLabelValues("stats").Inc()
		return Stats{}, fmt.Errorf("redis dbsize: %w", err)
	}

	info, err := s.redis.Info(ctx, "memory", "stats").Result()
	if err != nil {
		cacheErrors.WithLabelValues("stats").Inc()
		return Stats{}, fmt.Errorf("redis info: %w", err)
	}

	stats := parseInfo(info)
	stats.Keys = keys
	return stats, nil
}

// parseInfo extracts the fields we report from an INFO response.
// INFO is line-oriented "field:value" text with '#' section headers.
func parseInfo(info string) Stats {
	var stats Stats

	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch field {
		case "used_memory":
			stats.UsedMemoryBytes, _ = strconv.ParseInt(value, 10, 64)
		case "used_memory_human":
			stats.UsedMemoryHuman = value
		case "keyspace_hits":
			stats.KeyspaceHits, _ = strconv.ParseInt(value, 10, 64)
		case "keyspace_misses":
			stats.KeyspaceMisses, _ = strconv.ParseInt(value, 10, 64)
		}
	}

	if total := stats.KeyspaceHits + stats.KeyspaceMisses; total > 0 {
		stats.HitRate = float64(stats.KeyspaceHits) / float64(total)
	}
	return stats
}
