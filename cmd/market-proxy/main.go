package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantlytic/market-proxy/internal/api"
	"github.com/quantlytic/market-proxy/pkg/cache"
	"github.com/quantlytic/market-proxy/pkg/config"
	"github.com/quantlytic/market-proxy/pkg/logging"
	"github.com/quantlytic/market-proxy/pkg/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		l := logging.NewLogger("main")
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	}).With().Str("component", "main").Logger()

	// Redis. An unreachable store is not fatal: every read degrades to a
	// miss and the proxy serves straight from the upstream.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
			Msg("Redis unreachable, caching degraded to pass-through")
	} else {
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	}
	cancel()

	// TTL policy, built once and shared read-only.
	policy := cache.NewPolicy(cfg.DefaultTTL)
	if cfg.PolicyFile != "" {
		if err := policy.LoadOverridesFile(cfg.PolicyFile); err != nil {
			logger.Fatal().Err(err).Str("file", cfg.PolicyFile).Msg("Failed to load policy overrides")
		}
		logger.Info().Str("file", cfg.PolicyFile).Msg("Loaded policy overrides")
	}

	store := cache.NewStore(redisClient)
	interceptor := cache.NewInterceptor(store, policy)
	admin := cache.NewAdmin(store, policy)

	upstreamClient, err := upstream.New(upstream.Config{
		BaseURL:   cfg.UpstreamBaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.UpstreamTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create upstream client")
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewServer(interceptor, admin, upstreamClient, cfg.AdminToken).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("Starting market-data proxy")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("Closing Redis client failed")
	}
}
