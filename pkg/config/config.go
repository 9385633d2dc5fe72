// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the proxy needs at startup.
type Config struct {
	// HTTP server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8080"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Cache policy
	DefaultTTL time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"1h"`
	PolicyFile string        `env:"CACHE_POLICY_FILE"`

	// Admin surface. An empty token disables the destructive clear route.
	AdminToken string `env:"ADMIN_TOKEN"`

	// Upstream provider
	UpstreamBaseURL string        `env:"UPSTREAM_BASE_URL" envDefault:"https://query1.finance.yahoo.com"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UserAgent       string        `env:"USER_AGENT" envDefault:"market-proxy/0.1.0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	return cfg, nil
}

// Addr returns the host:port the HTTP server binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
