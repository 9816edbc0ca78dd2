package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/mr1hm/go-dam-alerts/internal/feed"
)

type Config struct {
	Server  ServerConfig
	Feed    FeedConfig
	Worker  WorkerConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type FeedConfig struct {
	URL             string
	MaxAge          time.Duration // staleness window of the cached snapshot
	Timeout         time.Duration
	PollEnabled     bool
	PollInterval    time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
		},
		Feed: FeedConfig{
			URL:             getEnv("FEED_URL", feed.DefaultURL),
			MaxAge:          getEnvDuration("FEED_MAX_AGE", 5*time.Minute),
			Timeout:         getEnvDuration("FEED_TIMEOUT", 15*time.Second),
			PollEnabled:     getEnvBool("FEED_POLL_ENABLED", true),
			PollInterval:    getEnvDuration("FEED_POLL_INTERVAL", 10*time.Minute),
			BreakerFailures: getEnvInt("FEED_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvDuration("FEED_BREAKER_COOLDOWN", time.Minute),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/dam-alerts.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	u, err := url.Parse(c.Feed.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid feed URL: %q", c.Feed.URL)
	}
	if c.Feed.MaxAge <= 0 {
		return fmt.Errorf("feed max age must be positive")
	}
	if c.Feed.Timeout <= 0 {
		return fmt.Errorf("feed timeout must be positive")
	}
	if c.Feed.PollEnabled && c.Feed.PollInterval < time.Minute {
		return fmt.Errorf("feed poll interval must be at least 1 minute")
	}
	if c.Feed.BreakerFailures < 1 {
		return fmt.Errorf("feed breaker failures must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
