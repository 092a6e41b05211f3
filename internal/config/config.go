package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	RekorURL               string
	RekorTimeoutSeconds    int
	RekorRequestsPerSecond int
	RekorBurst             int

	EntryCacheSize int
	CheckpointFile string

	MonitorIntervalSeconds int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:               envDefault("HTTP_ADDR", ":8080"),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		RekorURL:               envDefault("REKOR_URL", "https://rekor.sigstore.dev"),
		RekorTimeoutSeconds:    envCountDefault("REKOR_TIMEOUT_SECONDS", 10),
		RekorRequestsPerSecond: envCountDefault("REKOR_REQUESTS_PER_SECOND", 5),
		RekorBurst:             envIntDefault("REKOR_BURST", 5),
		EntryCacheSize:         envIntDefault("ENTRY_CACHE_SIZE", 1024),
		CheckpointFile:         os.Getenv("CHECKPOINT_FILE"),
		MonitorIntervalSeconds: envCountDefault("MONITOR_INTERVAL_SECONDS", 0),
		RateLimitRequests:      envCountDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envCountDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// envCountDefault is envIntDefault for settings where 0 switches the feature
// off.
func envCountDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) RekorTimeout() time.Duration {
	return seconds(c.RekorTimeoutSeconds)
}

func (c Config) RateLimitWindow() time.Duration {
	return seconds(c.RateLimitWindowSeconds)
}

// MonitorInterval is zero when the background monitor is disabled.
func (c Config) MonitorInterval() time.Duration {
	return seconds(c.MonitorIntervalSeconds)
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
