// Package config loads service configuration from the environment.
// An optional .env file is read first; variables already set in the
// environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Snapshot backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all app configuration.
type Config struct {
	// Solana
	RPCEndpoint  string
	WSEndpoint   string
	ProviderTier string

	// Server
	HTTPAddr string

	// Cache
	CacheSuccessTTL time.Duration
	CacheErrorTTL   time.Duration
	CacheMaxEntries int

	// Analysis
	TopN             int
	RankPolicy       string
	ExtraExclusions  []string
	AnalyzeTimeout   time.Duration
	CoalesceRequests bool

	// Snapshot store (second cache tier)
	SnapshotBackend string
	PostgresDSN     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Run log
	ClickHouseDSN string

	// Activity watcher
	WatchActivity     bool
	WatchMaxAddresses int
}

// Load reads the optional .env file at path (skipped when empty or missing)
// and builds a Config from the environment.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	maxEntries := getEnvAsInt("CACHE_MAX_ENTRIES", 100)

	cfg := &Config{
		RPCEndpoint:  getEnv("SOLANA_RPC_ENDPOINT", ""),
		WSEndpoint:   getEnv("SOLANA_WS_ENDPOINT", ""),
		ProviderTier: getEnv("PROVIDER_TIER", "standard"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		CacheSuccessTTL: getEnvAsDuration("CACHE_SUCCESS_TTL", 5*time.Minute),
		CacheErrorTTL:   getEnvAsDuration("CACHE_ERROR_TTL", time.Minute),
		CacheMaxEntries: maxEntries,

		TopN:             getEnvAsInt("TOP_N", 25),
		RankPolicy:       getEnv("RANK_POLICY", "volume"),
		ExtraExclusions:  getEnvAsSlice("EXTRA_EXCLUDED_ACCOUNTS", nil, ","),
		AnalyzeTimeout:   getEnvAsDuration("ANALYZE_TIMEOUT", 90*time.Second),
		CoalesceRequests: getEnvAsBool("COALESCE_REQUESTS", true),

		SnapshotBackend: strings.ToLower(getEnv("SNAPSHOT_BACKEND", BackendNone)),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),

		ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),

		WatchActivity:     getEnvAsBool("WATCH_ACTIVITY", false),
		WatchMaxAddresses: getEnvAsInt("WATCH_MAX_ADDRESSES", maxEntries),
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return errors.New("SOLANA_RPC_ENDPOINT is required")
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.CacheMaxEntries)
	}
	if c.CacheSuccessTTL <= 0 || c.CacheErrorTTL <= 0 {
		return errors.New("cache TTLs must be positive")
	}

	switch c.SnapshotBackend {
	case BackendNone, BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres snapshot backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis snapshot backend")
		}
	default:
		return fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}

	if c.WatchActivity && c.WSEndpoint == "" {
		return errors.New("SOLANA_WS_ENDPOINT is required when WATCH_ACTIVITY is set")
	}
	return nil
}

// Helper functions for parsing environment variables
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(key, "")
	if val, err := time.ParseDuration(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
