package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Profile cache backends
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	TileServerURL    string
	TileServerGzip   bool
	TileFetchTimeout time.Duration
	TileCacheSize    int
	TileDiskCacheDir string

	HomeLat         float64
	HomeLon         float64
	TileWarmRadius  float64
	TileWarmOnStart bool

	FallbackURL     string
	FallbackTimeout time.Duration
	FallbackRPS     float64

	CacheBackend    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisKeyPrefix  string
	PostgresDSN     string
	ProfileCacheTTL time.Duration

	SampleCount       int
	ObserverEyeHeight float64
	BlockedThreshold  float64
	PartialThreshold  float64

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		TileServerURL:    getEnv("TILE_SERVER_URL", "http://localhost:8000/tiles"),
		TileServerGzip:   getBoolEnv("TILE_SERVER_GZIP", false),
		TileFetchTimeout: getDurationEnv("TILE_FETCH_TIMEOUT", 30*time.Second),
		TileCacheSize:    getIntEnv("TILE_CACHE_SIZE", 64),
		TileDiskCacheDir: getEnv("TILE_DISK_CACHE_DIR", ""),

		HomeLat:         getFloatEnv("HOME_LAT", 51.6724),
		HomeLon:         getFloatEnv("HOME_LON", 14.4354),
		TileWarmRadius:  getFloatEnv("TILE_WARM_RADIUS", 3000),
		TileWarmOnStart: getBoolEnv("TILE_WARM_ON_START", true),

		FallbackURL:     getEnv("FALLBACK_URL", "https://api.open-elevation.com/api/v1/lookup"),
		FallbackTimeout: getDurationEnv("FALLBACK_TIMEOUT", 15*time.Second),
		FallbackRPS:     getFloatEnv("FALLBACK_RPS", 1),

		CacheBackend:    strings.ToLower(getEnv("CACHE_BACKEND", BackendRedis)),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		RedisKeyPrefix:  getEnv("REDIS_KEY_PREFIX", "windview:"),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		ProfileCacheTTL: getDurationEnv("PROFILE_CACHE_TTL", 24*time.Hour),

		SampleCount:       getIntEnv("SAMPLE_COUNT", 20),
		ObserverEyeHeight: getFloatEnv("OBSERVER_EYE_HEIGHT", 1.7),
		BlockedThreshold:  getFloatEnv("BLOCKED_THRESHOLD", 10),
		PartialThreshold:  getFloatEnv("PARTIAL_THRESHOLD", 70),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when CACHE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of redis, postgres, memory; got %q", c.CacheBackend)
	}
	if c.TileServerURL == "" {
		return fmt.Errorf("TILE_SERVER_URL is required")
	}
	if c.TileCacheSize < 1 {
		return fmt.Errorf("TILE_CACHE_SIZE must be positive, got %d", c.TileCacheSize)
	}
	if c.SampleCount < 2 {
		return fmt.Errorf("SAMPLE_COUNT must be at least 2, got %d", c.SampleCount)
	}
	if c.ObserverEyeHeight < 0 {
		return fmt.Errorf("OBSERVER_EYE_HEIGHT must not be negative, got %g", c.ObserverEyeHeight)
	}
	if c.BlockedThreshold < 0 || c.PartialThreshold > 100 || c.BlockedThreshold >= c.PartialThreshold {
		return fmt.Errorf("thresholds must satisfy 0 <= BLOCKED_THRESHOLD < PARTIAL_THRESHOLD <= 100, got %g and %g",
			c.BlockedThreshold, c.PartialThreshold)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
