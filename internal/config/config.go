// Package config provides configuration loading for the orchestrator service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

// Config holds all configuration for the orchestrator service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Storage selection ("memory", "redis" or "sql")
	CatalogStore  string
	RecorderStore string

	// SQL configuration
	DatabaseDriver string // "sqlite3" or "postgres"
	DatabaseURL    string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Recorder configuration
	RecorderTTL          time.Duration
	RecorderMaxEntries   int
	RecorderRetryBackoff time.Duration

	// Worker calls
	WorkerSharedSecret string
	CallerID           string
	WorkerBindings     map[string]string // binding ref -> base URL
	DefaultStepTimeout time.Duration
	SlowStepThreshold  time.Duration
	MaxResponseBytes   int64

	// Pipeline defaults
	DefaultTemplate             string
	DefaultSourceDiscoveryDepth int
	DefaultMaxArticles          int

	// Catalog seeding
	CatalogFile string // empty = embedded default catalog
	SeedOnStart bool

	// Archive configuration
	ArchiveBackend   string // "", "memory", "s3" or "minio"
	ArchiveEndpoint  string
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveUseSSL    bool
	ArchivePrefix    string

	// Tracing
	OTelEnabled    bool
	OTelEndpoint   string
	OTelSampleRate float64
	ServiceVersion string

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "8080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 5*time.Minute), // orchestrate is synchronous
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// Storage
		CatalogStore:   getEnv("CATALOG_STORE", StoreMemory),
		RecorderStore:  getEnv("RECORDER_STORE", StoreMemory),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:    getEnv("DATABASE_URL", "bitware.db"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// Recorder
		RecorderTTL:          getDuration("RECORDER_TTL", 30*24*time.Hour),
		RecorderMaxEntries:   getInt("RECORDER_MAX_ENTRIES", 1000),
		RecorderRetryBackoff: getDuration("RECORDER_RETRY_BACKOFF", 500*time.Millisecond),

		// Workers
		WorkerSharedSecret: getEnv("WORKER_SHARED_SECRET", ""),
		CallerID:           getEnv("CALLER_ID", "bitware_orchestrator"),
		WorkerBindings:     getStringMap("WORKER_BINDINGS", map[string]string{}),
		DefaultStepTimeout: getDuration("DEFAULT_STEP_TIMEOUT", 30*time.Second),
		SlowStepThreshold:  getDuration("SLOW_STEP_THRESHOLD", 10*time.Second),
		MaxResponseBytes:   getInt64("WORKER_MAX_RESPONSE_BYTES", 10<<20),

		// Pipeline defaults
		DefaultTemplate:             getEnv("DEFAULT_TEMPLATE", "complete_pipeline"),
		DefaultSourceDiscoveryDepth: getInt("DEFAULT_SOURCE_DISCOVERY_DEPTH", 3),
		DefaultMaxArticles:          getInt("DEFAULT_MAX_ARTICLES", 50),

		// Catalog
		CatalogFile: getEnv("CATALOG_FILE", ""),
		SeedOnStart: getBool("SEED_ON_START", true),

		// Archive
		ArchiveBackend:   getEnv("ARCHIVE_BACKEND", ""),
		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", "bitware-executions"),
		ArchiveRegion:    getEnv("ARCHIVE_REGION", "us-east-1"),
		ArchiveAccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveUseSSL:    getBool("ARCHIVE_USE_SSL", true),
		ArchivePrefix:    getEnv("ARCHIVE_PREFIX", ""),

		// Tracing
		OTelEnabled:    getBool("OTEL_ENABLED", false),
		OTelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRate: getFloat("OTEL_SAMPLE_RATE", 1.0),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 50.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 100),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return strings.Split(val, ",")
	}
	return defaultVal
}

// getStringMap parses "KEY=value,KEY2=value2". Entries without '=' are skipped.
func getStringMap(key string, defaultVal map[string]string) map[string]string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
