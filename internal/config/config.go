// Package config loads application configuration from environment variables
// with sensible defaults.
//
// Environment Variables:
// Cache Configuration:
// - REDIS_HOST: Redis host (default: localhost)
// - REDIS_PORT: Redis port (default: 6379)
// - REDIS_DB: Redis database number (default: 0)
//
// Job Configuration:
// - JOB_EXPIRE_TIME: lock/status TTL in seconds (default: 3600)
// - MAX_CONCURRENT_JOBS: concurrent computations (default: 4)
// - PIPELINE_CMD: command that produces a subtitle payload for a URL
// - TARGET_LANGUAGE: default translation target (BCP 47 tag, optional)
//
// Rate Limit Configuration:
// - RATE_LIMIT_MAX_REQUESTS: requests per window (default: 50)
// - RATE_LIMIT_WINDOW: window length in seconds (default: 3600)
//
// Storage Configuration:
// - DB_PATH: sqlite database path (default: ./data/subtitles.db)
//
// HTTP Configuration:
// - HTTP_ADDR: listen address (default: :8080)
//
// Session Configuration:
// - SESSION_TTL_SEC: session TTL in seconds (default: 604800)
//
// Catalog Configuration:
// - CATALOG_REFRESH_CRON: refresh schedule (default: @every 10m)
// - CATALOG_TTL_SEC: cached catalog TTL in seconds (default: 600)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/text/language"
)

type Config struct {
	Redis     RedisConfig     `json:"redis"`
	Jobs      JobsConfig      `json:"jobs"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
	Session   SessionConfig   `json:"session"`
	Catalog   CatalogConfig   `json:"catalog"`
}

type RedisConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	DB   int    `json:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JobsConfig struct {
	// ExpireTime bounds how long a stalled computation can hold its lock. It
	// must be larger than the worst-case pipeline latency.
	ExpireTime    time.Duration `json:"expire_time"`
	MaxConcurrent int           `json:"max_concurrent"`
	PipelineCmd   string        `json:"pipeline_cmd"`

	TargetLanguage language.Tag `json:"target_language"`
}

type RateLimitConfig struct {
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
}

type StorageConfig struct {
	DBPath string `json:"db_path"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type SessionConfig struct {
	TTL time.Duration `json:"ttl"`
}

type CatalogConfig struct {
	RefreshCron string        `json:"refresh_cron"`
	TTL         time.Duration `json:"ttl"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Redis: RedisConfig{
			Host: getEnvString("REDIS_HOST", "localhost"),
			Port: getEnvInt("REDIS_PORT", 6379),
			DB:   getEnvInt("REDIS_DB", 0),
		},
		Jobs: JobsConfig{
			ExpireTime:     getEnvSeconds("JOB_EXPIRE_TIME", time.Hour),
			MaxConcurrent:  getEnvInt("MAX_CONCURRENT_JOBS", 4),
			PipelineCmd:    getEnvString("PIPELINE_CMD", ""),
			TargetLanguage: getEnvLanguage("TARGET_LANGUAGE"),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 50),
			Window:      getEnvSeconds("RATE_LIMIT_WINDOW", time.Hour),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "./data/subtitles.db"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Session: SessionConfig{
			TTL: getEnvSeconds("SESSION_TTL_SEC", 7*24*time.Hour),
		},
		Catalog: CatalogConfig{
			RefreshCron: getEnvString("CATALOG_REFRESH_CRON", "@every 10m"),
			TTL:         getEnvSeconds("CATALOG_TTL_SEC", 10*time.Minute),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Jobs.ExpireTime <= 0 {
		return fmt.Errorf("JOB_EXPIRE_TIME must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvSeconds reads an integer number of seconds with default
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return time.Duration(intValue) * time.Second
		}
	}
	return defaultValue
}

// getEnvLanguage parses a BCP 47 tag, falling back to Und when unset or invalid
func getEnvLanguage(key string) language.Tag {
	value := os.Getenv(key)
	if value == "" {
		return language.Und
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.Und
	}
	return tag
}
