package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/password"
	"github.com/platinummonkey/warden/pkg/token"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database database.Config

	// Redis cache configuration
	Cache CacheConfig

	// Auth configuration
	Auth AuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// CacheConfig holds redis cache configuration
type CacheConfig struct {
	Enabled bool
	Redis   cache.Config
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	// JWTSecret signs access tokens. Required, no default.
	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	BcryptCost int

	// CleanupSchedule is a cron expression for expired-token purging
	CleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
			Port:            getEnv("WARDEN_PORT", "8080"),
			ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
		},
		Database: database.Config{
			URL:             getEnv("WARDEN_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("WARDEN_POSTGRES_MAX_CONNS", 20),
			MaxIdleConns:    getEnvInt("WARDEN_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("WARDEN_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("WARDEN_CACHE_ENABLED", true),
			Redis: cache.Config{
				URL:        getEnv("WARDEN_REDIS_URL", "redis://localhost:6379"),
				Password:   getEnv("WARDEN_REDIS_PASSWORD", ""),
				DB:         getEnvInt("WARDEN_REDIS_DB", 0),
				MaxRetries: getEnvInt("WARDEN_REDIS_MAX_RETRIES", 3),
				PoolSize:   getEnvInt("WARDEN_REDIS_POOL_SIZE", 10),
			},
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("WARDEN_JWT_SECRET", ""),
			Issuer:          getEnv("WARDEN_TOKEN_ISSUER", token.DefaultIssuer),
			AccessTTL:       getEnvDuration("WARDEN_ACCESS_TOKEN_TTL", token.DefaultAccessTTL),
			RefreshTTL:      getEnvDuration("WARDEN_REFRESH_TOKEN_TTL", token.DefaultRefreshTTL),
			BcryptCost:      getEnvInt("WARDEN_BCRYPT_COST", password.DefaultCost),
			CleanupSchedule: getEnv("WARDEN_TOKEN_CLEANUP_SCHEDULE", "@hourly"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("WARDEN_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return fmt.Errorf("access token TTL must be shorter than refresh token TTL")
	}

	if c.Cache.Enabled && c.Cache.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
