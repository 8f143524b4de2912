// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for everything except the postgres URL and the JWT secret.
//
// # Configuration Structure
//
// Server settings:
//
//	WARDEN_HOST="0.0.0.0"
//	WARDEN_PORT="8080"
//	WARDEN_HEALTH_PORT="9090"
//	WARDEN_READ_TIMEOUT="15s"
//	WARDEN_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	WARDEN_POSTGRES_URL="postgres://localhost/warden"
//	WARDEN_POSTGRES_MAX_CONNS="20"
//
// Cache settings:
//
//	WARDEN_CACHE_ENABLED="true"
//	WARDEN_REDIS_URL="redis://localhost:6379"
//	WARDEN_REDIS_POOL_SIZE="10"
//
// Auth settings:
//
//	WARDEN_JWT_SECRET="..."           # required, at least 32 bytes
//	WARDEN_ACCESS_TOKEN_TTL="15m"
//	WARDEN_REFRESH_TOKEN_TTL="720h"
//	WARDEN_TOKEN_CLEANUP_SCHEDULE="@hourly"
//
// Observability settings:
//
//	WARDEN_LOG_LEVEL="info"  # debug, info, warn, error
//	WARDEN_METRICS_ENABLED="true"
package config
