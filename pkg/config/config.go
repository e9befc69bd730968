package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shuttertag/shuttertag/pkg/observability"
	"github.com/shuttertag/shuttertag/pkg/rbac"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Cache         CacheConfig
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

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds token verification settings. Exactly one verification
// mode is active: JWKS against an identity provider, or a shared HS256
// secret for local development.
type AuthConfig struct {
	JWKSURL   string
	IssuerURL string
	Audience  string

	// Dev-only fallback, used when JWKSURL is empty
	JWTSecret string
}

// CacheConfig holds permission cache and invalidation bus settings
type CacheConfig struct {
	TTL time.Duration

	// Redis invalidation bus; empty disables the bus and invalidations
	// stay local to the instance
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SHUTTERTAG_HOST", "0.0.0.0"),
			Port:            getEnv("SHUTTERTAG_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SHUTTERTAG_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SHUTTERTAG_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SHUTTERTAG_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTTERTAG_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("SHUTTERTAG_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("SHUTTERTAG_DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("SHUTTERTAG_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("SHUTTERTAG_DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("SHUTTERTAG_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Auth: AuthConfig{
			JWKSURL:   getEnv("SHUTTERTAG_JWKS_URL", ""),
			IssuerURL: getEnv("SHUTTERTAG_ISSUER_URL", ""),
			Audience:  getEnv("SHUTTERTAG_AUDIENCE", ""),
			JWTSecret: getEnv("SHUTTERTAG_JWT_SECRET", ""),
		},
		Cache: CacheConfig{
			TTL:           getEnvDuration("SHUTTERTAG_PERMISSION_CACHE_TTL", rbac.DefaultCacheTTL),
			RedisAddr:     getEnv("SHUTTERTAG_REDIS_ADDR", ""),
			RedisPassword: getEnv("SHUTTERTAG_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("SHUTTERTAG_REDIS_DB", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("SHUTTERTAG_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("SHUTTERTAG_METRICS_ENABLED", true),
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
		return fmt.Errorf("database URL is required")
	}

	if c.Auth.JWKSURL == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("either a JWKS URL or a JWT secret is required")
	}
	if c.Auth.JWKSURL != "" && c.Auth.Audience == "" {
		return fmt.Errorf("audience is required when verifying against a JWKS endpoint")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("permission cache TTL must be positive")
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
