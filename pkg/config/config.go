// Package config loads the asset service's configuration from an optional
// YAML file overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port            int           `json:"port" yaml:"port" env:"SERVER_PORT"`
	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT"`
	BodyLimitBytes  int64         `json:"body_limit_bytes" yaml:"body_limit_bytes" env:"SERVER_BODY_LIMIT_BYTES"`
}

// DatabaseConfig controls Postgres persistence for accounts/assets/stats.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" yaml:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" yaml:"port" env:"DATABASE_PORT"`
	User            string `json:"user" yaml:"user" env:"DATABASE_USER"`
	Password        string `json:"password" yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// ConnectionString builds a PostgreSQL connection string from host parameters.
// DSN, if set, takes precedence.
func (c DatabaseConfig) ConnectionString() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig controls the task queue, event bus, and rate limiter backend.
type RedisConfig struct {
	Addr         string `json:"addr" yaml:"addr" env:"REDIS_ADDR"`
	Password     string `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB           int    `json:"db" yaml:"db" env:"REDIS_DB"`
	SentinelAddrs []string `json:"sentinel_addrs" yaml:"sentinel_addrs" env:"REDIS_SENTINEL_ADDRS"`
	MasterName   string `json:"master_name" yaml:"master_name" env:"REDIS_MASTER_NAME"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// BackendConfig holds the default settings used when an account has not
// configured its own public/secure storage backend.
type BackendConfig struct {
	LocalFilesPath      string `json:"local_files_path" yaml:"local_files_path" env:"BACKEND_LOCAL_FILES_PATH"`
	AzureAccountURL     string `json:"azure_account_url" yaml:"azure_account_url" env:"BACKEND_AZURE_ACCOUNT_URL"`
	AzureContainer      string `json:"azure_container" yaml:"azure_container" env:"BACKEND_AZURE_CONTAINER"`
}

// SecurityConfig controls admin/control-plane authentication.
type SecurityConfig struct {
	ServiceJWTSecret   string        `json:"service_jwt_secret" yaml:"service_jwt_secret" env:"SECURITY_SERVICE_JWT_SECRET"`
	ServiceTokenTTL    time.Duration `json:"service_token_ttl" yaml:"service_token_ttl" env:"SECURITY_SERVICE_TOKEN_TTL"`
}

// LimitsConfig carries the service-wide defaults referenced throughout the
// component design (rate limiting, API log retention, variation caps).
type LimitsConfig struct {
	APIRateLimitPerSecond int           `json:"api_rate_limit_per_second" yaml:"api_rate_limit_per_second" env:"LIMITS_API_RATE_LIMIT_PER_SECOND"`
	APIMaxLogEntries      int           `json:"api_max_log_entries" yaml:"api_max_log_entries" env:"LIMITS_API_MAX_LOG_ENTRIES"`
	APILogRetention       time.Duration `json:"api_log_retention" yaml:"api_log_retention" env:"LIMITS_API_LOG_RETENTION"`
	MaxVariationsPerReq   int           `json:"max_variations_per_request" yaml:"max_variations_per_request" env:"LIMITS_MAX_VARIATIONS_PER_REQUEST"`
	MaxStatusInterval     time.Duration `json:"max_status_interval" yaml:"max_status_interval" env:"LIMITS_MAX_STATUS_INTERVAL"`
	IdleLifespan          time.Duration `json:"idle_lifespan" yaml:"idle_lifespan" env:"LIMITS_IDLE_LIFESPAN"`
	Timezone              string        `json:"timezone" yaml:"timezone" env:"LIMITS_TIMEZONE"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Backend  BackendConfig  `json:"backend" yaml:"backend"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Limits   LimitsConfig   `json:"limits" yaml:"limits"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
			BodyLimitBytes: 64 << 20,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Limits: LimitsConfig{
			APIRateLimitPerSecond: 10,
			APIMaxLogEntries:      1000,
			APILogRetention:       30 * 24 * time.Hour,
			MaxVariationsPerReq:   10,
			MaxStatusInterval:     15 * time.Second,
			IdleLifespan:          5 * time.Minute,
			Timezone:              "UTC",
		},
	}
}

// Load loads configuration from an optional file and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when none of the tagged fields are
		// present in the environment; treat that as "no overrides" so local
		// runs work without exporting every variable.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, applying defaults first.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets DATABASE_URL override a file-based DSN,
// matching the flag/env precedence used by cmd/h51server.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
