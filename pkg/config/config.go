package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	DocStore      DocStoreConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Recovery      RecoveryConfig
	Sync          SyncConfig
	Observability ObservabilityConfig
	Finance       FinanceConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	AllowedOrigins     []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DocStoreConfig selects the document database backing cloud sync and recovery.
type DocStoreConfig struct {
	Type string // "postgres" or "memory"
}

type StorageConfig struct {
	Type      string // "bolt", "memory" or "gcs"
	BoltPath  string
	GCSBucket string
	GCSPrefix string
}

type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

type RecoveryConfig struct {
	SampleSize int
	FetchLimit int
	Candidates []string // empty means the built-in candidate list
}

type SyncConfig struct {
	Enabled  bool
	Schedule string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
}

type FinanceConfig struct {
	DefaultCurrency string
}

// Load reads configuration from environment variables, after loading a .env file when present.
func Load() (*Config, error) {
	cfg, err := LoadWithoutSecrets()
	if err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

// LoadWithoutSecrets is Load for command line tools that never issue or check tokens.
func LoadWithoutSecrets() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			AllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "finance-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		DocStore: DocStoreConfig{
			Type: getEnv("DOCSTORE_TYPE", "postgres"),
		},
		Storage: StorageConfig{
			Type:      getEnv("STORAGE_TYPE", "bolt"),
			BoltPath:  getEnv("STORAGE_BOLT_PATH", "./data/finance.db"),
			GCSBucket: getEnv("STORAGE_GCS_BUCKET", ""),
			GCSPrefix: getEnv("STORAGE_GCS_PREFIX", "finance/"),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			AccessTokenTTL: getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
		},
		Recovery: RecoveryConfig{
			SampleSize: getEnvAsInt("RECOVERY_SAMPLE_SIZE", 5),
			FetchLimit: getEnvAsInt("RECOVERY_FETCH_LIMIT", 0),
			Candidates: getEnvAsList("RECOVERY_CANDIDATES", nil),
		},
		Sync: SyncConfig{
			Enabled:  getEnvAsBool("SYNC_ENABLED", true),
			Schedule: getEnv("SYNC_SCHEDULE", "*/30 * * * *"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
		Finance: FinanceConfig{
			DefaultCurrency: getEnv("DEFAULT_CURRENCY", "BRL"),
		},
	}

	if cfg.Storage.Type == "gcs" && cfg.Storage.GCSBucket == "" {
		return nil, errors.New("STORAGE_GCS_BUCKET is required when STORAGE_TYPE=gcs")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the listen address for the HTTP server
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
