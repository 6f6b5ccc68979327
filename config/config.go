package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/llm-failover-router/services/providers"
)

// minExclusionTTL is the provider rate-limit window an exclusion must outlive.
const minExclusionTTL = 60 * time.Second

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Crypto        CryptoConfig
	Router        RouterConfig
	Recorder      RecorderConfig
	Admin         AdminConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// RedisConfig selects the exclusion store backend. An empty URL means in-memory.
type RedisConfig struct {
	URL             string
	JanitorInterval time.Duration
}

// CryptoConfig holds the key-at-rest encryption settings
type CryptoConfig struct {
	EncryptionKey string // hex, at least 64 chars
}

// RouterConfig tunes the failover loop and the provider transports
type RouterConfig struct {
	ExclusionTTL     time.Duration
	ProviderTimeout  time.Duration
	SystemPromptFile string
	SystemPrompt     string // loaded from SystemPromptFile
	ProvidersFile    string
	Endpoints        map[providers.Tag]providers.Endpoint
}

// RecorderConfig sizes the outcome recorder queue
type RecorderConfig struct {
	BufferSize      int
	Workers         int
	PersistTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// AdminConfig holds the admin session settings
type AdminConfig struct {
	Password     string
	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool
}

// RateLimitConfig throttles the public chat endpoint per client
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
	ClientTTL         time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", ""),
			JanitorInterval: getEnvAsDuration("EXCLUSION_JANITOR_INTERVAL", 60*time.Second),
		},
		Crypto: CryptoConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Router: RouterConfig{
			ExclusionTTL:     getEnvAsDuration("ROUTER_EXCLUSION_TTL", 65*time.Second),
			ProviderTimeout:  getEnvAsDuration("ROUTER_PROVIDER_TIMEOUT", 30*time.Second),
			SystemPromptFile: getEnv("ROUTER_SYSTEM_PROMPT_FILE", ""),
			ProvidersFile:    getEnv("PROVIDERS_FILE", ""),
		},
		Recorder: RecorderConfig{
			BufferSize:      getEnvAsInt("RECORDER_BUFFER_SIZE", 1000),
			Workers:         getEnvAsInt("RECORDER_WORKERS", 2),
			PersistTimeout:  getEnvAsDuration("RECORDER_PERSIST_TIMEOUT", 5*time.Second),
			ShutdownTimeout: getEnvAsDuration("RECORDER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Admin: AdminConfig{
			Password:     getEnv("ADMIN_PASSWORD", ""),
			JWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
			SessionTTL:   getEnvAsDuration("ADMIN_SESSION_TTL", 24*time.Hour),
			CookieSecure: getEnvAsBool("ADMIN_COOKIE_SECURE", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 5),
			ClientTTL:         getEnvAsDuration("RATE_LIMIT_CLIENT_TTL", 10*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}
	if cfg.IsProduction() {
		cfg.Admin.CookieSecure = getEnvAsBool("ADMIN_COOKIE_SECURE", true)
	}

	endpoints, err := LoadProviderEndpoints(cfg.Router.ProvidersFile)
	if err != nil {
		return nil, fmt.Errorf("provider endpoints: %w", err)
	}
	cfg.Router.Endpoints = endpoints

	if cfg.Router.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.Router.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("reading system prompt: %w", err)
		}
		cfg.Router.SystemPrompt = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Crypto.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.Crypto.EncryptionKey) < 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 64 hex characters")
	}
	if _, err := hex.DecodeString(c.Crypto.EncryptionKey); err != nil {
		return fmt.Errorf("ENCRYPTION_KEY must be hex encoded")
	}

	if c.Router.ExclusionTTL <= minExclusionTTL {
		return fmt.Errorf("exclusion TTL must exceed %s, got %s", minExclusionTTL, c.Router.ExclusionTTL)
	}
	if c.Router.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}

	if c.Recorder.BufferSize <= 0 || c.Recorder.Workers <= 0 {
		return fmt.Errorf("recorder buffer size and workers must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_RPM and RATE_LIMIT_BURST")
	}

	if c.IsProduction() {
		if c.Admin.Password == "" {
			return fmt.Errorf("ADMIN_PASSWORD is required in production")
		}
		if c.Admin.JWTSecret == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET is required in production")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", true),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "router")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "llm_router")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
