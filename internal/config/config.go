package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Auth configuration
	Auth AuthConfig

	// Cache configuration
	Cache CacheConfig

	// Import/Export configuration
	Import ImportConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// AuthConfig holds token and bootstrap account settings
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	Issuer        string
	AdminUsername string
	AdminPassword string
}

// CacheConfig holds result cache settings
type CacheConfig struct {
	Backend       string // "memory" or "redis"
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// ImportConfig holds import settings
type ImportConfig struct {
	MaxBatchSize int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// ClientConfig holds settings for the terminal client
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	PageSize        int
	DebounceWindow  time.Duration
	Concurrency     int
	CacheTTL        time.Duration
	ImportBatchSize int
	SessionPath     string
	Log             LogConfig
}

// Load reads server configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "leadboard"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getDurationEnv("JWT_TOKEN_TTL", 24*time.Hour),
			Issuer:        getEnv("JWT_ISSUER", "leadboard"),
			AdminUsername: getEnv("ADMIN_USERNAME", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			TTL:           getDurationEnv("CACHE_TTL", 30*time.Second),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getIntEnv("REDIS_DB", 0),
			KeyPrefix:     getEnv("CACHE_KEY_PREFIX", "leadboard:"),
		},
		Import: ImportConfig{
			MaxBatchSize: getIntEnv("IMPORT_MAX_BATCH_SIZE", 500),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("CACHE_BACKEND must be one of: memory, redis")
	}
	return nil
}

// LoadClient reads terminal client configuration from environment variables
func LoadClient() (*ClientConfig, error) {
	home, _ := os.UserHomeDir()
	cfg := &ClientConfig{
		BaseURL:         getEnv("LEADBOARD_URL", "http://localhost:8080"),
		Timeout:         getDurationEnv("LEADBOARD_TIMEOUT", 30*time.Second),
		PageSize:        getIntEnv("LEADBOARD_PAGE_SIZE", 20),
		DebounceWindow:  getDurationEnv("LEADBOARD_DEBOUNCE", 300*time.Millisecond),
		Concurrency:     getIntEnv("LEADBOARD_CONCURRENCY", 4),
		CacheTTL:        getDurationEnv("LEADBOARD_CACHE_TTL", 60*time.Second),
		ImportBatchSize: getIntEnv("LEADBOARD_IMPORT_BATCH", 100),
		SessionPath:     getEnv("LEADBOARD_SESSION_DB", home+"/.leadboard.db"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "warn"),
			Format: getEnv("LOG_FORMAT", "pretty"),
		},
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("LEADBOARD_URL is required")
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 200 {
		return nil, fmt.Errorf("LEADBOARD_PAGE_SIZE must be between 1 and 200")
	}
	if cfg.ImportBatchSize <= 0 {
		return nil, fmt.Errorf("LEADBOARD_IMPORT_BATCH must be positive")
	}
	return cfg, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
