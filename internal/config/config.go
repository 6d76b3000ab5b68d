// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBackendURL is used when no backend URL is configured.
const DefaultBackendURL = "https://carbon-webapp-s97l.onrender.com"

// Config holds all application configuration.
type Config struct {
	BackendURL     string
	Port           string
	FrontendURL    string
	DBPath         string
	ChatStorageKey string
	RequestTimeout time.Duration
	SessionTTL     time.Duration
	RateLimit      RateLimitConfig
	Log            LogConfig
}

// RateLimitConfig throttles chat sends per browser identity. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// LogConfig controls slog output.
type LogConfig struct {
	Level slog.Level
	Path  string // used by the terminal UI, which owns stdout
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	backendURL := getEnv("EARTHMATE_BACKEND_URL", "")
	if backendURL == "" {
		// Name used by the browser build.
		backendURL = getEnv("VITE_BACKEND_URL", DefaultBackendURL)
	}
	if backendURL == "" {
		backendURL = DefaultBackendURL
	}

	cfg := &Config{
		BackendURL:     strings.TrimRight(backendURL, "/"),
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/earthmate.db"),
		ChatStorageKey: getEnv("CHAT_STORAGE_KEY", "chatMessages"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
		},
		Log: LogConfig{
			Level: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
			Path:  getEnv("LOG_PATH", "./data/earthmate.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("EARTHMATE_BACKEND_URL must be an absolute http(s) URL, got %q", c.BackendURL)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ChatStorageKey == "" {
		return fmt.Errorf("CHAT_STORAGE_KEY cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins the companion server accepts.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
