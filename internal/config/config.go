// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider selects which model backend the gateway talks to.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds all application configuration.
type Config struct {
	Port       string
	AppEnv     string
	CORSOrigin string
	LogLevel   slog.Level

	// Identity
	JWTSecret string

	// Document store
	DBPath string

	// Counter store
	RedisURL string

	// Model backend
	Provider string
	OpenAI   OpenAIConfig
	Ollama   OllamaConfig

	// Rate limits
	RateLimits RateLimitConfig
}

// OpenAIConfig holds hosted-API backend settings.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OllamaConfig holds local inference server settings.
type OllamaConfig struct {
	Host      string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// TierLimits are the request ceilings for one subscription tier.
type TierLimits struct {
	Daily     int
	PerMinute int
}

// RateLimitConfig holds per-tier rate ceilings.
type RateLimitConfig struct {
	Free TierLimits
	Pro  TierLimits
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),
		LogLevel:   parseLogLevel(getEnv("LOG_LEVEL", "info")),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		DBPath:     getEnv("DB_PATH", "./data/gateway.db"),
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379"),
		Provider:   strings.ToLower(getEnv("AI_PROVIDER", ProviderOpenAI)),
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvInt("OPENAI_MAX_TOKENS", 200),
			Temperature: getEnvFloat("OPENAI_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("OPENAI_TIMEOUT", 30*time.Second),
		},
		Ollama: OllamaConfig{
			Host:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:     getEnv("OLLAMA_MODEL", "llama3.2"),
			MaxTokens: getEnvInt("OLLAMA_MAX_TOKENS", 200),
			Timeout:   getEnvDuration("OLLAMA_TIMEOUT", 30*time.Second),
		},
		RateLimits: RateLimitConfig{
			Free: TierLimits{
				Daily:     getEnvInt("RATE_LIMIT_FREE_DAILY", 5),
				PerMinute: getEnvInt("RATE_LIMIT_FREE_PER_MINUTE", 1),
			},
			Pro: TierLimits{
				Daily:     getEnvInt("RATE_LIMIT_PRO_DAILY", 100),
				PerMinute: getEnvInt("RATE_LIMIT_PRO_PER_MINUTE", 10),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY must be set when AI_PROVIDER is %q", ProviderOpenAI)
		}
	case ProviderOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("OLLAMA_HOST must be set when AI_PROVIDER is %q", ProviderOllama)
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q (expected %q or %q)", c.Provider, ProviderOpenAI, ProviderOllama)
	}
	if c.RateLimits.Free.Daily <= 0 || c.RateLimits.Free.PerMinute <= 0 ||
		c.RateLimits.Pro.Daily <= 0 || c.RateLimits.Pro.PerMinute <= 0 {
		return fmt.Errorf("rate limit ceilings must be > 0")
	}
	if c.RateLimits.Free.Daily >= c.RateLimits.Pro.Daily {
		return fmt.Errorf("free daily ceiling must be below pro daily ceiling")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

// Limits returns the rate ceilings for a subscription tier.
func (c *Config) Limits(pro bool) TierLimits {
	if pro {
		return c.RateLimits.Pro
	}
	return c.RateLimits.Free
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
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
