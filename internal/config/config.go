// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Marketplace settings
	DefaultCountry  string // ISO-3166 alpha-2, used when a delivery address has no country
	DefaultCurrency string

	// Agent hold percentages per tier, in whole percent
	AgentHoldInternal   int64
	AgentHoldVerified   int64
	AgentHoldUnverified int64

	// Payments
	StripeWebhookSecret string // Stripe endpoint signing secret (optional, webhook disabled if not set)

	// Security
	WebhookSecret string // HMAC secret for outbound webhook signatures
	ReceiptSecret string // HMAC secret for signing receipts (optional)
	AdminSecret   string // Admin API secret
	RateLimitRPS  int

	// Observability
	OTLPEndpoint string // OTLP trace collector endpoint (optional, tracing disabled if not set)
}

const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultCountry   = "GA"
	DefaultCurrency  = "XAF"
	DefaultRateLimit = 100

	DefaultHoldInternal   = 0
	DefaultHoldVerified   = 80
	DefaultHoldUnverified = 100
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		DefaultCountry:      getEnv("DEFAULT_COUNTRY", DefaultCountry),
		DefaultCurrency:     getEnv("DEFAULT_CURRENCY", DefaultCurrency),
		AgentHoldInternal:   getEnvInt64("AGENT_HOLD_INTERNAL_PCT", DefaultHoldInternal),
		AgentHoldVerified:   getEnvInt64("AGENT_HOLD_VERIFIED_PCT", DefaultHoldVerified),
		AgentHoldUnverified: getEnvInt64("AGENT_HOLD_UNVERIFIED_PCT", DefaultHoldUnverified),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		ReceiptSecret:       os.Getenv("RECEIPT_HMAC_SECRET"),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configuration values are coherent
func (c *Config) Validate() error {
	if len(c.DefaultCountry) != 2 {
		return fmt.Errorf("DEFAULT_COUNTRY must be an ISO-3166 alpha-2 code")
	}
	if c.DefaultCurrency == "" {
		return fmt.Errorf("DEFAULT_CURRENCY is required")
	}
	for _, pct := range []int64{c.AgentHoldInternal, c.AgentHoldVerified, c.AgentHoldUnverified} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("agent hold percentages must be between 0 and 100")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
