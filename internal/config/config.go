// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

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

	// Platform escrow account. All in-flight quote payments are held in this
	// user's wallet until exchange/return settlement releases them.
	PlatformAccountID string

	// Payment-link provider
	PaymentProvider     string // "cashfree" (default) or "stripe"
	CashfreeBaseURL     string
	CashfreeClientID    string
	CashfreeSecret      string
	StripeAPIKey        string
	StripeSuccessURL    string
	ProviderTimeout     time.Duration
	PaymentExpiryOffset string // UTC offset for link expiry timestamps, e.g. "+05:30"

	// Notifications
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Security
	WebhookSecret string
	RateLimitRPS  int

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultCashfreeBaseURL = "https://sandbox.cashfree.com/pg"
	DefaultExpiryOffset    = "+05:30"
	DefaultRateLimit       = 100
	DefaultProviderTimeout = 10 * time.Second
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		PlatformAccountID:   os.Getenv("PLATFORM_ACCOUNT_ID"),
		PaymentProvider:     getEnv("PAYMENT_PROVIDER", "cashfree"),
		CashfreeBaseURL:     getEnv("CASHFREE_BASE_URL", DefaultCashfreeBaseURL),
		CashfreeClientID:    os.Getenv("CASHFREE_CLIENT_ID"),
		CashfreeSecret:      os.Getenv("CASHFREE_CLIENT_SECRET"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeSuccessURL:    os.Getenv("STRIPE_SUCCESS_URL"),
		ProviderTimeout:     getEnvDuration("PROVIDER_TIMEOUT", DefaultProviderTimeout),
		PaymentExpiryOffset: getEnv("PAYMENT_EXPIRY_OFFSET", DefaultExpiryOffset),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		EmailFrom:           getEnv("EMAIL_FROM", "no-reply@sharemart.in"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "ShareMart"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:        getEnvInt("RATE_LIMIT_RPS", DefaultRateLimit),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PlatformAccountID == "" {
		return fmt.Errorf("PLATFORM_ACCOUNT_ID is required")
	}

	switch c.PaymentProvider {
	case "cashfree":
		// Credentials may be empty in development; the provider client
		// rejects unconfigured calls at request time.
	case "stripe":
		if c.StripeAPIKey == "" {
			return fmt.Errorf("STRIPE_API_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}

	if _, err := ParseUTCOffset(c.PaymentExpiryOffset); err != nil {
		return fmt.Errorf("invalid PAYMENT_EXPIRY_OFFSET: %w", err)
	}

	return nil
}

// ParseUTCOffset parses an offset like "+05:30" into a fixed time.Location.
func ParseUTCOffset(s string) (*time.Location, error) {
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') || s[3] != ':' {
		return nil, fmt.Errorf("offset %q must look like +05:30", s)
	}
	hours, err := strconv.Atoi(s[1:3])
	if err != nil {
		return nil, fmt.Errorf("offset %q: %w", s, err)
	}
	mins, err := strconv.Atoi(s[4:6])
	if err != nil {
		return nil, fmt.Errorf("offset %q: %w", s, err)
	}
	secs := hours*3600 + mins*60
	if s[0] == '-' {
		secs = -secs
	}
	return time.FixedZone("UTC"+s, secs), nil
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
