package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// MonitorWindowSize is the number of recent rate limit decisions kept per category.
	MonitorWindowSize = 10000

	// MonitorWindowDurationMinutes is the period covered by rate limit statistics.
	MonitorWindowDurationMinutes = 24 * 60

	// ElevatedThreshold is the allowed-request ratio below which a category is under elevated pressure.
	ElevatedThreshold = 0.5

	// AttackThreshold is the allowed-request ratio below which a category is treated as under attack.
	AttackThreshold = 0.2

	// ServerPort is the default HTTP listen address.
	ServerPort = ":8080"

	// RedisTimeout bounds connecting to and reading from the shared rate limit store.
	RedisTimeout = time.Second

	RetryPollInterval        = 30 * time.Second
	RateLimitCleanupInterval = time.Minute
)

// Config is the runtime configuration read from the environment.
type Config struct {
	Env      string
	HTTPAddr string
	LogLevel slog.Level

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisDialTimeout time.Duration
	RedisReadTimeout time.Duration

	DatabaseURL string

	StripeSecretKey      string
	StripeWebhookSecret  string
	SimulatedSuccessRate float64

	SiteURL string

	RetryPollInterval time.Duration
	CleanupInterval   time.Duration
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ServerPort),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		DatabaseURL:          getEnv("DATABASE_URL", "payments.db"),
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SimulatedSuccessRate: getEnvFloat("SIMULATED_SUCCESS_RATE", 0.7),
		SiteURL:              strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"REDIS_DIAL_TIMEOUT", RedisTimeout, &cfg.RedisDialTimeout},
		{"REDIS_READ_TIMEOUT", RedisTimeout, &cfg.RedisReadTimeout},
		{"RETRY_POLL_INTERVAL", RetryPollInterval, &cfg.RetryPollInterval},
		{"RATE_LIMIT_CLEANUP_INTERVAL", RateLimitCleanupInterval, &cfg.CleanupInterval},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string
	if c.HTTPAddr == "" {
		errs = append(errs, "HTTP_ADDR is required")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.RedisDialTimeout <= 0 || c.RedisReadTimeout <= 0 {
		errs = append(errs, "REDIS_DIAL_TIMEOUT and REDIS_READ_TIMEOUT must be > 0")
	}
	if c.RetryPollInterval <= 0 {
		errs = append(errs, "RETRY_POLL_INTERVAL must be > 0")
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, "RATE_LIMIT_CLEANUP_INTERVAL must be > 0")
	}
	if c.SimulatedSuccessRate < 0 || c.SimulatedSuccessRate > 1 {
		errs = append(errs, "SIMULATED_SUCCESS_RATE must be between 0 and 1")
	}
	if u, err := url.Parse(c.SiteURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "SITE_URL must be an absolute URL")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		errs = append(errs, "STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.Env == "production" && c.StripeSecretKey == "" {
		errs = append(errs, "STRIPE_SECRET_KEY is required in production")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
