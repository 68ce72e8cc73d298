// Package config loads the engine configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/accrual"
)

// Config holds the server configuration.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	DayCount accrual.Convention

	AccrualInterval time.Duration
	AccrualWorkers  int
	AccrualOnStart  bool

	CronSecret    string
	AdminToken    string
	WebhookSecret string

	// WSAllowedOrigins lists browser origins allowed to open the live
	// feed. Empty means same-host only.
	WSAllowedOrigins []string

	MaxPerPlan       decimal.Decimal
	MaxTotalExposure decimal.Decimal

	OTELEndpoint    string
	OTELServiceName string
	LogLevel        slog.Level

	SeedPlans bool
}

// Load reads the configuration from environment variables, loading a
// .env file first when one exists. Malformed values are errors.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg := &Config{
		Port:            getEnvString("PORT", "8080"),
		DatabaseURL:     getEnvString("DATABASE_URL", ""),
		RedisURL:        getEnvString("REDIS_URL", ""),
		CronSecret:      getEnvString("CRON_SECRET", ""),
		AdminToken:      getEnvString("ADMIN_TOKEN", ""),
		WebhookSecret:   getEnvString("WEBHOOK_SECRET", ""),
		OTELEndpoint:    getEnvString("OTEL_ENDPOINT", ""),
		OTELServiceName: getEnvString("OTEL_SERVICE_NAME", "invest-engine"),
	}
	cfg.WSAllowedOrigins = getEnvList("WS_ALLOWED_ORIGINS")

	var err error
	if cfg.CacheTTL, err = getEnvDuration("CACHE_TTL", 30*time.Second); err != nil {
		fail("CACHE_TTL", err)
	}
	if cfg.AccrualInterval, err = getEnvDuration("ACCRUAL_INTERVAL", 24*time.Hour); err != nil {
		fail("ACCRUAL_INTERVAL", err)
	}
	if cfg.AccrualWorkers, err = getEnvInt("ACCRUAL_WORKERS", 8); err != nil || cfg.AccrualWorkers < 1 {
		fail("ACCRUAL_WORKERS", fmt.Errorf("must be a positive integer"))
	}
	if cfg.AccrualOnStart, err = getEnvBool("ACCRUAL_ON_START", false); err != nil {
		fail("ACCRUAL_ON_START", err)
	}
	if cfg.SeedPlans, err = getEnvBool("SEED_PLANS", cfg.DatabaseURL == ""); err != nil {
		fail("SEED_PLANS", err)
	}
	if cfg.DayCount, err = accrual.ParseConvention(os.Getenv("DAY_COUNT")); err != nil {
		fail("DAY_COUNT", err)
	}
	if cfg.MaxPerPlan, err = getEnvDecimal("MAX_PER_PLAN", decimal.NewFromInt(1_000_000)); err != nil {
		fail("MAX_PER_PLAN", err)
	}
	if cfg.MaxTotalExposure, err = getEnvDecimal("MAX_TOTAL_EXPOSURE", decimal.NewFromInt(5_000_000)); err != nil {
		fail("MAX_TOTAL_EXPOSURE", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnvString("LOG_LEVEL", "INFO"))); err != nil {
		fail("LOG_LEVEL", err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	if value := os.Getenv(key); value != "" {
		return strconv.Atoi(value)
	}
	return defaultValue, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	if value := os.Getenv(key); value != "" {
		return strconv.ParseBool(value)
	}
	return defaultValue, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		return time.ParseDuration(value)
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		return decimal.NewFromString(value)
	}
	return defaultValue, nil
}
