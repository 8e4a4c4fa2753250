package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
// The seller block is the tax profile the billing engine stamps onto
// committed invoices; it is read-only at runtime.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	SellerName           string
	SellerGSTIN          string
	SellerStateCode      string
	InvoicePrefix        string
	TaxRateBps           int
	DefaultDiscountBps   int
	FiscalYearStartMonth int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:               valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                 valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:          k.String("DATABASE_URL"),
		RedisURL:             k.String("REDIS_URL"),
		JWTSecret:            k.String("JWT_SECRET"),
		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		SellerName:           strings.TrimSpace(k.String("SELLER_NAME")),
		SellerGSTIN:          strings.TrimSpace(k.String("SELLER_GSTIN")),
		SellerStateCode:      valueOrDefault(strings.TrimSpace(k.String("SELLER_STATE_CODE")), "19"),
		InvoicePrefix:        valueOrDefault(strings.TrimSpace(k.String("INVOICE_PREFIX")), "NH"),
		TaxRateBps:           parseInt(k.String("TAX_RATE_BPS"), 500),
		DefaultDiscountBps:   parseInt(k.String("DEFAULT_DISCOUNT_BPS"), 5500),
		FiscalYearStartMonth: parseInt(k.String("FISCAL_YEAR_START_MONTH"), 4),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.TaxRateBps < 0 || cfg.TaxRateBps > 10000 {
		return nil, fmt.Errorf("TAX_RATE_BPS out of range: %d", cfg.TaxRateBps)
	}
	if cfg.DefaultDiscountBps < 0 || cfg.DefaultDiscountBps > 10000 {
		return nil, fmt.Errorf("DEFAULT_DISCOUNT_BPS out of range: %d", cfg.DefaultDiscountBps)
	}
	if cfg.FiscalYearStartMonth < 1 || cfg.FiscalYearStartMonth > 12 {
		return nil, fmt.Errorf("FISCAL_YEAR_START_MONTH out of range: %d", cfg.FiscalYearStartMonth)
	}
	if len(cfg.SellerStateCode) != 2 {
		return nil, fmt.Errorf("SELLER_STATE_CODE must be a two-digit state code, got %q", cfg.SellerStateCode)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
