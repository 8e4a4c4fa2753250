package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/config"
)

func TestLoadRequiresCoreVars(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
	})
	require.ErrorContains(t, err, "DATABASE_URL is required")
}

func TestLoadSellerDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":            "postgres://localhost:5432/billing",
		"REDIS_URL":               "redis://localhost:6379/0",
		"JWT_SECRET":              "secret",
		"INVOICE_PREFIX":          "",
		"SELLER_STATE_CODE":       "",
		"TAX_RATE_BPS":            "",
		"DEFAULT_DISCOUNT_BPS":    "",
		"FISCAL_YEAR_START_MONTH": "",
	})
	require.NoError(t, err)
	require.Equal(t, "NH", cfg.InvoicePrefix)
	require.Equal(t, "19", cfg.SellerStateCode)
	require.Equal(t, 500, cfg.TaxRateBps)
	require.Equal(t, 5500, cfg.DefaultDiscountBps)
	require.Equal(t, 4, cfg.FiscalYearStartMonth)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadRejectsBadFiscalYearStart(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":            "postgres://localhost:5432/billing",
		"REDIS_URL":               "redis://localhost:6379/0",
		"JWT_SECRET":              "secret",
		"FISCAL_YEAR_START_MONTH": "13",
	})
	require.ErrorContains(t, err, "FISCAL_YEAR_START_MONTH out of range")
}

func TestLoadRejectsOutOfRangeRate(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/billing",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
		"TAX_RATE_BPS": "20000",
	})
	require.ErrorContains(t, err, "TAX_RATE_BPS out of range")
}
