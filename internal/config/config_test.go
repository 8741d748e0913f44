package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TAX_RATE_PERCENT", "")
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("INVOICE_PREFIX", "")
	t.Setenv("DRAFT_IDLE_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TaxRatePercent.Equal(decimal.NewFromInt(11)), "tax rate %s", cfg.TaxRatePercent)
	assert.Equal(t, "INV", cfg.InvoicePrefix)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 12*time.Hour, cfg.DraftIdleTimeout())
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("TAX_RATE_PERCENT", "7.5%")
	t.Setenv("HOLD_PREFIX", "park")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.TaxRatePercent.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, "PARK", cfg.HoldPrefix)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsOutOfRangeTaxRate(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TAX_RATE_PERCENT", "120")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadConfigFileUnderEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billease.env")
	require.NoError(t, os.WriteFile(path, []byte("DEFAULT_STORE_ID=branch-7\nPORT=7000\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "branch-7", cfg.StoreID)
	assert.Equal(t, ":7100", cfg.Address())
}
