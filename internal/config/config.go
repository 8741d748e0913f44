package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"billease/backend/internal/money"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisPrefix           string
	StoreID               string
	TaxRatePercent        decimal.Decimal
	InvoicePrefix         string
	HoldPrefix            string
	CacheTTLSeconds       int
	DraftIdleMinutes      int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
}

// Load reads configuration from the environment. When CONFIG_FILE names a
// dotenv file its values are used as defaults beneath the real environment.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "billease")
	v.SetDefault("DEFAULT_STORE_ID", "main-store")
	v.SetDefault("TAX_RATE_PERCENT", "11")
	v.SetDefault("INVOICE_PREFIX", "INV")
	v.SetDefault("HOLD_PREFIX", "HOLD")
	v.SetDefault("CACHE_TTL_SECONDS", 600)
	v.SetDefault("DRAFT_IDLE_MINUTES", 720)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	v.AutomaticEnv()
	for _, key := range []string{"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "AUTH_SECRET", "MANAGER_PIN"} {
		_ = v.BindEnv(key)
	}

	taxRate, err := money.ParsePercent(v.GetString("TAX_RATE_PERCENT"))
	if err != nil {
		return Config{}, fmt.Errorf("TAX_RATE_PERCENT: %w", err)
	}

	cacheTTL := v.GetInt("CACHE_TTL_SECONDS")
	if cacheTTL < 1 {
		cacheTTL = 600
	}
	draftIdle := v.GetInt("DRAFT_IDLE_MINUTES")
	if draftIdle < 1 {
		draftIdle = 720
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		RedisPrefix:           v.GetString("REDIS_PREFIX"),
		StoreID:               v.GetString("DEFAULT_STORE_ID"),
		TaxRatePercent:        taxRate,
		InvoicePrefix:         strings.ToUpper(strings.TrimSpace(v.GetString("INVOICE_PREFIX"))),
		HoldPrefix:            strings.ToUpper(strings.TrimSpace(v.GetString("HOLD_PREFIX"))),
		CacheTTLSeconds:       cacheTTL,
		DraftIdleMinutes:      draftIdle,
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(v.GetString("MANAGER_PIN")),
	}, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DraftIdleTimeout is how long an untouched draft survives before it is
// discarded.
func (c Config) DraftIdleTimeout() time.Duration {
	return time.Duration(c.DraftIdleMinutes) * time.Minute
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
