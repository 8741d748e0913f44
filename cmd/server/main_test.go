package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"billease/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "123456"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrengthRejectsPatterns(t *testing.T) {
	for _, pin := range []string{"777777", "234567", "876543", "112233"} {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected %s to be rejected", pin)
		}
	}
}

func testConfig() config.Config {
	return config.Config{
		Port:                  "0",
		AllowedOrigin:         "*",
		RedisPrefix:           "billease-test",
		StoreID:               "main-store",
		TaxRatePercent:        decimal.NewFromInt(11),
		InvoicePrefix:         "INV",
		HoldPrefix:            "HOLD",
		CacheTTLSeconds:       60,
		DraftIdleMinutes:      30,
		AuthSecret:            "0123456789abcdef0123456789abcdef",
		AccessTokenTTLMinutes: 60,
		ManagerPIN:            "739154",
	}
}

func TestBuildHandlerInMemory(t *testing.T) {
	handler, closers, err := buildHandler(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("expected no closers for in-memory wiring, got %d", len(closers))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
}

func TestBuildHandlerWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	handler, closers, err := buildHandler(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()
	if len(closers) != 1 {
		t.Fatalf("expected redis client closer, got %d", len(closers))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
}
