package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear any env vars that would override defaults
	envVars := []string{
		"SERVICE_NAME", "ENV", "LOG_LEVEL", "PORT", "CACHE_TTL", "REFRESH_INTERVAL",
		"RETRY_ATTEMPTS", "RETRY_DELAY", "DEFAULT_BASE", "SUPPORTED_CURRENCIES",
		"FALLBACK_PIVOTS", "CACHE_NAMESPACE", "CACHE_RETENTION", "NATS_URL", "DATABASE_URL",
	}
	for _, key := range envVars {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ServiceName != "ratedesk" {
		t.Errorf("expected ServiceName=ratedesk, got %s", cfg.ServiceName)
	}
	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %s", cfg.Env)
	}
	if cfg.Port != 9040 {
		t.Errorf("expected Port=9040, got %d", cfg.Port)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected CacheTTL=5m, got %v", cfg.CacheTTL)
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("expected RefreshInterval=5m, got %v", cfg.RefreshInterval)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("expected RetryAttempts=3, got %d", cfg.RetryAttempts)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("expected RetryDelay=1s, got %v", cfg.RetryDelay)
	}
	if cfg.DefaultBase != "AED" {
		t.Errorf("expected DefaultBase=AED, got %s", cfg.DefaultBase)
	}
	if len(cfg.SupportedCurrencies) != 7 {
		t.Errorf("expected 7 supported currencies, got %v", cfg.SupportedCurrencies)
	}
	if len(cfg.FallbackPivots) != 0 {
		t.Errorf("expected no fallback pivots by default, got %v", cfg.FallbackPivots)
	}
	if cfg.CacheNamespace != "rate_cache" {
		t.Errorf("expected CacheNamespace=rate_cache, got %s", cfg.CacheNamespace)
	}
	if cfg.CacheRetention != 0 {
		t.Errorf("expected CacheRetention=0, got %v", cfg.CacheRetention)
	}
	if cfg.NATSURL != "" || cfg.DatabaseURL != "" {
		t.Errorf("expected optional infrastructure disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("PORT", "8081")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("SUPPORTED_CURRENCIES", "usd, aed ,,xau")
	t.Setenv("FALLBACK_PIVOTS", "usd_to_inr=83.5, USD_TO_AED=3.67, broken, X=abc")

	cfg := Load()

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %s", cfg.Env)
	}
	if cfg.Port != 8081 {
		t.Errorf("expected Port=8081, got %d", cfg.Port)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("expected CacheTTL=90s, got %v", cfg.CacheTTL)
	}
	if cfg.RetryAttempts != 5 {
		t.Errorf("expected RetryAttempts=5, got %d", cfg.RetryAttempts)
	}
	if got := cfg.SupportedCurrencies; len(got) != 3 || got[1] != "aed" {
		t.Errorf("unexpected SupportedCurrencies %v", got)
	}
	if len(cfg.FallbackPivots) != 2 || cfg.FallbackPivots["USD_TO_INR"] != 83.5 {
		t.Errorf("unexpected FallbackPivots %v", cfg.FallbackPivots)
	}
}

func TestGetEnvInt_Invalid(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := GetEnvInt("SOME_INT", 42); got != 42 {
		t.Errorf("expected default 42, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("SOME_FLOAT", "3.6725")
	if got := GetEnvFloat("SOME_FLOAT", 0); got != 3.6725 {
		t.Errorf("expected 3.6725, got %v", got)
	}
	t.Setenv("SOME_FLOAT", "x")
	if got := GetEnvFloat("SOME_FLOAT", 1.5); got != 1.5 {
		t.Errorf("expected default 1.5, got %v", got)
	}
}

func TestLoad_RedisAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if cfg := Load(); cfg.RedisAddr != "" {
		t.Errorf("expected empty REDIS_ADDR to disable redis, got %q", cfg.RedisAddr)
	}

	t.Setenv("REDIS_ADDR", "cache:6380")
	if cfg := Load(); cfg.RedisAddr != "cache:6380" {
		t.Errorf("expected RedisAddr=cache:6380, got %q", cfg.RedisAddr)
	}
}

func TestGetEnvOptional(t *testing.T) {
	t.Setenv("SOME_ADDR", "")
	if got := GetEnvOptional("SOME_ADDR", "def"); got != "" {
		t.Errorf("expected explicit empty value, got %q", got)
	}
	if got := GetEnvOptional("SOME_UNSET_ADDR_FOR_TEST", "def"); got != "def" {
		t.Errorf("expected default for unset key, got %q", got)
	}
}
