package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "DATABASE_URL", "REDIS_URL",
		"NOTION_API_TOKEN", "NOTION_DATABASE_ID",
		"SCHEMA_CACHE_TTL_SECS", "SUGGESTION_CACHE_TTL_SECS",
		"SESSION_IDLE_MINS", "MAX_INPUT_ERRORS", "SUGGESTION_TOP_N", "HTTP_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected redis default, got %q", cfg.RedisURL)
	}
	if cfg.SchemaCacheTTL != 20*time.Minute {
		t.Fatalf("expected 20m schema TTL, got %v", cfg.SchemaCacheTTL)
	}
	if cfg.SuggestionCacheTTL != 45*time.Second {
		t.Fatalf("expected 45s suggestion TTL, got %v", cfg.SuggestionCacheTTL)
	}
	if cfg.SessionIdleThreshold != 30*time.Minute {
		t.Fatalf("expected 30m idle threshold, got %v", cfg.SessionIdleThreshold)
	}
	if cfg.MaxInputErrors != 5 || cfg.SuggestionTopN != 6 || cfg.HTTPPort != 8080 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis:7000")
	t.Setenv("SCHEMA_CACHE_TTL_SECS", "60")
	t.Setenv("SUGGESTION_CACHE_TTL_SECS", "5")
	t.Setenv("SESSION_IDLE_MINS", "10")
	t.Setenv("MAX_INPUT_ERRORS", "2")
	t.Setenv("SUGGESTION_TOP_N", "3")

	cfg := Load()
	if cfg.RedisURL != "redis:7000" {
		t.Fatalf("expected override, got %q", cfg.RedisURL)
	}
	if cfg.SchemaCacheTTL != time.Minute || cfg.SuggestionCacheTTL != 5*time.Second {
		t.Fatalf("unexpected TTLs: %v %v", cfg.SchemaCacheTTL, cfg.SuggestionCacheTTL)
	}
	if cfg.SessionIdleThreshold != 10*time.Minute || cfg.MaxInputErrors != 2 || cfg.SuggestionTopN != 3 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("SUGGESTION_CACHE_TTL_SECS", "-3")
	t.Setenv("MAX_INPUT_ERRORS", "zero")

	cfg := Load()
	if cfg.SuggestionCacheTTL != 45*time.Second {
		t.Fatalf("expected default TTL for invalid value, got %v", cfg.SuggestionCacheTTL)
	}
	if cfg.MaxInputErrors != 5 {
		t.Fatalf("expected default error limit, got %d", cfg.MaxInputErrors)
	}
}
