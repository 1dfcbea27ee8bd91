package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string

	NotionAPIToken   string
	NotionDatabaseID string
	NotionTimeout    time.Duration

	SchemaCacheTTL     time.Duration
	SuggestionCacheTTL time.Duration
	SuggestionTopN     int

	SessionIdleThreshold time.Duration
	SessionSweepInterval time.Duration
	MaxInputErrors       int

	HTTPPort int
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		NotionAPIToken:   os.Getenv("NOTION_API_TOKEN"),
		NotionDatabaseID: strings.TrimSpace(os.Getenv("NOTION_DATABASE_ID")),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.NotionAPIToken == "" || cfg.NotionDatabaseID == "" {
		log.Println("Warning: NOTION_API_TOKEN/NOTION_DATABASE_ID not set, schema options fall back to defaults")
	}

	cfg.NotionTimeout = secsEnv("NOTION_TIMEOUT_SECS", 10)
	cfg.SchemaCacheTTL = secsEnv("SCHEMA_CACHE_TTL_SECS", 1200)
	cfg.SuggestionCacheTTL = secsEnv("SUGGESTION_CACHE_TTL_SECS", 45)
	cfg.SessionSweepInterval = secsEnv("SESSION_SWEEP_SECS", 300)

	cfg.SessionIdleThreshold = 30 * time.Minute
	if v := strings.TrimSpace(os.Getenv("SESSION_IDLE_MINS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionIdleThreshold = time.Duration(n) * time.Minute
		}
	}

	cfg.SuggestionTopN = 6
	if v := strings.TrimSpace(os.Getenv("SUGGESTION_TOP_N")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SuggestionTopN = n
		}
	}

	cfg.MaxInputErrors = 5
	if v := strings.TrimSpace(os.Getenv("MAX_INPUT_ERRORS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxInputErrors = n
		}
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	return cfg
}

func secsEnv(name string, def int) time.Duration {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}
