package api

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	MaxBatch        int           // max events per sync request (default: 10000)
	RebuildDebounce time.Duration // settle time before a background rebuild (default: 2s)

	WebhookURL    string // POST target for sync notifications; empty disables
	WebhookSecret string // HMAC key for webhook signatures
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/replog-server.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",
		MaxBatch:        10000,
		RebuildDebounce: 2 * time.Second,
	}

	if v := os.Getenv("REPLOG_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("REPLOG_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("REPLOG_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("REPLOG_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("REPLOG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REPLOG_MAX_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBatch = n
		}
	}
	if v := os.Getenv("REPLOG_REBUILD_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.RebuildDebounce = d
		}
	}
	cfg.WebhookURL = os.Getenv("REPLOG_WEBHOOK_URL")
	cfg.WebhookSecret = os.Getenv("REPLOG_WEBHOOK_SECRET")

	return cfg
}
