package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	DBPath           string
	LogLevel         string
	OwnerID          string
	RemoteURL        string
	SyncDebounce     time.Duration
	SyncApplyTimeout time.Duration
	SyncMaxRetries   int
	SyncBackoffBase  time.Duration
	SyncInterval     time.Duration
	SessionCardLimit int
}

// Load reads configuration from a .env file (if present) and environment variables,
// applying sensible defaults when values are missing or invalid.
func Load() Config {
	// Ignore error so the app still starts when .env is absent in production.
	_ = godotenv.Load()

	return Config{
		Addr:             envOr("ADDR", ":8080"),
		DBPath:           envOr("DB_PATH", "file:wordflash.db"),
		LogLevel:         envOr("LOG_LEVEL", "INFO"),
		OwnerID:          envOr("OWNER_ID", "local"),
		RemoteURL:        envOr("REMOTE_URL", ""),
		SyncDebounce:     envDurationOr("SYNC_DEBOUNCE", 2*time.Second),
		SyncApplyTimeout: envDurationOr("SYNC_APPLY_TIMEOUT", 30*time.Second),
		SyncMaxRetries:   envIntOr("SYNC_MAX_RETRIES", 3),
		SyncBackoffBase:  envDurationOr("SYNC_BACKOFF_BASE", time.Second),
		SyncInterval:     envDurationOr("SYNC_INTERVAL", 5*time.Minute),
		SessionCardLimit: envIntOr("SESSION_CARD_LIMIT", 20),
	}
}

// OfflineAuthoritative reports whether local mutations are queued for a remote store.
func (c Config) OfflineAuthoritative() bool {
	return c.RemoteURL != ""
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("ADDR cannot be empty"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DB_PATH cannot be empty"))
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		errs = append(errs, errors.New("OWNER_ID cannot be empty"))
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of DEBUG, INFO, WARN, ERROR, got %q", c.LogLevel))
	}
	if c.RemoteURL != "" && !strings.HasPrefix(c.RemoteURL, "http://") && !strings.HasPrefix(c.RemoteURL, "https://") {
		errs = append(errs, fmt.Errorf("REMOTE_URL must be an http(s) URL, got %q", c.RemoteURL))
	}
	if c.SyncDebounce < 0 {
		errs = append(errs, fmt.Errorf("SYNC_DEBOUNCE must not be negative, got %v", c.SyncDebounce))
	}
	if c.SyncApplyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_APPLY_TIMEOUT must be positive, got %v", c.SyncApplyTimeout))
	}
	if c.SyncMaxRetries < 1 {
		errs = append(errs, fmt.Errorf("SYNC_MAX_RETRIES must be at least 1, got %d", c.SyncMaxRetries))
	}
	if c.SyncBackoffBase < 0 {
		errs = append(errs, fmt.Errorf("SYNC_BACKOFF_BASE must not be negative, got %v", c.SyncBackoffBase))
	}
	if c.SyncInterval < 0 {
		errs = append(errs, fmt.Errorf("SYNC_INTERVAL must not be negative, got %v", c.SyncInterval))
	}
	if c.SessionCardLimit < 1 {
		errs = append(errs, fmt.Errorf("SESSION_CARD_LIMIT must be at least 1, got %d", c.SessionCardLimit))
	}
	return errors.Join(errs...)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("invalid value for %s=%q, using default %v", key, v, def)
	}
	return def
}
