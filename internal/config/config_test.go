package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/wordflash/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Addr:             ":8080",
		DBPath:           "test.db",
		LogLevel:         "INFO",
		OwnerID:          "learner",
		RemoteURL:        "http://localhost:8080",
		SyncDebounce:     2 * time.Second,
		SyncApplyTimeout: 30 * time.Second,
		SyncMaxRetries:   3,
		SyncBackoffBase:  time.Second,
		SyncInterval:     5 * time.Minute,
		SessionCardLimit: 20,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_EmptyAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Addr = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ADDR cannot be empty")
}

func TestValidate_EmptyDBPath(t *testing.T) {
	cfg := validConfig()
	cfg.DBPath = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PATH cannot be empty")
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*config.Config)
		expectedError string
	}{
		{
			name:          "unknown log level",
			mutate:        func(c *config.Config) { c.LogLevel = "TRACE" },
			expectedError: "LOG_LEVEL",
		},
		{
			name:          "non http remote",
			mutate:        func(c *config.Config) { c.RemoteURL = "ftp://example.com" },
			expectedError: "REMOTE_URL",
		},
		{
			name:          "zero apply timeout",
			mutate:        func(c *config.Config) { c.SyncApplyTimeout = 0 },
			expectedError: "SYNC_APPLY_TIMEOUT",
		},
		{
			name:          "zero retries",
			mutate:        func(c *config.Config) { c.SyncMaxRetries = 0 },
			expectedError: "SYNC_MAX_RETRIES",
		},
		{
			name:          "negative debounce",
			mutate:        func(c *config.Config) { c.SyncDebounce = -time.Second },
			expectedError: "SYNC_DEBOUNCE",
		},
		{
			name:          "zero card limit",
			mutate:        func(c *config.Config) { c.SessionCardLimit = 0 },
			expectedError: "SESSION_CARD_LIMIT",
		},
		{
			name:          "empty owner",
			mutate:        func(c *config.Config) { c.OwnerID = " " },
			expectedError: "OWNER_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := config.Config{LogLevel: "INVALID"}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "ADDR cannot be empty")
	assert.Contains(t, errStr, "DB_PATH cannot be empty")
	assert.Contains(t, errStr, "LOG_LEVEL")
	assert.Contains(t, errStr, "SYNC_APPLY_TIMEOUT")
	assert.Contains(t, errStr, "SESSION_CARD_LIMIT")
}

func TestOfflineAuthoritative(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.OfflineAuthoritative())

	cfg.RemoteURL = ""
	assert.False(t, cfg.OfflineAuthoritative())
	assert.NoError(t, cfg.Validate(), "local-only mode is valid")
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("DB_PATH", "custom.db")
	t.Setenv("SYNC_DEBOUNCE", "500ms")
	t.Setenv("SYNC_MAX_RETRIES", "5")

	cfg := config.Load()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "custom.db", cfg.DBPath)
	assert.Equal(t, 500*time.Millisecond, cfg.SyncDebounce)
	assert.Equal(t, 5, cfg.SyncMaxRetries)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SYNC_APPLY_TIMEOUT", "soon")
	t.Setenv("SESSION_CARD_LIMIT", "many")

	cfg := config.Load()

	assert.Equal(t, 30*time.Second, cfg.SyncApplyTimeout)
	assert.Equal(t, 20, cfg.SessionCardLimit)
}
