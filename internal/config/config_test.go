package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"BOOKSHELF_CONFIG", "BOOKSHELF_USER_ID", "BOOKSHELF_DATA_DIR", "BOOKSHELF_STATE_BACKEND",
	"CLICKHOUSE_HOST", "CLICKHOUSE_PORT", "CLICKHOUSE_DATABASE", "CLICKHOUSE_USER",
	"CLICKHOUSE_PASSWORD", "CLICKHOUSE_USE_TLS", "USE_MOCK_DB",
	"NATS_URL", "SYNC_POLL_SCHEDULE", "SYNC_DEBOUNCE",
	"CATALOG_PROXY_URL", "TELEGRAM_BOT_TOKEN", "ALLOWED_USER_IDS",
	"PORT", "LOG_LEVEL", "LOG_DEVELOPMENT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOOKSHELF_USER_ID", "reader-1")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("CLICKHOUSE_PORT", "9440")
	t.Setenv("CLICKHOUSE_USE_TLS", "true")
	t.Setenv("SYNC_DEBOUNCE", "500ms")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ALLOWED_USER_IDS", "111, 222,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "reader-1", cfg.UserID)
	assert.Equal(t, "ch.internal", cfg.ClickHouseHost)
	assert.Equal(t, 9440, cfg.ClickHousePort)
	assert.True(t, cfg.ClickHouseUseTLS)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Equal(t, []int64{111, 222}, cfg.AllowedUserIDs)

	// untouched defaults
	assert.Equal(t, "default", cfg.ClickHouseDatabase)
	assert.Equal(t, "@every 10s", cfg.PollSchedule)
	assert.Equal(t, StateBackendBolt, cfg.StateBackend)
	assert.Equal(t, filepath.Join("data", "state.db"), cfg.StatePath())
	assert.Equal(t, filepath.Join("data", "cache.db"), cfg.CachePath())
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bookshelf.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
user_id = "from-file"
data_dir = "/var/lib/bookshelf"
state_backend = "file"
use_mock_db = true
debounce = "2s"
nats_url = "nats://broker:4222"
log_level = "debug"
`), 0o644))
	t.Setenv("BOOKSHELF_CONFIG", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.UserID)
	assert.True(t, cfg.UseMockDB)
	assert.Equal(t, 2*time.Second, cfg.Debounce)
	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, filepath.Join("/var/lib/bookshelf", "state.json"), cfg.StatePath())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing user",
			env:     map[string]string{"USE_MOCK_DB": "true"},
			wantErr: "BOOKSHELF_USER_ID",
		},
		{
			name:    "missing clickhouse host",
			env:     map[string]string{"BOOKSHELF_USER_ID": "u"},
			wantErr: "CLICKHOUSE_HOST",
		},
		{
			name:    "bad port",
			env:     map[string]string{"BOOKSHELF_USER_ID": "u", "CLICKHOUSE_PORT": "nine"},
			wantErr: "CLICKHOUSE_PORT",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"BOOKSHELF_USER_ID": "u", "USE_MOCK_DB": "true", "BOOKSHELF_STATE_BACKEND": "redis"},
			wantErr: "unknown state backend",
		},
		{
			name:    "bad debounce",
			env:     map[string]string{"BOOKSHELF_USER_ID": "u", "USE_MOCK_DB": "true", "SYNC_DEBOUNCE": "-1s"},
			wantErr: "debounce",
		},
		{
			name:    "token without allowed users",
			env:     map[string]string{"BOOKSHELF_USER_ID": "u", "USE_MOCK_DB": "true", "TELEGRAM_BOT_TOKEN": "x"},
			wantErr: "ALLOWED_USER_IDS",
		},
		{
			name:    "bad allowed user",
			env:     map[string]string{"BOOKSHELF_USER_ID": "u", "USE_MOCK_DB": "true", "ALLOWED_USER_IDS": "1,bob"},
			wantErr: "bob",
		},
		{
			name:    "missing config file",
			env:     map[string]string{"BOOKSHELF_CONFIG": "/nonexistent/bookshelf.toml"},
			wantErr: "read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
