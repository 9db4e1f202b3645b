package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	StateBackendBolt = "bolt"
	StateBackendFile = "file"
)

// Config holds the application configuration
type Config struct {
	// UserID is the remote library the device syncs with
	UserID string `toml:"user_id"`

	DataDir      string `toml:"data_dir"`
	StateBackend string `toml:"state_backend"`

	// ClickHouse configuration
	ClickHouseHost     string `toml:"clickhouse_host"`
	ClickHousePort     int    `toml:"clickhouse_port"`
	ClickHouseDatabase string `toml:"clickhouse_database"`
	ClickHouseUser     string `toml:"clickhouse_user"`
	ClickHousePassword string `toml:"clickhouse_password"`
	ClickHouseUseTLS   bool   `toml:"clickhouse_use_tls"`

	UseMockDB bool `toml:"use_mock_db"`

	// Change feed: NATS when a URL is set, otherwise polling
	NATSURL      string        `toml:"nats_url"`
	PollSchedule string        `toml:"poll_schedule"`
	Debounce     time.Duration `toml:"-"`
	DebounceRaw  string        `toml:"debounce"`

	CatalogProxyURL string `toml:"catalog_proxy_url"`

	// Telegram front is disabled when the token is empty
	TelegramToken  string  `toml:"telegram_token"`
	AllowedUserIDs []int64 `toml:"allowed_user_ids"`

	Port           string `toml:"port"`
	LogLevel       string `toml:"log_level"`
	LogDevelopment bool   `toml:"log_development"`
}

// Default returns the configuration used before files and environment apply
func Default() *Config {
	return &Config{
		DataDir:            "data",
		StateBackend:       StateBackendBolt,
		ClickHousePort:     9000,
		ClickHouseDatabase: "default",
		ClickHouseUser:     "default",
		PollSchedule:       "@every 10s",
		Debounce:           time.Second,
		Port:               "8080",
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// BOOKSHELF_CONFIG (if any) and environment variables, in that order
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read layers the file and environment over the defaults without checking
// required keys. Tools that need only the ClickHouse settings use it.
func Read() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("BOOKSHELF_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if c.DebounceRaw != "" {
		d, err := time.ParseDuration(c.DebounceRaw)
		if err != nil {
			return fmt.Errorf("invalid debounce in %s: %w", path, err)
		}
		c.Debounce = d
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.UserID, "BOOKSHELF_USER_ID")
	setString(&c.DataDir, "BOOKSHELF_DATA_DIR")
	setString(&c.StateBackend, "BOOKSHELF_STATE_BACKEND")

	setString(&c.ClickHouseHost, "CLICKHOUSE_HOST")
	if portStr := os.Getenv("CLICKHOUSE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		c.ClickHousePort = port
	}
	setString(&c.ClickHouseDatabase, "CLICKHOUSE_DATABASE")
	setString(&c.ClickHouseUser, "CLICKHOUSE_USER")
	setString(&c.ClickHousePassword, "CLICKHOUSE_PASSWORD")
	setBool(&c.ClickHouseUseTLS, "CLICKHOUSE_USE_TLS")
	setBool(&c.UseMockDB, "USE_MOCK_DB")

	setString(&c.NATSURL, "NATS_URL")
	setString(&c.PollSchedule, "SYNC_POLL_SCHEDULE")
	if raw := os.Getenv("SYNC_DEBOUNCE"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid SYNC_DEBOUNCE: %w", err)
		}
		c.Debounce = d
	}

	setString(&c.CatalogProxyURL, "CATALOG_PROXY_URL")
	setString(&c.TelegramToken, "TELEGRAM_BOT_TOKEN")
	if raw := os.Getenv("ALLOWED_USER_IDS"); raw != "" {
		ids, err := parseUserIDs(raw)
		if err != nil {
			return err
		}
		c.AllowedUserIDs = ids
	}

	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setBool(&c.LogDevelopment, "LOG_DEVELOPMENT")
	return nil
}

func (c *Config) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("BOOKSHELF_USER_ID is required")
	}
	switch c.StateBackend {
	case StateBackendBolt, StateBackendFile:
	default:
		return fmt.Errorf("unknown state backend %q (want %s or %s)", c.StateBackend, StateBackendBolt, StateBackendFile)
	}
	if !c.UseMockDB && c.ClickHouseHost == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is required when USE_MOCK_DB is not set")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("sync debounce must be positive, got %s", c.Debounce)
	}
	if c.TelegramToken != "" && len(c.AllowedUserIDs) == 0 {
		return fmt.Errorf("ALLOWED_USER_IDS is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// StatePath is the local state file for the configured backend
func (c *Config) StatePath() string {
	if c.StateBackend == StateBackendFile {
		return filepath.Join(c.DataDir, "state.json")
	}
	return filepath.Join(c.DataDir, "state.db")
}

// CachePath is the binary cache database
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, idStr := range strings.Split(raw, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in ALLOWED_USER_IDS: %s", idStr)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true"
	}
}
