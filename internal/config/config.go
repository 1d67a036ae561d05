// Package config defines the top-level configuration for blocktrader and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BLOCKTRADER_* environment variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig holds brokerage API endpoints and credentials.
type BrokerConfig struct {
	BaseURL string `toml:"base_url"`
	DataURL string `toml:"data_url"`
	WSURL   string `toml:"ws_url"`

	// Default credentials, used for market data and for any user without an
	// entry in Accounts.
	ApiKeyID  string `toml:"api_key_id"`
	ApiSecret string `toml:"api_secret"`

	// Accounts maps user IDs to per-user brokerage credentials.
	Accounts map[string]BrokerAccountConfig `toml:"accounts"`
}

// BrokerAccountConfig holds one user's brokerage credentials.
type BrokerAccountConfig struct {
	ApiKeyID  string `toml:"api_key_id"`
	ApiSecret string `toml:"api_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for close-out
// exports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds trading-engine parameters.
type EngineConfig struct {
	OrderInterval  duration `toml:"order_interval"`
	RangeInterval  duration `toml:"range_interval"`
	QuoteTTL       duration `toml:"quote_ttl"`
	CancelTimeout  duration `toml:"cancel_timeout"`
	RetryAttempts  int      `toml:"retry_attempts"`
	RetryBaseDelay duration `toml:"retry_base_delay"`
	RetryMaxDelay  duration `toml:"retry_max_delay"`
	// DayCloseStyle selects the closing-order type for day-horizon accounts:
	// "oco" or "trailing_stop".
	DayCloseStyle string `toml:"day_close_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	ApiKey  string `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			BaseURL:  "https://paper-api.example-broker.com",
			DataURL:  "",
			WSURL:    "wss://stream.example-broker.com/v1",
			Accounts: map[string]BrokerAccountConfig{},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "blocktrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "blocktrader-exports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			OrderInterval:  duration{15 * time.Second},
			RangeInterval:  duration{5 * time.Minute},
			QuoteTTL:       duration{5 * time.Second},
			CancelTimeout:  duration{time.Minute},
			RetryAttempts:  3,
			RetryBaseDelay: duration{250 * time.Millisecond},
			RetryMaxDelay:  duration{2 * time.Second},
			DayCloseStyle:  "oco",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":  true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker credentials are required for trading modes.
	needsBroker := c.Mode == "trade" || c.Mode == "full"
	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}
	if needsBroker {
		if c.Broker.ApiKeyID == "" && len(c.Broker.Accounts) == 0 {
			errs = append(errs, "broker: api_key_id or at least one [broker.accounts] entry is required for mode "+c.Mode)
		}
		if c.Broker.WSURL == "" {
			errs = append(errs, "broker: ws_url must not be empty for mode "+c.Mode)
		}
	}
	for user, acct := range c.Broker.Accounts {
		if acct.ApiKeyID == "" || acct.ApiSecret == "" {
			errs = append(errs, fmt.Sprintf("broker: account %q must set both api_key_id and api_secret", user))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Engine
	if c.Engine.OrderInterval.Duration <= 0 {
		errs = append(errs, "engine: order_interval must be > 0")
	}
	if c.Engine.RangeInterval.Duration <= 0 {
		errs = append(errs, "engine: range_interval must be > 0")
	}
	if c.Engine.QuoteTTL.Duration <= 0 {
		errs = append(errs, "engine: quote_ttl must be > 0")
	}
	if c.Engine.RetryAttempts < 1 {
		errs = append(errs, "engine: retry_attempts must be >= 1")
	}
	if s := c.Engine.DayCloseStyle; s != "oco" && s != "trailing_stop" {
		errs = append(errs, fmt.Sprintf("engine: day_close_style must be \"oco\" or \"trailing_stop\", got %q", s))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
