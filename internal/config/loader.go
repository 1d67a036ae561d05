package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BLOCKTRADER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BLOCKTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "BLOCKTRADER_BROKER_BASE_URL")
	setStr(&cfg.Broker.DataURL, "BLOCKTRADER_BROKER_DATA_URL")
	setStr(&cfg.Broker.WSURL, "BLOCKTRADER_BROKER_WS_URL")
	setStr(&cfg.Broker.ApiKeyID, "BLOCKTRADER_BROKER_API_KEY_ID")
	setStr(&cfg.Broker.ApiSecret, "BLOCKTRADER_BROKER_API_SECRET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BLOCKTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BLOCKTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BLOCKTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BLOCKTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BLOCKTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BLOCKTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BLOCKTRADER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BLOCKTRADER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BLOCKTRADER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BLOCKTRADER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BLOCKTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BLOCKTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BLOCKTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BLOCKTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BLOCKTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BLOCKTRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BLOCKTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BLOCKTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BLOCKTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "BLOCKTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BLOCKTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BLOCKTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BLOCKTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BLOCKTRADER_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setDuration(&cfg.Engine.OrderInterval, "BLOCKTRADER_ENGINE_ORDER_INTERVAL")
	setDuration(&cfg.Engine.RangeInterval, "BLOCKTRADER_ENGINE_RANGE_INTERVAL")
	setDuration(&cfg.Engine.QuoteTTL, "BLOCKTRADER_ENGINE_QUOTE_TTL")
	setDuration(&cfg.Engine.CancelTimeout, "BLOCKTRADER_ENGINE_CANCEL_TIMEOUT")
	setInt(&cfg.Engine.RetryAttempts, "BLOCKTRADER_ENGINE_RETRY_ATTEMPTS")
	setDuration(&cfg.Engine.RetryBaseDelay, "BLOCKTRADER_ENGINE_RETRY_BASE_DELAY")
	setDuration(&cfg.Engine.RetryMaxDelay, "BLOCKTRADER_ENGINE_RETRY_MAX_DELAY")
	setStr(&cfg.Engine.DayCloseStyle, "BLOCKTRADER_ENGINE_DAY_CLOSE_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BLOCKTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BLOCKTRADER_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "BLOCKTRADER_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "BLOCKTRADER_MODE")
	setStr(&cfg.LogLevel, "BLOCKTRADER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
