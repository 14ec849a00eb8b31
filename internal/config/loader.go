package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULTPILOT_* environment variable overrides,
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

// applyEnvOverrides reads well-known VAULTPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "VAULTPILOT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.VaultAddress, "VAULTPILOT_CHAIN_VAULT_ADDRESS")
	setUint64(&cfg.Chain.DeployBlock, "VAULTPILOT_CHAIN_DEPLOY_BLOCK")
	setStr(&cfg.Chain.OperatorKey, "VAULTPILOT_CHAIN_OPERATOR_KEY")
	setUint64(&cfg.Chain.LogChunk, "VAULTPILOT_CHAIN_LOG_CHUNK")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VAULTPILOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VAULTPILOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VAULTPILOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VAULTPILOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VAULTPILOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VAULTPILOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VAULTPILOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VAULTPILOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VAULTPILOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VAULTPILOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VAULTPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULTPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULTPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VAULTPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VAULTPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VAULTPILOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.DialTimeout, "VAULTPILOT_REDIS_DIAL_TIMEOUT")
	setDuration(&cfg.Redis.YieldTTL, "VAULTPILOT_REDIS_YIELD_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VAULTPILOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULTPILOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULTPILOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VAULTPILOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULTPILOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULTPILOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VAULTPILOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "VAULTPILOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "VAULTPILOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "VAULTPILOT_ARCHIVE_CRON")

	// ── Gateway ──
	setStr(&cfg.Gateway.BaseURL, "VAULTPILOT_GATEWAY_BASE_URL")
	setStr(&cfg.Gateway.APIKey, "VAULTPILOT_GATEWAY_API_KEY")
	setStr(&cfg.Gateway.Venue, "VAULTPILOT_GATEWAY_VENUE")
	setStr(&cfg.Gateway.TargetPool, "VAULTPILOT_GATEWAY_TARGET_POOL")
	setStr(&cfg.Gateway.StrategyTag, "VAULTPILOT_GATEWAY_STRATEGY_TAG")
	setDuration(&cfg.Gateway.PollTimeout, "VAULTPILOT_GATEWAY_POLL_TIMEOUT")
	setInt64(&cfg.Gateway.AmountCap, "VAULTPILOT_GATEWAY_AMOUNT_CAP")
	setFloat64(&cfg.Gateway.SyntheticYield, "VAULTPILOT_GATEWAY_SYNTHETIC_YIELD")

	// ── Lending ──
	setStr(&cfg.Lending.BaseURL, "VAULTPILOT_LENDING_BASE_URL")
	setStr(&cfg.Lending.Chain, "VAULTPILOT_LENDING_CHAIN")
	setStr(&cfg.Lending.Protocol, "VAULTPILOT_LENDING_PROTOCOL")
	setStr(&cfg.Lending.Asset, "VAULTPILOT_LENDING_ASSET")
	setStr(&cfg.Lending.StrategyTag, "VAULTPILOT_LENDING_STRATEGY_TAG")

	// ── Feeds ──
	setStr(&cfg.Feeds.BaseURL, "VAULTPILOT_FEEDS_BASE_URL")
	setStr(&cfg.Feeds.WSURL, "VAULTPILOT_FEEDS_WS_URL")
	setFloat64(&cfg.Feeds.FallbackYield, "VAULTPILOT_FEEDS_FALLBACK_YIELD")

	// ── Keystore ──
	setStr(&cfg.Keystore.MasterKeyHex, "VAULTPILOT_KEYSTORE_MASTER_KEY_HEX")
	setStr(&cfg.Keystore.Passphrase, "VAULTPILOT_KEYSTORE_PASSPHRASE")
	setStr(&cfg.Keystore.Salt, "VAULTPILOT_KEYSTORE_SALT")

	// ── Agent ──
	setDuration(&cfg.Agent.Interval, "VAULTPILOT_AGENT_INTERVAL")
	setStringSlice(&cfg.Agent.Plugins, "VAULTPILOT_AGENT_PLUGINS")
	setDuration(&cfg.Agent.MinHold, "VAULTPILOT_AGENT_MIN_HOLD")
	setFloat64(&cfg.Agent.YieldThresholdPct, "VAULTPILOT_AGENT_YIELD_THRESHOLD_PCT")
	setFloat64(&cfg.Agent.BorrowUtilization, "VAULTPILOT_AGENT_BORROW_UTILIZATION")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VAULTPILOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VAULTPILOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VAULTPILOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VAULTPILOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VAULTPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VAULTPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VAULTPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VAULTPILOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VAULTPILOT_MODE")
	setStr(&cfg.LogLevel, "VAULTPILOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
