// Package config defines the top-level configuration for the rebalancing
// agent and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VAULTPILOT_* environment
// variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Lending  LendingConfig  `toml:"lending"`
	Feeds    FeedsConfig    `toml:"feeds"`
	Keystore KeystoreConfig `toml:"keystore"`
	Agent    AgentConfig    `toml:"agent"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds home-chain connection and vault contract parameters.
type ChainConfig struct {
	RPCURL       string `toml:"rpc_url"`
	VaultAddress string `toml:"vault_address"`
	DeployBlock  uint64 `toml:"deploy_block"`
	OperatorKey  string `toml:"operator_key"` // hex private key of the agent's signer
	LogChunk     uint64 `toml:"log_chunk"`
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
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	DialTimeout duration `toml:"dial_timeout"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	YieldTTL    duration `toml:"yield_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the action archival schedule.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// GatewayConfig holds the unified-balance bridge parameters.
type GatewayConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Venue          string   `toml:"venue"`
	TargetPool     string   `toml:"target_pool"`
	StrategyTag    string   `toml:"strategy_tag"`
	PollTimeout    duration `toml:"poll_timeout"`
	AmountCap      int64    `toml:"amount_cap"`
	SyntheticYield float64  `toml:"synthetic_yield"`
}

// LendingConfig holds the external lending-market parameters.
type LendingConfig struct {
	BaseURL     string `toml:"base_url"`
	Chain       string `toml:"chain"`
	Protocol    string `toml:"protocol"`
	Asset       string `toml:"asset"`
	StrategyTag string `toml:"strategy_tag"`
}

// FeedsConfig holds the yield feed endpoints.
type FeedsConfig struct {
	BaseURL        string             `toml:"base_url"`
	WSURL          string             `toml:"ws_url"`
	SyntheticYield map[string]float64 `toml:"synthetic_yield"` // venue -> pct
	FallbackYield  float64            `toml:"fallback_yield"`
}

// KeystoreConfig holds the custodial key envelope parameters. MasterKeyHex
// takes precedence over passphrase derivation when both are set.
type KeystoreConfig struct {
	MasterKeyHex string `toml:"master_key_hex"`
	Passphrase   string `toml:"passphrase"`
	Salt         string `toml:"salt"`
}

// AgentConfig holds the scheduler and plugin tunables.
type AgentConfig struct {
	Interval          duration `toml:"interval"`
	Plugins           []string `toml:"plugins"`
	MinHold           duration `toml:"min_hold"`
	YieldThresholdPct float64  `toml:"yield_threshold_pct"`
	BorrowUtilization float64  `toml:"borrow_utilization"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
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
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:   "http://localhost:8545",
			LogChunk: 5_000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "vaultpilot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			DialTimeout: duration{5 * time.Second},
			YieldTTL:    duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "vaultpilot-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Gateway: GatewayConfig{
			Venue:          "aurora",
			TargetPool:     "usdc-main",
			StrategyTag:    "gateway",
			PollTimeout:    duration{2 * time.Minute},
			AmountCap:      1_000_000_000_000,
			SyntheticYield: 4.0,
		},
		Lending: LendingConfig{
			Chain:       "near",
			Protocol:    "burrow",
			Asset:       "usdc",
			StrategyTag: "lending",
		},
		Feeds: FeedsConfig{
			SyntheticYield: map[string]float64{},
			FallbackYield:  2.0,
		},
		Agent: AgentConfig{
			Interval:          duration{5 * time.Minute},
			Plugins:           []string{"home_rebalance", "gateway_yield", "pool_yield"},
			MinHold:           duration{24 * time.Hour},
			YieldThresholdPct: 3.0,
			BorrowUtilization: 0.5,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{},
		},
		Notify: NotifyConfig{
			Events: []string{"action_executed", "cycle_error"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":     true,
	"observe": true,
	"server":  true,
	"dry-run": true,
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

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, observe, server, dry-run)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain. Dry runs use in-memory fakes and need no endpoint.
	if c.Mode != "dry-run" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.VaultAddress == "" {
			errs = append(errs, "chain: vault_address must not be empty")
		}
		if c.Mode == "run" && c.Chain.OperatorKey == "" {
			errs = append(errs, "chain: operator_key is required for mode run")
		}
	}

	// Postgres.
	if c.Mode != "dry-run" {
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
	}

	// Keystore. Secondary-venue plugins cannot run without a master key.
	if c.Keystore.MasterKeyHex == "" && c.Keystore.Passphrase != "" && c.Keystore.Salt == "" {
		errs = append(errs, "keystore: salt is required when passphrase is set")
	}

	// Archive.
	if c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when enabled")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty when enabled")
		}
	}

	// Agent.
	if c.Agent.Interval.Duration <= 0 {
		errs = append(errs, "agent: interval must be > 0")
	}
	if len(c.Agent.Plugins) == 0 {
		errs = append(errs, "agent: plugins must not be empty")
	}
	if c.Agent.BorrowUtilization <= 0 || c.Agent.BorrowUtilization > 1 {
		errs = append(errs, fmt.Sprintf("agent: borrow_utilization must be in (0, 1], got %g", c.Agent.BorrowUtilization))
	}

	// Gateway.
	if c.Gateway.PollTimeout.Duration <= 0 {
		errs = append(errs, "gateway: poll_timeout must be > 0")
	}
	if c.Gateway.AmountCap <= 0 {
		errs = append(errs, "gateway: amount_cap must be > 0")
	}

	// Server.
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
