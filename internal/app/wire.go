package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/vaultpilot/vaultpilot/internal/blob/s3"
	"github.com/vaultpilot/vaultpilot/internal/bridge"
	"github.com/vaultpilot/vaultpilot/internal/cache/redis"
	"github.com/vaultpilot/vaultpilot/internal/chain"
	"github.com/vaultpilot/vaultpilot/internal/config"
	vpcrypto "github.com/vaultpilot/vaultpilot/internal/crypto"
	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/feeds"
	"github.com/vaultpilot/vaultpilot/internal/keystore"
	"github.com/vaultpilot/vaultpilot/internal/lending"
	"github.com/vaultpilot/vaultpilot/internal/notify"
	"github.com/vaultpilot/vaultpilot/internal/server/handler"
	"github.com/vaultpilot/vaultpilot/internal/store/postgres"
	"github.com/vaultpilot/vaultpilot/internal/strategy"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Positions        domain.PositionStore
	PendingBridges   domain.PendingBridgeStore
	GatewayPositions domain.GatewayPositionStore
	LendingPositions domain.LendingPositionStore
	KeyRecords       domain.KeyStore
	Actions          domain.ActionStore

	// Caches
	YieldCache domain.YieldCache

	// Venue adapters
	Vault   strategy.VaultAPI
	Gateway strategy.GatewayAPI
	Lending strategy.LendingAPI

	// Services
	Keystore *keystore.Store
	Observer strategy.Observer
	Stream   *feeds.Stream
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier

	// Health probes for the telemetry API, one per backing dependency.
	Health map[string]handler.Pinger
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "run", "observe", "server":
		return true
	default:
		return false
	}
}

// needsChain returns true for modes that talk to the home chain.
func needsChain(mode string) bool {
	switch mode {
	case "run", "observe":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.PendingBridges = postgres.NewPendingBridgeStore(pool)
		deps.GatewayPositions = postgres.NewGatewayPositionStore(pool)
		deps.LendingPositions = postgres.NewLendingPositionStore(pool)
		deps.KeyRecords = postgres.NewKeyStore(pool)
		deps.Actions = postgres.NewActionStore(pool)
		deps.Health["postgres"] = pool.Ping
	}

	// --- Redis yield cache ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		MaxRetries:  cfg.Redis.MaxRetries,
		DialTimeout: cfg.Redis.DialTimeout.Duration,
		TLSEnabled:  cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.YieldCache = redis.NewYieldCache(redisClient, cfg.Redis.YieldTTL.Duration)
	deps.Health["redis"] = redisClient.Ping

	// --- Home chain ---
	if needsChain(cfg.Mode) {
		chainClient, err := chain.Dial(ctx, chain.ClientConfig{
			RPCURL:   cfg.Chain.RPCURL,
			LogChunk: cfg.Chain.LogChunk,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)

		// Observe mode never signs, so the operator key is optional there.
		var signer *chain.Signer
		if cfg.Chain.OperatorKey != "" {
			signer, err = chain.NewSigner(chainClient, cfg.Chain.OperatorKey)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: signer: %w", err)
			}
		}

		vault, err := chain.NewVault(chainClient, signer, cfg.Chain.VaultAddress, cfg.Chain.DeployBlock, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: vault: %w", err)
		}
		deps.Vault = vault
		deps.Health["chain"] = func(ctx context.Context) error {
			_, err := chainClient.BlockNumber(ctx)
			return err
		}
	}

	// --- Custodial key store ---
	masterKey, err := vpcrypto.DeriveMasterKey(cfg.Keystore.MasterKeyHex, cfg.Keystore.Passphrase, cfg.Keystore.Salt)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: master key: %w", err)
	}
	if deps.KeyRecords != nil {
		deps.Keystore = keystore.New(masterKey, deps.KeyRecords, logger)
	}

	// --- Venue protocol clients ---
	if cfg.Gateway.BaseURL != "" {
		deps.Gateway = bridge.NewGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	}
	if cfg.Lending.BaseURL != "" {
		deps.Lending = lending.NewClient(cfg.Lending.BaseURL)
	}

	// --- Yield feeds ---
	var feedClient *feeds.Client
	if cfg.Feeds.BaseURL != "" {
		feedClient = feeds.NewClient(cfg.Feeds.BaseURL)
	}
	deps.Observer = feeds.NewObserver(feedClient, deps.YieldCache, cfg.Feeds.SyntheticYield, cfg.Feeds.FallbackYield, logger)
	if cfg.Feeds.WSURL != "" {
		deps.Stream = feeds.NewStream(cfg.Feeds.WSURL, deps.YieldCache, logger)
	}

	// --- S3 action archive ---
	if cfg.Archive.Enabled && deps.Actions != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Actions, logger)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// strategyConfig maps the flat agent/gateway/lending configuration onto the
// plugin tunables.
func strategyConfig(cfg *config.Config) strategy.Config {
	return strategy.Config{
		MinHold:           cfg.Agent.MinHold.Duration,
		YieldThresholdPct: cfg.Agent.YieldThresholdPct,
		BorrowUtilization: cfg.Agent.BorrowUtilization,
		AmountCap:         cfg.Gateway.AmountCap,
		BridgePollTimeout: cfg.Gateway.PollTimeout.Duration,
		GatewayVenue:      cfg.Gateway.Venue,
		TargetPoolKey:     cfg.Gateway.TargetPool,
		GatewayTag:        cfg.Gateway.StrategyTag,
		LendingChain:      cfg.Lending.Chain,
		LendingProtocol:   cfg.Lending.Protocol,
		LendingAsset:      cfg.Lending.Asset,
		LendingTag:        cfg.Lending.StrategyTag,
	}
}
