package app

import (
	"context"
	"fmt"

	s3blob "blocktrader/internal/blob/s3"
	"blocktrader/internal/broker"
	"blocktrader/internal/cache/redis"
	"blocktrader/internal/config"
	"blocktrader/internal/domain"
	"blocktrader/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Accounts  domain.AccountStore
	Symbols   domain.SymbolStore
	Ladders   domain.LadderStore
	Blocks    domain.BlockStore
	Closed    domain.ClosedBlockStore
	Condensed domain.CondensedBlockStore

	// Redis
	PriceCache domain.PriceCache
	Locks      domain.LockManager
	SignalBus  domain.SignalBus

	// Brokerage
	Broker domain.Broker

	// Blob storage (nil when s3.enabled is false)
	BlobWriter domain.BlobWriter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
	deps.Accounts = postgres.NewAccountStore(pool)
	deps.Symbols = postgres.NewSymbolStore(pool)
	deps.Ladders = postgres.NewLadderStore(pool)
	deps.Blocks = postgres.NewBlockStore(pool)
	deps.Closed = postgres.NewClosedBlockStore(pool)
	deps.Condensed = postgres.NewCondensedBlockStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Engine.QuoteTTL.Duration)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Brokerage ---
	accounts := make(map[string]broker.Credentials, len(cfg.Broker.Accounts))
	for userID, acct := range cfg.Broker.Accounts {
		accounts[userID] = broker.Credentials{KeyID: acct.ApiKeyID, Secret: acct.ApiSecret}
	}
	deps.Broker = broker.NewClient(broker.Config{
		BaseURL:  cfg.Broker.BaseURL,
		DataURL:  cfg.Broker.DataURL,
		WSURL:    cfg.Broker.WSURL,
		Default:  broker.Credentials{KeyID: cfg.Broker.ApiKeyID, Secret: cfg.Broker.ApiSecret},
		Accounts: accounts,
	})

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	return deps, cleanup, nil
}
