package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "parimarket/internal/blob/s3"
	"parimarket/internal/cache/redis"
	"parimarket/internal/config"
	"parimarket/internal/crypto"
	"parimarket/internal/domain"
	"parimarket/internal/notify"
	"parimarket/internal/store/memory"
	"parimarket/internal/store/postgres"
	"parimarket/internal/vault"
)

// Dependencies bundles the domain-level collaborators the operating
// modes need. Wire constructs them; the returned cleanup tears them
// down.
type Dependencies struct {
	Store domain.Store
	Vault *vault.Vault

	// Redis-backed collaborators; nil when Redis is disabled.
	Cache   domain.MarketCache
	Locks   domain.LockManager
	Limiter domain.RateLimiter

	// Archiver is wired for archive mode only.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier

	// Raw clients kept for health checks.
	PG    *postgres.Client
	Redis *redis.Client
}

// Wire constructs the concrete dependency implementations for the
// configured mode. Demo mode runs entirely on the in-memory store and
// skips every external service.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Vault (escrow capability secret) ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           cfg.Vault.Secret,
		EncryptedSecretPath: cfg.Vault.EncryptedSecretPath,
		SecretPassword:      cfg.Vault.SecretPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: vault secret: %w", err)
	}
	v, err := vault.New(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: vault: %w", err)
	}
	deps.Vault = v

	// --- Store ---
	if mode == "demo" {
		deps.Store = memory.New(v)
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.PG = pgClient
		deps.Store = postgres.NewStore(pgClient, v)
	}

	// --- Redis (cache, market locks, API rate limiter) ---
	if mode != "demo" && cfg.Redis.Enabled {
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

		deps.Redis = redisClient
		deps.Cache = redis.NewMarketCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 event archive ---
	if mode == "archive" {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Store, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
