package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/uuzor/predictx/internal/blob/s3"
	"github.com/uuzor/predictx/internal/cache/redis"
	"github.com/uuzor/predictx/internal/config"
	"github.com/uuzor/predictx/internal/crypto"
	"github.com/uuzor/predictx/internal/domain"
	"github.com/uuzor/predictx/internal/gateway"
	"github.com/uuzor/predictx/internal/notify"
	"github.com/uuzor/predictx/internal/oracle"
	"github.com/uuzor/predictx/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	Store       domain.PredictionStore
	Oracle      domain.PriceOracle
	PriceCache  *redis.PriceCache
	RateLimiter domain.RateLimiter
	SignalBus   *redis.SignalBus
	Gateway     *gateway.Client
	Archiver    *s3blob.Archiver
	Notifier    *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse construction order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
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

	store := postgres.NewPredictionStore(pgClient.Pool())
	deps.Store = store

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

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Oracle.CacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Price oracle (HTTP + cache read-through) ---
	spot := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.Timeout.Duration)
	deps.Oracle = oracle.NewCached(spot, deps.PriceCache, cfg.Oracle.CacheTTL.Duration, logger)

	// --- Wallet signer + gateway ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Endpoint:          cfg.Node.Endpoint,
		Participant:       cfg.Node.Participant,
		Application:       cfg.Node.Application,
		Scope:             cfg.Node.Scope,
		ExpirySeconds:     cfg.Node.ExpirySeconds,
		CallTimeout:       cfg.Node.CallTimeout.Duration,
		ReconnectDelay:    cfg.Node.ReconnectDelay.Duration,
		MaxReconnectDelay: cfg.Node.MaxReconnectDelay.Duration,
	}, signer, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: gateway: %w", err)
	}
	closers = append(closers, func() { _ = gw.Close() })

	// Mirror gateway transitions onto the signal bus so viewers see
	// connectivity changes live.
	bus := deps.SignalBus
	gw.OnStatusChange(func(connected, sessionReady bool) {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bus.Publish(pubCtx, domain.EventGatewayStatus, domain.GatewayStatusEvent{
			Connected:    connected,
			SessionReady: sessionReady,
			At:           time.Now().UTC(),
		})
	})
	deps.Gateway = gw

	// --- S3 settlement archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			store,
			cfg.S3.RetentionDays,
			logger,
		)
	}

	// --- Operator notifications ---
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
