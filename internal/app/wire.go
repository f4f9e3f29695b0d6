package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/riozmarkets/settlement/internal/blob/s3"
	"github.com/riozmarkets/settlement/internal/cache/redis"
	"github.com/riozmarkets/settlement/internal/config"
	"github.com/riozmarkets/settlement/internal/crypto"
	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/notify"
	"github.com/riozmarkets/settlement/internal/store/memory"
	"github.com/riozmarkets/settlement/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	AccountStore     domain.AccountStore
	MarketStore      domain.MarketStore
	PositionStore    domain.PositionStore
	OrderStore       domain.OrderStore
	FastPoolStore    domain.FastPoolStore
	FastPoolBetStore domain.FastPoolBetStore
	LedgerStore      domain.LedgerStore
	ReportStore      domain.ReportStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Archiver is only wired when both Postgres and S3 are available.
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// AdminAuth is nil when no admin credentials are configured; the admin
	// endpoints then reject every request.
	AdminAuth *crypto.AdminAuth
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Dev mode runs entirely on
// in-memory implementations and touches no external service.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	dev := strings.ToLower(cfg.Mode) == "dev"

	if dev {
		deps.AccountStore = memory.NewAccountStore()
		deps.MarketStore = memory.NewMarketStore()
		deps.PositionStore = memory.NewPositionStore()
		deps.OrderStore = memory.NewOrderStore()
		deps.FastPoolStore = memory.NewFastPoolStore()
		deps.FastPoolBetStore = memory.NewFastPoolBetStore()
		deps.LedgerStore = memory.NewLedgerStore()
		deps.ReportStore = memory.NewReportStore()

		deps.PriceCache = memory.NewPriceCache()
		deps.RateLimiter = memory.NewRateLimiter()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus()
	} else {
		// --- PostgreSQL ---
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

		pool := pgClient.Pool()
		accountStore := postgres.NewAccountStore(pool)
		marketStore := postgres.NewMarketStore(pool)
		positionStore := postgres.NewPositionStore(pool)
		orderStore := postgres.NewOrderStore(pool)
		fastPoolStore := postgres.NewFastPoolStore(pool)
		fastPoolBetStore := postgres.NewFastPoolBetStore(pool)
		ledgerStore := postgres.NewLedgerStore(pool)
		reportStore := postgres.NewReportStore(pool)

		deps.AccountStore = accountStore
		deps.MarketStore = marketStore
		deps.PositionStore = positionStore
		deps.OrderStore = orderStore
		deps.FastPoolStore = fastPoolStore
		deps.FastPoolBetStore = fastPoolBetStore
		deps.LedgerStore = ledgerStore
		deps.ReportStore = reportStore

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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)

		// --- S3 blob storage (archive export) ---
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
			closers = append(closers, func() { _ = s3Client.Close() })

			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				fastPoolStore,
				ledgerStore,
				reportStore,
			)
		}
	}

	// --- Admin credentials ---
	if cfg.Admin.Key != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           cfg.Admin.Secret,
			EncryptedSecretPath: cfg.Admin.EncryptedSecretPath,
			SecretPassword:      cfg.Admin.SecretPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: admin secret: %w", err)
		}
		deps.AdminAuth = &crypto.AdminAuth{Key: cfg.Admin.Key, Secret: secret}
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
