package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/fxbot/internal/blob/s3"
	"github.com/alanyoungcy/fxbot/internal/cache/redis"
	"github.com/alanyoungcy/fxbot/internal/config"
	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/notify"
	"github.com/alanyoungcy/fxbot/internal/server/handler"
	"github.com/alanyoungcy/fxbot/internal/server/ws"
	"github.com/alanyoungcy/fxbot/internal/store/memory"
	"github.com/alanyoungcy/fxbot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. Every field is
// populated: backends that are disabled in the configuration fall back to
// in-process implementations, except the optional ones noted below.
type Dependencies struct {
	Journal domain.Journal
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// Optional: nil without Redis.
	Lock      domain.LockManager
	NewsCache domain.NewsCache
	Replay    ws.Replayer

	// Optional: nil without S3.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	Notifier *notify.Notifier
	// Telegram is set when a bot token and chat are configured.
	Telegram *notify.TelegramSender

	// Checks are the dependency probes reported by /api/health.
	Checks map[string]handler.Check
}

// Wire constructs the infrastructure from the given configuration and
// returns it together with a cleanup function that releases it in reverse
// order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Journal: memory.NewJournal(),
		Checks:  make(map[string]handler.Check),
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
		deps.Journal = pgClient.Journal()
		deps.Checks["postgres"] = pgClient.Ping
	} else {
		logger.Warn("postgres disabled, journal is in memory only")
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
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

		bus := redis.NewSignalBus(redisClient, domain.ChannelTrades)
		deps.Bus = bus
		deps.Replay = bus
		deps.Lock = redis.NewLockManager(redisClient)
		deps.NewsCache = redis.NewNewsCache(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		deps.Bus = memory.NewBus()
		deps.Limiter = memory.NewRateLimiter()
	}

	// --- S3 blob storage ---
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
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Journal, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		deps.Telegram = notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		senders = append(senders, deps.Telegram)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.QueueSize, logger)

	return deps, cleanup, nil
}
