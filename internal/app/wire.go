package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/quantonic/autotrader/internal/blob/s3"
	"github.com/quantonic/autotrader/internal/broker"
	"github.com/quantonic/autotrader/internal/broker/mt5"
	"github.com/quantonic/autotrader/internal/cache/redis"
	"github.com/quantonic/autotrader/internal/config"
	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/engine"
	"github.com/quantonic/autotrader/internal/exec"
	"github.com/quantonic/autotrader/internal/notify"
	"github.com/quantonic/autotrader/internal/risk"
	"github.com/quantonic/autotrader/internal/sizing"
	"github.com/quantonic/autotrader/internal/store/postgres"
	"github.com/quantonic/autotrader/internal/strategy"
	"github.com/quantonic/autotrader/internal/trail"
)

// Dependencies bundles everything the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup function.
// Optional subsystems (journal, archiver, trailing) are nil when disabled.
type Dependencies struct {
	Session  domain.BrokerSession
	Source   strategy.SignalSource
	Guard    *risk.Guard
	Sizer    *sizing.Sizer
	Executor *exec.Executor
	Cooldown *risk.CooldownState

	Journal  domain.JournalStore
	Archiver *s3blob.Archiver
	Archives *s3blob.Reader
	Notifier *notify.Notifier

	TradeLoop *engine.TradeLoop
	TrailLoop *engine.TrailLoop
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// --- Broker session ---
	session, sessionClosers, err := wireSession(ctx, cfg, mode, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, sessionClosers...)
	deps.Session = session

	// --- PostgreSQL journal ---
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
		deps.Journal = postgres.NewJournalStore(pgClient.Pool())
	}

	// --- Redis cooldown persistence ---
	var cooldownStore domain.CooldownStore
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
		cooldownStore = redis.NewCooldownStore(redisClient)
	}
	deps.Cooldown = risk.NewCooldownState(cooldownStore)
	if err := deps.Cooldown.Hydrate(ctx); err != nil {
		logger.WarnContext(ctx, "wire: cooldown hydrate failed, starting cold",
			slog.String("error", err.Error()),
		)
	}

	// --- S3 journal archive ---
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

		deps.Archives = s3blob.NewReader(s3Client)
		// Validate() guarantees Postgres is enabled alongside S3, so the
		// journal is always present here.
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Journal, logger)
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

	// --- Signal source ---
	source, err := strategy.Build(cfg.Strategy.Name, strategy.Config{
		Timeframe:   domain.Timeframe(cfg.Strategy.Timeframe),
		Lookback:    cfg.Strategy.Lookback,
		FastEMA:     cfg.Strategy.FastEMA,
		SlowEMA:     cfg.Strategy.SlowEMA,
		RSIPeriod:   cfg.Strategy.RSIPeriod,
		RSILongMin:  cfg.Strategy.RSILongMin,
		RSIShortMax: cfg.Strategy.RSIShortMax,
		StopPips:    cfg.Strategy.StopPips,
		TargetPips:  cfg.Strategy.TargetPips,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: strategy: %w", err)
	}
	deps.Source = source

	// --- Admission, sizing, execution ---
	windows, err := cfg.Guards.SessionWindows()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Guard = risk.NewGuard(session, deps.Cooldown, risk.GuardConfig{
		CooldownWindow:   cfg.Guards.Cooldown.Duration,
		MaxOpenTotal:     cfg.Guards.MaxOpenTotal,
		MaxPerInstrument: cfg.Guards.MaxPerInstrument,
		BlockSameSide:    cfg.Guards.BlockSameSide,
		FloatingPnlFloor: cfg.Guards.FloatingPnlFloor,
		EquityFloor:      cfg.Guards.EquityFloor,
		DailyLossLimit:   cfg.Guards.DailyLossLimit,
		MarketCheck:      cfg.Guards.MarketCheck,
		Sessions:         windows,
	}, logger)

	deps.Sizer = sizing.New(sizing.Policy{
		Mode:              sizing.Mode(strings.ToLower(cfg.Sizing.Mode)),
		DefaultLots:       cfg.Sizing.DefaultLots,
		PerInstrumentLots: cfg.Sizing.PerInstrumentLots,
		RiskFraction:      cfg.Sizing.RiskFraction,
		MinLot:            cfg.Sizing.MinLot,
		MaxLot:            cfg.Sizing.MaxLot,
	})

	deps.Executor = exec.New(session, exec.Config{
		MaxRetries:       cfg.Executor.MaxRetries,
		RetryDelay:       cfg.Executor.RetryDelay.Duration,
		WidenMultiplier:  cfg.Executor.WidenMultiplier,
		MaxWidenAttempts: cfg.Executor.MaxWidenAttempts,
		AttachRetries:    cfg.Executor.AttachRetries,
	}, logger)

	// --- Loops ---
	deps.TradeLoop = engine.NewTradeLoop(
		session, source, deps.Guard, deps.Sizer, deps.Executor, deps.Cooldown,
		deps.Journal, deps.Notifier,
		engine.Config{
			Instruments:      cfg.Trading.Instruments,
			Interval:         cfg.Trading.Interval.Duration,
			GracePeriod:      cfg.Trading.GracePeriod.Duration,
			RequireNewRegime: cfg.Trading.RequireNewRegime,
			DryRun:           mode == "monitor",
		},
		logger,
	)

	if cfg.Trailing.Enabled {
		controller := trail.NewController(session, source, trail.Config{
			Mode:          trail.Mode(strings.ToLower(cfg.Trailing.Mode)),
			Timeframe:     domain.Timeframe(cfg.Trailing.Timeframe),
			ATRPeriod:     cfg.Trailing.ATRPeriod,
			ATRMultiplier: cfg.Trailing.ATRMultiplier,
			TrailPips:     cfg.Trailing.TrailPips,
			StartPips:     cfg.Trailing.StartPips,
			LockPips:      cfg.Trailing.LockPips,
			StepPips:      cfg.Trailing.StepPips,
			Cooldown:      cfg.Trailing.Cooldown.Duration,
			OnlyInProfit:  cfg.Trailing.OnlyInProfit,
			RequireBias:   cfg.Trailing.RequireBias,
		}, logger)
		deps.TrailLoop = engine.NewTrailLoop(
			session, controller, deps.Journal, deps.Notifier,
			cfg.Trading.Instruments, cfg.Trailing.Interval.Duration, logger,
		)
	}

	return deps, cleanup, nil
}

// wireSession builds the broker session for the configured mode. Mutating
// calls are serialized; paper mode trades against an in-memory book, using
// the live bridge for market data when one is configured.
func wireSession(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (domain.BrokerSession, []func(), error) {
	var closers []func()

	if mode == "paper" {
		paper := broker.NewPaper(100_000)
		if cfg.Broker.BaseURL == "" {
			logger.WarnContext(ctx, "wire: paper mode without broker.base_url, no market data")
			return broker.Serialize(paper), closers, nil
		}
		data, dataClosers, err := wireBridge(ctx, cfg, logger)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, dataClosers...)
		return broker.Serialize(broker.NewShadow(data, paper)), closers, nil
	}

	client, clientClosers, err := wireBridge(ctx, cfg, logger)
	if err != nil {
		return nil, closers, err
	}
	closers = append(closers, clientClosers...)
	return broker.Serialize(client), closers, nil
}

// wireBridge builds the terminal bridge client, attaching the tick stream
// when configured.
func wireBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mt5.Client, []func(), error) {
	var closers []func()

	client := mt5.NewClient(cfg.Broker.BaseURL, cfg.Broker.Token, cfg.Broker.QuoteStaleAfter.Duration)

	if cfg.Broker.UseStream {
		stream := mt5.NewStream(cfg.Broker.WsURL, cfg.Broker.Token)
		if err := stream.Connect(ctx); err != nil {
			return nil, closers, fmt.Errorf("wire: tick stream: %w", err)
		}
		closers = append(closers, func() { _ = stream.Close() })
		if err := stream.Subscribe(cfg.Trading.Instruments); err != nil {
			logger.WarnContext(ctx, "wire: tick subscribe failed, falling back to polling",
				slog.String("error", err.Error()),
			)
		}
		client.AttachStream(stream)
	}

	return client, closers, nil
}
