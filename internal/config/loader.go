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
// built-in defaults, applies AUTOTRADER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known AUTOTRADER_* environment variables
// and overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "AUTOTRADER_BROKER_BASE_URL")
	setStr(&cfg.Broker.WsURL, "AUTOTRADER_BROKER_WS_URL")
	setStr(&cfg.Broker.Token, "AUTOTRADER_BROKER_TOKEN")
	setDuration(&cfg.Broker.QuoteStaleAfter, "AUTOTRADER_BROKER_QUOTE_STALE_AFTER")
	setBool(&cfg.Broker.UseStream, "AUTOTRADER_BROKER_USE_STREAM")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "AUTOTRADER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "AUTOTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AUTOTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUTOTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUTOTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUTOTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUTOTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUTOTRADER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUTOTRADER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUTOTRADER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUTOTRADER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AUTOTRADER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AUTOTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUTOTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUTOTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUTOTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUTOTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUTOTRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUTOTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUTOTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUTOTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUTOTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUTOTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUTOTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUTOTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUTOTRADER_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "AUTOTRADER_S3_RETENTION_DAYS")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Instruments, "AUTOTRADER_TRADING_INSTRUMENTS")
	setDuration(&cfg.Trading.Interval, "AUTOTRADER_TRADING_INTERVAL")
	setDuration(&cfg.Trading.GracePeriod, "AUTOTRADER_TRADING_GRACE_PERIOD")
	setBool(&cfg.Trading.RequireNewRegime, "AUTOTRADER_TRADING_REQUIRE_NEW_REGIME")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "AUTOTRADER_STRATEGY_NAME")
	setStr(&cfg.Strategy.Timeframe, "AUTOTRADER_STRATEGY_TIMEFRAME")
	setInt(&cfg.Strategy.Lookback, "AUTOTRADER_STRATEGY_LOOKBACK")
	setInt(&cfg.Strategy.FastEMA, "AUTOTRADER_STRATEGY_FAST_EMA")
	setInt(&cfg.Strategy.SlowEMA, "AUTOTRADER_STRATEGY_SLOW_EMA")
	setInt(&cfg.Strategy.RSIPeriod, "AUTOTRADER_STRATEGY_RSI_PERIOD")
	setFloat64(&cfg.Strategy.RSILongMin, "AUTOTRADER_STRATEGY_RSI_LONG_MIN")
	setFloat64(&cfg.Strategy.RSIShortMax, "AUTOTRADER_STRATEGY_RSI_SHORT_MAX")
	setFloat64(&cfg.Strategy.StopPips, "AUTOTRADER_STRATEGY_STOP_PIPS")
	setFloat64(&cfg.Strategy.TargetPips, "AUTOTRADER_STRATEGY_TARGET_PIPS")

	// ── Sizing ──
	setStr(&cfg.Sizing.Mode, "AUTOTRADER_SIZING_MODE")
	setFloat64(&cfg.Sizing.DefaultLots, "AUTOTRADER_SIZING_DEFAULT_LOTS")
	setFloat64(&cfg.Sizing.RiskFraction, "AUTOTRADER_SIZING_RISK_FRACTION")
	setFloat64(&cfg.Sizing.MinLot, "AUTOTRADER_SIZING_MIN_LOT")
	setFloat64(&cfg.Sizing.MaxLot, "AUTOTRADER_SIZING_MAX_LOT")

	// ── Guards ──
	setDuration(&cfg.Guards.Cooldown, "AUTOTRADER_GUARDS_COOLDOWN")
	setInt(&cfg.Guards.MaxOpenTotal, "AUTOTRADER_GUARDS_MAX_OPEN_TOTAL")
	setInt(&cfg.Guards.MaxPerInstrument, "AUTOTRADER_GUARDS_MAX_PER_INSTRUMENT")
	setBool(&cfg.Guards.BlockSameSide, "AUTOTRADER_GUARDS_BLOCK_SAME_SIDE")
	setFloat64(&cfg.Guards.FloatingPnlFloor, "AUTOTRADER_GUARDS_FLOATING_PNL_FLOOR")
	setFloat64(&cfg.Guards.EquityFloor, "AUTOTRADER_GUARDS_EQUITY_FLOOR")
	setFloat64(&cfg.Guards.DailyLossLimit, "AUTOTRADER_GUARDS_DAILY_LOSS_LIMIT")
	setBool(&cfg.Guards.MarketCheck, "AUTOTRADER_GUARDS_MARKET_CHECK")

	// ── Executor ──
	setInt(&cfg.Executor.MaxRetries, "AUTOTRADER_EXECUTOR_MAX_RETRIES")
	setDuration(&cfg.Executor.RetryDelay, "AUTOTRADER_EXECUTOR_RETRY_DELAY")
	setFloat64(&cfg.Executor.WidenMultiplier, "AUTOTRADER_EXECUTOR_WIDEN_MULTIPLIER")
	setInt(&cfg.Executor.MaxWidenAttempts, "AUTOTRADER_EXECUTOR_MAX_WIDEN_ATTEMPTS")
	setInt(&cfg.Executor.AttachRetries, "AUTOTRADER_EXECUTOR_ATTACH_RETRIES")

	// ── Trailing ──
	setBool(&cfg.Trailing.Enabled, "AUTOTRADER_TRAILING_ENABLED")
	setStr(&cfg.Trailing.Mode, "AUTOTRADER_TRAILING_MODE")
	setStr(&cfg.Trailing.Timeframe, "AUTOTRADER_TRAILING_TIMEFRAME")
	setInt(&cfg.Trailing.ATRPeriod, "AUTOTRADER_TRAILING_ATR_PERIOD")
	setFloat64(&cfg.Trailing.ATRMultiplier, "AUTOTRADER_TRAILING_ATR_MULTIPLIER")
	setFloat64(&cfg.Trailing.TrailPips, "AUTOTRADER_TRAILING_TRAIL_PIPS")
	setFloat64(&cfg.Trailing.StartPips, "AUTOTRADER_TRAILING_START_PIPS")
	setFloat64(&cfg.Trailing.LockPips, "AUTOTRADER_TRAILING_LOCK_PIPS")
	setFloat64(&cfg.Trailing.StepPips, "AUTOTRADER_TRAILING_STEP_PIPS")
	setDuration(&cfg.Trailing.Cooldown, "AUTOTRADER_TRAILING_COOLDOWN")
	setDuration(&cfg.Trailing.Interval, "AUTOTRADER_TRAILING_INTERVAL")
	setBool(&cfg.Trailing.OnlyInProfit, "AUTOTRADER_TRAILING_ONLY_IN_PROFIT")
	setBool(&cfg.Trailing.RequireBias, "AUTOTRADER_TRAILING_REQUIRE_BIAS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AUTOTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AUTOTRADER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUTOTRADER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AUTOTRADER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUTOTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUTOTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUTOTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AUTOTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUTOTRADER_MODE")
	setStr(&cfg.LogLevel, "AUTOTRADER_LOG_LEVEL")
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
