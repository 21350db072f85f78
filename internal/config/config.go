// Package config defines the top-level configuration for the trading
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantonic/autotrader/internal/risk"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUTOTRADER_* environment
// variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Trading  TradingConfig  `toml:"trading"`
	Strategy StrategyConfig `toml:"strategy"`
	Sizing   SizingConfig   `toml:"sizing"`
	Guards   GuardsConfig   `toml:"guards"`
	Executor ExecutorConfig `toml:"executor"`
	Trailing TrailingConfig `toml:"trailing"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig holds terminal bridge connection parameters.
type BrokerConfig struct {
	BaseURL string `toml:"base_url"`
	WsURL   string `toml:"ws_url"`
	Token   string `toml:"token"`
	// QuoteStaleAfter bounds tick age before quotes are treated as absent.
	QuoteStaleAfter duration `toml:"quote_stale_after"`
	UseStream       bool     `toml:"use_stream"`
}

// PostgresConfig holds journal database parameters. When disabled the
// engine runs without a durable journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds cooldown persistence parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds journal archive storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// RetentionDays bounds how long journal rows stay in Postgres before
	// the archiver exports and prunes them.
	RetentionDays int `toml:"retention_days"`
}

// TradingConfig holds the trade loop parameters.
type TradingConfig struct {
	Instruments      []string `toml:"instruments"`
	Interval         duration `toml:"interval"`
	GracePeriod      duration `toml:"grace_period"`
	RequireNewRegime bool     `toml:"require_new_regime"`
}

// StrategyConfig holds signal source parameters.
type StrategyConfig struct {
	Name        string  `toml:"name"`
	Timeframe   string  `toml:"timeframe"`
	Lookback    int     `toml:"lookback"`
	FastEMA     int     `toml:"fast_ema"`
	SlowEMA     int     `toml:"slow_ema"`
	RSIPeriod   int     `toml:"rsi_period"`
	RSILongMin  float64 `toml:"rsi_long_min"`
	RSIShortMax float64 `toml:"rsi_short_max"`
	StopPips    float64 `toml:"stop_pips"`
	TargetPips  float64 `toml:"target_pips"`
}

// SizingConfig holds position sizing parameters.
type SizingConfig struct {
	Mode              string             `toml:"mode"` // "fixed" or "risk"
	DefaultLots       float64            `toml:"default_lots"`
	PerInstrumentLots map[string]float64 `toml:"per_instrument_lots"`
	RiskFraction      float64            `toml:"risk_fraction"`
	MinLot            float64            `toml:"min_lot"`
	MaxLot            float64            `toml:"max_lot"`
}

// SessionConfig is one allowed trading window in UTC.
type SessionConfig struct {
	Days  []string `toml:"days"` // e.g. ["mon", "tue"]; empty = all days
	Start string   `toml:"start"`
	End   string   `toml:"end"`
}

// GuardsConfig holds the admission thresholds. Zero values disable the
// corresponding check.
type GuardsConfig struct {
	Cooldown         duration        `toml:"cooldown"`
	MaxOpenTotal     int             `toml:"max_open_total"`
	MaxPerInstrument int             `toml:"max_per_instrument"`
	BlockSameSide    bool            `toml:"block_same_side"`
	FloatingPnlFloor float64         `toml:"floating_pnl_floor"`
	EquityFloor      float64         `toml:"equity_floor"`
	DailyLossLimit   float64         `toml:"daily_loss_limit"`
	MarketCheck      bool            `toml:"market_check"`
	Sessions         []SessionConfig `toml:"sessions"`
}

// ExecutorConfig holds the order submission retry bounds.
type ExecutorConfig struct {
	MaxRetries       int      `toml:"max_retries"`
	RetryDelay       duration `toml:"retry_delay"`
	WidenMultiplier  float64  `toml:"widen_multiplier"`
	MaxWidenAttempts int      `toml:"max_widen_attempts"`
	AttachRetries    int      `toml:"attach_retries"`
}

// TrailingConfig holds the trailing stop parameters.
type TrailingConfig struct {
	Enabled       bool     `toml:"enabled"`
	Mode          string   `toml:"mode"` // "atr" or "pips"
	Timeframe     string   `toml:"timeframe"`
	ATRPeriod     int      `toml:"atr_period"`
	ATRMultiplier float64  `toml:"atr_multiplier"`
	TrailPips     float64  `toml:"trail_pips"`
	StartPips     float64  `toml:"start_pips"`
	LockPips      float64  `toml:"lock_pips"`
	StepPips      float64  `toml:"step_pips"`
	Cooldown      duration `toml:"cooldown"`
	Interval      duration `toml:"interval"`
	OnlyInProfit  bool     `toml:"only_in_profit"`
	RequireBias   bool     `toml:"require_bias"`
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

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			BaseURL:         "http://127.0.0.1:5001/api/v1",
			WsURL:           "ws://127.0.0.1:5001/api/v1/stream",
			QuoteStaleAfter: duration{90 * time.Second},
			UseStream:       false,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "autotrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "autotrader-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Trading: TradingConfig{
			Instruments:      []string{"EURUSD", "XAUUSD"},
			Interval:         duration{30 * time.Second},
			GracePeriod:      duration{2 * time.Minute},
			RequireNewRegime: false,
		},
		Strategy: StrategyConfig{
			Name:        "momentum",
			Timeframe:   "M5",
			FastEMA:     12,
			SlowEMA:     26,
			RSIPeriod:   14,
			RSILongMin:  52,
			RSIShortMax: 48,
			StopPips:    25,
			TargetPips:  50,
		},
		Sizing: SizingConfig{
			Mode:         "risk",
			DefaultLots:  0.01,
			RiskFraction: 0.01,
			MinLot:       0.01,
			MaxLot:       1.0,
		},
		Guards: GuardsConfig{
			Cooldown:         duration{15 * time.Minute},
			MaxOpenTotal:     5,
			MaxPerInstrument: 2,
			BlockSameSide:    true,
			FloatingPnlFloor: 0,
			EquityFloor:      0,
			DailyLossLimit:   0,
			MarketCheck:      true,
		},
		Executor: ExecutorConfig{
			MaxRetries:       3,
			RetryDelay:       duration{500 * time.Millisecond},
			WidenMultiplier:  1.5,
			MaxWidenAttempts: 3,
			AttachRetries:    3,
		},
		Trailing: TrailingConfig{
			Enabled:       true,
			Mode:          "atr",
			Timeframe:     "M5",
			ATRPeriod:     14,
			ATRMultiplier: 2.0,
			TrailPips:     20,
			StartPips:     10,
			LockPips:      2,
			StepPips:      1,
			Cooldown:      duration{time.Minute},
			Interval:      duration{20 * time.Second},
			OnlyInProfit:  true,
			RequireBias:   false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "unprotected_position", "broker_unavailable"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true, // full pipeline against the live bridge
	"monitor": true, // evaluate and journal but never submit
	"paper":   true, // full pipeline against the in-memory paper broker
	"server":  true, // API only, no loops
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// SessionWindows converts the configured sessions into guard windows.
func (g GuardsConfig) SessionWindows() ([]risk.SessionWindow, error) {
	out := make([]risk.SessionWindow, 0, len(g.Sessions))
	for i, s := range g.Sessions {
		w := risk.SessionWindow{Start: s.Start, End: s.End}
		for _, name := range s.Days {
			day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return nil, fmt.Errorf("config: sessions[%d]: unknown day %q", i, name)
			}
			w.Days = append(w.Days, day)
		}
		out = append(out, w)
	}
	return out, nil
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, paper, server)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker — required unless running purely on paper.
	mode := strings.ToLower(c.Mode)
	if mode == "trade" || mode == "monitor" || mode == "server" {
		if c.Broker.BaseURL == "" {
			errs = append(errs, "broker: base_url must not be empty")
		}
		if c.Broker.UseStream && c.Broker.WsURL == "" {
			errs = append(errs, "broker: ws_url is required when use_stream is set")
		}
	}

	// Trading
	if len(c.Trading.Instruments) == 0 {
		errs = append(errs, "trading: instruments must not be empty")
	}
	if c.Trading.Interval.Duration <= 0 {
		errs = append(errs, "trading: interval must be positive")
	}

	// Strategy
	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}
	if c.Strategy.FastEMA > 0 && c.Strategy.SlowEMA > 0 && c.Strategy.FastEMA >= c.Strategy.SlowEMA {
		errs = append(errs, fmt.Sprintf("strategy: fast_ema %d must be below slow_ema %d", c.Strategy.FastEMA, c.Strategy.SlowEMA))
	}
	if c.Strategy.StopPips <= 0 {
		errs = append(errs, "strategy: stop_pips must be > 0")
	}
	if c.Strategy.TargetPips <= 0 {
		errs = append(errs, "strategy: target_pips must be > 0")
	}

	// Sizing
	switch strings.ToLower(c.Sizing.Mode) {
	case "fixed", "risk":
	default:
		errs = append(errs, fmt.Sprintf("sizing: unknown mode %q (valid: fixed, risk)", c.Sizing.Mode))
	}
	if c.Sizing.DefaultLots <= 0 {
		errs = append(errs, "sizing: default_lots must be > 0")
	}
	if strings.EqualFold(c.Sizing.Mode, "risk") {
		if c.Sizing.RiskFraction <= 0 || c.Sizing.RiskFraction > 0.5 {
			errs = append(errs, fmt.Sprintf("sizing: risk_fraction must be in (0, 0.5], got %g", c.Sizing.RiskFraction))
		}
	}
	if c.Sizing.MinLot > 0 && c.Sizing.MaxLot > 0 && c.Sizing.MinLot > c.Sizing.MaxLot {
		errs = append(errs, "sizing: min_lot must not exceed max_lot")
	}

	// Guards
	if c.Guards.FloatingPnlFloor > 0 {
		errs = append(errs, "guards: floating_pnl_floor must be negative or zero (it is a loss floor)")
	}
	if c.Guards.DailyLossLimit < 0 {
		errs = append(errs, "guards: daily_loss_limit is a positive magnitude (0 disables)")
	}
	if _, err := c.Guards.SessionWindows(); err != nil {
		errs = append(errs, err.Error())
	}

	// Executor
	if c.Executor.WidenMultiplier != 0 && c.Executor.WidenMultiplier <= 1 {
		errs = append(errs, fmt.Sprintf("executor: widen_multiplier must be > 1, got %g", c.Executor.WidenMultiplier))
	}

	// Trailing
	if c.Trailing.Enabled {
		switch strings.ToLower(c.Trailing.Mode) {
		case "atr", "pips":
		default:
			errs = append(errs, fmt.Sprintf("trailing: unknown mode %q (valid: atr, pips)", c.Trailing.Mode))
		}
		if c.Trailing.StartPips < 0 || c.Trailing.LockPips < 0 {
			errs = append(errs, "trailing: start_pips and lock_pips must be >= 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres to be enabled")
		}
	}

	// Server
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
