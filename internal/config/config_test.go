package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.LogLevel = "loud"
	cfg.Strategy.FastEMA = 26
	cfg.Strategy.SlowEMA = 12
	cfg.Sizing.RiskFraction = 0.9
	cfg.Server.Port = 99999

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), "fast_ema 26 must be below slow_ema 12")
	assert.Contains(t, err.Error(), "risk_fraction")
	assert.Contains(t, err.Error(), "port must be 1-65535")
}

func TestValidateBrokerRequiredOutsidePaper(t *testing.T) {
	cfg := Defaults()
	cfg.Broker.BaseURL = ""

	require.Error(t, cfg.Validate())

	cfg.Mode = "paper"
	assert.NoError(t, cfg.Validate(), "paper mode runs without a bridge")
}

func TestValidatePostgresNeedsTarget(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = ""
	require.Error(t, cfg.Validate())

	cfg.Postgres.DSN = "postgres://user@localhost/autotrader"
	assert.NoError(t, cfg.Validate(), "a DSN replaces the host fields")
}

func TestValidateS3RequiresPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.S3.Enabled = true
	cfg.Postgres.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archiving requires postgres")
}

func TestSessionWindows(t *testing.T) {
	g := GuardsConfig{Sessions: []SessionConfig{
		{Days: []string{"Mon", "friday"}, Start: "08:00", End: "17:00"},
	}}
	windows, err := g.SessionWindows()
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, windows[0].Days)

	g.Sessions[0].Days = []string{"noday"}
	_, err = g.SessionWindows()
	assert.Error(t, err)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "paper"

[trading]
instruments = ["GBPUSD"]
interval = "10s"

[strategy]
fast_ema = 9

[guards]
cooldown = "5m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Mode)
	assert.Equal(t, []string{"GBPUSD"}, cfg.Trading.Instruments)
	assert.Equal(t, 10*time.Second, cfg.Trading.Interval.Duration)
	assert.Equal(t, 9, cfg.Strategy.FastEMA)
	assert.Equal(t, 5*time.Minute, cfg.Guards.Cooldown.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 26, cfg.Strategy.SlowEMA)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
mode = "trade"

[broker]
token = "from-file"
`)

	t.Setenv("AUTOTRADER_MODE", "monitor")
	t.Setenv("AUTOTRADER_BROKER_TOKEN", "from-env")
	t.Setenv("AUTOTRADER_TRADING_INSTRUMENTS", "EURUSD, GBPUSD ,XAUUSD")
	t.Setenv("AUTOTRADER_SIZING_RISK_FRACTION", "0.02")
	t.Setenv("AUTOTRADER_TRAILING_ENABLED", "false")
	t.Setenv("AUTOTRADER_TRADING_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "from-env", cfg.Broker.Token)
	assert.Equal(t, []string{"EURUSD", "GBPUSD", "XAUUSD"}, cfg.Trading.Instruments)
	assert.InDelta(t, 0.02, cfg.Sizing.RiskFraction, 1e-12)
	assert.False(t, cfg.Trailing.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Trading.Interval.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Broker.Token = "broker-token"
	cfg.Postgres.Password = "pg-pass"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Broker.Token)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)

	// The original is untouched and the copy does not alias its slices.
	assert.Equal(t, "broker-token", cfg.Broker.Token)
	red.Trading.Instruments[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Trading.Instruments[0])
}
