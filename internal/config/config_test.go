package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1.0, cfg.Engine.FXRates["USDT"])
	assert.Equal(t, 1.0, cfg.Engine.FXRates["USD"])
	assert.Equal(t, 2*time.Minute, cfg.Scanner.Interval.Duration)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "once"

[scanner]
symbols = ["BTC", "ETH"]
allow_cross_currency = true
interval = "45s"

[engine]
taker_fee_percent = 0.08
min_profit_percent = 1.0

[validator]
blocked_sources = ["badex"]

[risk]
max_signals_per_cycle = 3
timezone = "Europe/Moscow"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Scanner.Symbols)
	assert.True(t, cfg.Scanner.AllowCrossCurrency)
	assert.Equal(t, 45*time.Second, cfg.Scanner.Interval.Duration)
	assert.Equal(t, 0.08, cfg.Engine.TakerFeePercent)
	assert.Equal(t, 0.2, cfg.Engine.SlippagePercent)
	assert.Equal(t, []string{"badex"}, cfg.Validator.BlockedSources)
	assert.Equal(t, 3, cfg.Risk.MaxSignalsPerCycle)
	assert.Equal(t, "Europe/Moscow", cfg.Risk.Timezone)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[risk]
max_daily_loss = 50.0
`)
	t.Setenv("ARBSCAN_RISK_MAX_DAILY_LOSS", "75.5")
	t.Setenv("ARBSCAN_SCANNER_SYMBOLS", " SOL , ,TON")
	t.Setenv("ARBSCAN_SCANNER_INTERVAL", "10s")
	t.Setenv("ARBSCAN_REDIS_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 75.5, cfg.Risk.MaxDailyLoss)
	assert.Equal(t, []string{"SOL", "TON"}, cfg.Scanner.Symbols)
	assert.Equal(t, 10*time.Second, cfg.Scanner.Interval.Duration)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Engine.TakerFeePercent = -1
	cfg.Engine.FXRates = map[string]float64{"USDT": 2, "RUB": 0}
	cfg.Validator.MaxSpreadPercent = 0
	cfg.Risk.Timezone = "Mars/Olympus"
	cfg.Risk.Backend = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "engine: taker_fee_percent")
	assert.Contains(t, msg, "engine: fx_rates[USDT] must be 1")
	assert.Contains(t, msg, "engine: fx_rates[RUB] must be > 0")
	assert.Contains(t, msg, "validator: max_spread_percent")
	assert.Contains(t, msg, `risk: unknown timezone "Mars/Olympus"`)
	assert.Contains(t, msg, "risk: backend redis requires redis.enabled")
}

func TestValidate_ReferenceCurrencyMustBeInRates(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.ReferenceCurrency = "eur"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fx_rates must contain the reference currency EUR")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.TelegramToken = "tg"
	cfg.Redis.Password = ""
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)

	out.Engine.FXRates["RUB"] = 0.01
	out.Scanner.Symbols[0] = "CHANGED"
	_, leaked := cfg.Engine.FXRates["RUB"]
	assert.False(t, leaked)
	assert.Equal(t, "BTC", cfg.Scanner.Symbols[0])
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := Defaults()
	assert.Equal(t, def.Scanner.Symbols, cfg.Scanner.Symbols)
	assert.Equal(t, def.Scanner.Interval, cfg.Scanner.Interval)
	assert.Equal(t, def.Engine.FXRates, cfg.Engine.FXRates)
	assert.Equal(t, def.Risk, cfg.Risk)
	assert.Equal(t, def.Redis, cfg.Redis)
}

func TestValidate_RejectsNonFiniteValidatorThresholds(t *testing.T) {
	cases := map[string]func(*Config){
		"max spread nan":   func(c *Config) { c.Validator.MaxSpreadPercent = math.NaN() },
		"max spread inf":   func(c *Config) { c.Validator.MaxSpreadPercent = math.Inf(1) },
		"min volume nan":   func(c *Config) { c.Validator.MinVolume = math.NaN() },
		"source floor nan": func(c *Config) { c.Validator.MinVolumeBySource = map[string]float64{"mexc": math.NaN()} },
		"quote volume nan": func(c *Config) { c.Scanner.MinQuoteVolume = math.NaN() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_ServerModeIsCaseInsensitive(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "Server"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: port must be 1-65535")
}
