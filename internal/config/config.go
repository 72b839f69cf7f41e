// Package config defines the top-level configuration for the arbitrage scanner
// and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata" // risk.timezone must resolve on hosts without a zoneinfo database
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Scanner   ScannerConfig   `toml:"scanner"`
	Venues    VenuesConfig    `toml:"venues"`
	Engine    EngineConfig    `toml:"engine"`
	Validator ValidatorConfig `toml:"validator"`
	Risk      RiskConfig      `toml:"risk"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ScannerConfig controls which venues and symbols are scanned and how often.
type ScannerConfig struct {
	Symbols            []string `toml:"symbols"`
	UseCoinCapUniverse bool     `toml:"use_coincap_universe"`
	CoinCapLimit       int      `toml:"coincap_limit"`
	UniverseTTL        duration `toml:"universe_ttl"`

	CEXExchanges   []string `toml:"cex_exchanges"`
	QuoteAsset     string   `toml:"quote_asset"`
	MinQuoteVolume float64  `toml:"min_quote_volume"`

	EnableDEX          bool     `toml:"enable_dex"`
	DEXQuoteAssets     []string `toml:"dex_quote_assets"`
	DEXMinLiquidityUSD float64  `toml:"dex_min_liquidity_usd"`

	EnableP2P   bool     `toml:"enable_p2p"`
	P2PSymbols  []string `toml:"p2p_symbols"`
	P2PFiat     string   `toml:"p2p_fiat"`
	P2PAmount   float64  `toml:"p2p_amount"`
	P2PPageSize int      `toml:"p2p_page_size"`

	AllowCrossCurrency bool     `toml:"allow_cross_currency"`
	Interval           duration `toml:"interval"`
	RequestTimeout     duration `toml:"request_timeout"`
	// VenueRequestsPerSecond caps outbound calls per venue. Enforced through
	// Redis when it is enabled; zero disables the limit.
	VenueRequestsPerSecond int    `toml:"venue_requests_per_second"`
	PrintTop               int    `toml:"print_top"`
	Output                 string `toml:"output"`
}

// VenuesConfig holds the base URLs of the public market-data APIs.
type VenuesConfig struct {
	MEXCURL        string `toml:"mexc_url"`
	BybitURL       string `toml:"bybit_url"`
	BitgetURL      string `toml:"bitget_url"`
	DexScreenerURL string `toml:"dexscreener_url"`
	BybitP2PURL    string `toml:"bybit_p2p_url"`
	CoinCapURL     string `toml:"coincap_url"`
}

// EngineConfig holds the fee model and the currency table used for matching.
type EngineConfig struct {
	TakerFeePercent   float64            `toml:"taker_fee_percent"`
	SlippagePercent   float64            `toml:"slippage_percent"`
	MinProfitPercent  float64            `toml:"min_profit_percent"`
	ReferenceCurrency string             `toml:"reference_currency"`
	FXRates           map[string]float64 `toml:"fx_rates"`
}

// ValidatorConfig holds the pre-trade sanity checks.
type ValidatorConfig struct {
	MinVolume         float64            `toml:"min_volume"`
	MinVolumeBySource map[string]float64 `toml:"min_volume_by_source"`
	MaxSpreadPercent  float64            `toml:"max_spread_percent"`
	BlockedSources    []string           `toml:"blocked_sources"`
}

// RiskConfig holds the signal throttle and where its state lives.
type RiskConfig struct {
	MaxSignalsPerCycle int     `toml:"max_signals_per_cycle"`
	MaxDailyLoss       float64 `toml:"max_daily_loss"`
	Timezone           string  `toml:"timezone"`
	// Backend selects the state store: "file", "redis" or "postgres".
	Backend   string   `toml:"backend"`
	StatePath string   `toml:"state_path"`
	StateKey  string   `toml:"state_key"`
	LockTTL   duration `toml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	QuoteTTL   duration `toml:"quote_ttl"`
	Channel    string   `toml:"channel"`
	Stream     string   `toml:"stream"`
	StreamLen  int64    `toml:"stream_len"`
}

// S3Config holds S3-compatible object storage parameters used to archive
// reports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// KafkaConfig holds the signal stream producer parameters.
type KafkaConfig struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	ClientID string   `toml:"client_id"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating endpoints. Empty disables the check.
	APIKey string `toml:"api_key"`
	// RequestsPerMinute limits API calls per client IP through Redis.
	// Zero disables the limit.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Scanner: ScannerConfig{
			Symbols:                []string{"BTC", "ETH", "SOL", "XRP", "TON", "DOGE"},
			UseCoinCapUniverse:     true,
			CoinCapLimit:           100,
			UniverseTTL:            duration{30 * time.Minute},
			CEXExchanges:           []string{"mexc", "bybit", "bitget"},
			QuoteAsset:             "USDT",
			MinQuoteVolume:         50_000,
			EnableDEX:              true,
			DEXQuoteAssets:         []string{"USDT", "USDC"},
			DEXMinLiquidityUSD:     10_000,
			EnableP2P:              false,
			P2PSymbols:             []string{"USDT", "BTC", "ETH"},
			P2PFiat:                "RUB",
			P2PAmount:              30_000,
			P2PPageSize:            20,
			AllowCrossCurrency:     false,
			Interval:               duration{2 * time.Minute},
			RequestTimeout:         duration{15 * time.Second},
			VenueRequestsPerSecond: 10,
			PrintTop:               20,
			Output:                 "data/trades/opportunities_latest.json",
		},
		Venues: VenuesConfig{
			MEXCURL:        "https://api.mexc.com",
			BybitURL:       "https://api.bybit.com",
			BitgetURL:      "https://api.bitget.com",
			DexScreenerURL: "https://api.dexscreener.com",
			BybitP2PURL:    "https://api2.bybit.com",
			CoinCapURL:     "https://api.coincap.io",
		},
		Engine: EngineConfig{
			TakerFeePercent:   0.1,
			SlippagePercent:   0.2,
			MinProfitPercent:  0.5,
			ReferenceCurrency: "USDT",
			FXRates: map[string]float64{
				"USDT": 1,
				"USD":  1,
			},
		},
		Validator: ValidatorConfig{
			MinVolume:         1000,
			MinVolumeBySource: map[string]float64{},
			MaxSpreadPercent:  20,
		},
		Risk: RiskConfig{
			MaxSignalsPerCycle: 10,
			MaxDailyLoss:       100,
			Timezone:           "UTC",
			Backend:            "file",
			StatePath:          "data/risk_state.json",
			StateKey:           "arbscan:risk:state",
			LockTTL:            duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			QuoteTTL:   duration{10 * time.Minute},
			Channel:    "arbscan:signals",
			Stream:     "arbscan:signals:stream",
			StreamLen:  10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscan-reports",
			ForcePathStyle: true,
			Prefix:         "reports",
		},
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "arbscan.signals",
			ClientID: "arbscanner",
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"signal_accepted", "cycle_failed"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"once":   true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRiskBackends = map[string]bool{
	"file":     true,
	"redis":    true,
	"postgres": true,
}

var knownExchanges = map[string]bool{
	"mexc":   true,
	"bybit":  true,
	"bitget": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, once, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Scanner
	if len(c.Scanner.Symbols) == 0 && !c.Scanner.UseCoinCapUniverse {
		errs = append(errs, "scanner: symbols must not be empty unless use_coincap_universe is set")
	}
	for _, ex := range c.Scanner.CEXExchanges {
		if !knownExchanges[strings.ToLower(ex)] {
			errs = append(errs, fmt.Sprintf("scanner: unsupported cex exchange %q (valid: mexc, bybit, bitget)", ex))
		}
	}
	if c.Scanner.QuoteAsset == "" {
		errs = append(errs, "scanner: quote_asset must not be empty")
	}
	if c.Scanner.MinQuoteVolume < 0 || !finite(c.Scanner.MinQuoteVolume) {
		errs = append(errs, "scanner: min_quote_volume must be >= 0")
	}
	if c.Scanner.UseCoinCapUniverse && c.Scanner.CoinCapLimit < 1 {
		errs = append(errs, "scanner: coincap_limit must be >= 1")
	}
	if c.Scanner.EnableP2P {
		if c.Scanner.P2PFiat == "" {
			errs = append(errs, "scanner: p2p_fiat must not be empty when enable_p2p is set")
		}
		if c.Scanner.P2PPageSize < 1 {
			errs = append(errs, "scanner: p2p_page_size must be >= 1")
		}
	}
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if c.Scanner.RequestTimeout.Duration <= 0 {
		errs = append(errs, "scanner: request_timeout must be > 0")
	}
	if c.Scanner.VenueRequestsPerSecond < 0 {
		errs = append(errs, "scanner: venue_requests_per_second must be >= 0")
	}
	if c.Scanner.PrintTop < 0 {
		errs = append(errs, "scanner: print_top must be >= 0")
	}
	if c.Scanner.Output == "" {
		errs = append(errs, "scanner: output must not be empty")
	}

	// Engine
	if c.Engine.TakerFeePercent < 0 || !finite(c.Engine.TakerFeePercent) {
		errs = append(errs, "engine: taker_fee_percent must be a finite number >= 0")
	}
	if c.Engine.SlippagePercent < 0 || !finite(c.Engine.SlippagePercent) {
		errs = append(errs, "engine: slippage_percent must be a finite number >= 0")
	}
	if !finite(c.Engine.MinProfitPercent) {
		errs = append(errs, "engine: min_profit_percent must be a finite number")
	}
	ref := strings.ToUpper(strings.TrimSpace(c.Engine.ReferenceCurrency))
	if ref == "" {
		errs = append(errs, "engine: reference_currency must not be empty")
	}
	refRate, hasRef := 0.0, false
	for cur, rate := range c.Engine.FXRates {
		if rate <= 0 || !finite(rate) {
			errs = append(errs, fmt.Sprintf("engine: fx_rates[%s] must be > 0, got %v", cur, rate))
		}
		if strings.EqualFold(strings.TrimSpace(cur), ref) {
			refRate, hasRef = rate, true
		}
	}
	if ref != "" {
		if !hasRef {
			errs = append(errs, fmt.Sprintf("engine: fx_rates must contain the reference currency %s", ref))
		} else if refRate != 1 {
			errs = append(errs, fmt.Sprintf("engine: fx_rates[%s] must be 1, got %v", ref, refRate))
		}
	}

	// Validator
	if c.Validator.MinVolume < 0 || !finite(c.Validator.MinVolume) {
		errs = append(errs, "validator: min_volume must be a finite number >= 0")
	}
	for src, v := range c.Validator.MinVolumeBySource {
		if v < 0 || !finite(v) {
			errs = append(errs, fmt.Sprintf("validator: min_volume_by_source[%s] must be a finite number >= 0", src))
		}
	}
	if c.Validator.MaxSpreadPercent <= 0 || !finite(c.Validator.MaxSpreadPercent) {
		errs = append(errs, "validator: max_spread_percent must be a finite number > 0")
	}

	// Risk
	if c.Risk.MaxSignalsPerCycle < 0 {
		errs = append(errs, "risk: max_signals_per_cycle must be >= 0")
	}
	if c.Risk.MaxDailyLoss < 0 || !finite(c.Risk.MaxDailyLoss) {
		errs = append(errs, "risk: max_daily_loss must be a finite number >= 0")
	}
	if _, err := time.LoadLocation(c.Risk.Timezone); err != nil || c.Risk.Timezone == "" {
		errs = append(errs, fmt.Sprintf("risk: unknown timezone %q", c.Risk.Timezone))
	}
	backend := strings.ToLower(c.Risk.Backend)
	if !validRiskBackends[backend] {
		errs = append(errs, fmt.Sprintf("risk: unknown backend %q (valid: file, redis, postgres)", c.Risk.Backend))
	}
	if backend == "file" && c.Risk.StatePath == "" {
		errs = append(errs, "risk: state_path must not be empty for the file backend")
	}
	if backend == "redis" {
		if !c.Redis.Enabled {
			errs = append(errs, "risk: backend redis requires redis.enabled")
		}
		if c.Risk.StateKey == "" {
			errs = append(errs, "risk: state_key must not be empty for the redis backend")
		}
		if c.Risk.LockTTL.Duration <= 0 {
			errs = append(errs, "risk: lock_ttl must be > 0 for the redis backend")
		}
	}
	if backend == "postgres" {
		if !c.Postgres.Enabled {
			errs = append(errs, "risk: backend postgres requires postgres.enabled")
		}
		if c.Risk.StateKey == "" {
			errs = append(errs, "risk: state_key must not be empty for the postgres backend")
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
		if c.Redis.Channel == "" {
			errs = append(errs, "redis: channel must not be empty")
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
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// Server
	mode := strings.ToLower(c.Mode)
	needsServer := mode == "server" || mode == "full" || c.Server.Enabled
	if needsServer {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerMinute < 0 {
			errs = append(errs, "server: requests_per_minute must be >= 0")
		}
		if c.Server.RequestsPerMinute > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: requests_per_minute requires redis.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
