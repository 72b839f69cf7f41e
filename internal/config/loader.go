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
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Scanner ──
	setStringSlice(&cfg.Scanner.Symbols, "ARBSCAN_SCANNER_SYMBOLS")
	setBool(&cfg.Scanner.UseCoinCapUniverse, "ARBSCAN_SCANNER_USE_COINCAP_UNIVERSE")
	setInt(&cfg.Scanner.CoinCapLimit, "ARBSCAN_SCANNER_COINCAP_LIMIT")
	setStringSlice(&cfg.Scanner.CEXExchanges, "ARBSCAN_SCANNER_CEX_EXCHANGES")
	setStr(&cfg.Scanner.QuoteAsset, "ARBSCAN_SCANNER_QUOTE_ASSET")
	setFloat64(&cfg.Scanner.MinQuoteVolume, "ARBSCAN_SCANNER_MIN_QUOTE_VOLUME")
	setBool(&cfg.Scanner.EnableDEX, "ARBSCAN_SCANNER_ENABLE_DEX")
	setBool(&cfg.Scanner.EnableP2P, "ARBSCAN_SCANNER_ENABLE_P2P")
	setStr(&cfg.Scanner.P2PFiat, "ARBSCAN_SCANNER_P2P_FIAT")
	setBool(&cfg.Scanner.AllowCrossCurrency, "ARBSCAN_SCANNER_ALLOW_CROSS_CURRENCY")
	setDuration(&cfg.Scanner.Interval, "ARBSCAN_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.RequestTimeout, "ARBSCAN_SCANNER_REQUEST_TIMEOUT")
	setInt(&cfg.Scanner.VenueRequestsPerSecond, "ARBSCAN_SCANNER_VENUE_REQUESTS_PER_SECOND")
	setInt(&cfg.Scanner.PrintTop, "ARBSCAN_SCANNER_PRINT_TOP")
	setStr(&cfg.Scanner.Output, "ARBSCAN_SCANNER_OUTPUT")

	// ── Engine ──
	setFloat64(&cfg.Engine.TakerFeePercent, "ARBSCAN_ENGINE_TAKER_FEE_PERCENT")
	setFloat64(&cfg.Engine.SlippagePercent, "ARBSCAN_ENGINE_SLIPPAGE_PERCENT")
	setFloat64(&cfg.Engine.MinProfitPercent, "ARBSCAN_ENGINE_MIN_PROFIT_PERCENT")
	setStr(&cfg.Engine.ReferenceCurrency, "ARBSCAN_ENGINE_REFERENCE_CURRENCY")

	// ── Validator ──
	setFloat64(&cfg.Validator.MinVolume, "ARBSCAN_VALIDATOR_MIN_VOLUME")
	setFloat64(&cfg.Validator.MaxSpreadPercent, "ARBSCAN_VALIDATOR_MAX_SPREAD_PERCENT")
	setStringSlice(&cfg.Validator.BlockedSources, "ARBSCAN_VALIDATOR_BLOCKED_SOURCES")

	// ── Risk ──
	setInt(&cfg.Risk.MaxSignalsPerCycle, "ARBSCAN_RISK_MAX_SIGNALS_PER_CYCLE")
	setFloat64(&cfg.Risk.MaxDailyLoss, "ARBSCAN_RISK_MAX_DAILY_LOSS")
	setStr(&cfg.Risk.Timezone, "ARBSCAN_RISK_TIMEZONE")
	setStr(&cfg.Risk.Backend, "ARBSCAN_RISK_BACKEND")
	setStr(&cfg.Risk.StatePath, "ARBSCAN_RISK_STATE_PATH")
	setStr(&cfg.Risk.StateKey, "ARBSCAN_RISK_STATE_KEY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBSCAN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSCAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSCAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBSCAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSCAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCAN_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "ARBSCAN_REDIS_QUOTE_TTL")
	setInt64(&cfg.Redis.StreamLen, "ARBSCAN_REDIS_STREAM_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBSCAN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBSCAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCAN_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "ARBSCAN_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "ARBSCAN_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "ARBSCAN_KAFKA_TOPIC")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBSCAN_SERVER_API_KEY")
	setInt(&cfg.Server.RequestsPerMinute, "ARBSCAN_SERVER_REQUESTS_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBSCAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCAN_MODE")
	setStr(&cfg.LogLevel, "ARBSCAN_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
