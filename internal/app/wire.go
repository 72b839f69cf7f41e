package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	s3blob "github.com/alanyoungcy/arbscanner/internal/blob/s3"
	"github.com/alanyoungcy/arbscanner/internal/cache/redis"
	"github.com/alanyoungcy/arbscanner/internal/collector"
	"github.com/alanyoungcy/arbscanner/internal/config"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
	"github.com/alanyoungcy/arbscanner/internal/notify"
	"github.com/alanyoungcy/arbscanner/internal/report"
	"github.com/alanyoungcy/arbscanner/internal/server"
	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/server/ws"
	"github.com/alanyoungcy/arbscanner/internal/service"
	"github.com/alanyoungcy/arbscanner/internal/sink/kafka"
	"github.com/alanyoungcy/arbscanner/internal/store/file"
	"github.com/alanyoungcy/arbscanner/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Infrastructure clients; nil when disabled.
	Redis    *redis.Client
	Postgres *postgres.Client
	S3       *s3blob.Client

	// Caches and buses
	SignalBus   domain.SignalBus
	APILimiter  domain.RateLimiter
	QuoteCache  domain.QuoteCache
	History     domain.SignalHistory
	AuditStore  domain.AuditStore
	RiskStore   domain.RiskStateStore
	BlobWriter  domain.BlobWriter
	SignalSinks []domain.SignalSink

	// Core
	Collectors *collector.Set
	Universe   *collector.Universe
	Engine     *arbitrage.Engine
	Validator  *service.PreTradeValidator
	Risk       *service.RiskManager
	Reports    *report.Writer
	Metrics    *metrics.Metrics
	Notifier   *notify.Notifier
	Scanner    *service.ScanService

	// Outer surface; Hub and Server are nil when the API is not served.
	Hub    *ws.Hub
	Server *server.Server
}

// servesAPI reports whether the HTTP server runs in the given mode.
func servesAPI(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "server", "full":
		return true
	case "scan":
		return cfg.Server.Enabled
	default:
		return false
	}
}

// scansInProcess reports whether the scan loop runs in this process.
func scansInProcess(mode string) bool {
	return strings.ToLower(mode) != "server"
}

// pingFunc adapts a health probe with a different method name to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete implementations from the configuration and
// returns them together with a cleanup function that releases resources in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Metrics: metrics.New()}
	pingers := map[string]handler.Pinger{}

	// --- Redis ---
	var venueLimiter domain.RateLimiter
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			ClientName: "arbscanner",
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Redis = redisClient
		pingers["redis"] = redisClient

		bus := redis.NewSignalBus(redisClient, cfg.Redis.StreamLen)
		signalLog := redis.NewSignalLog(bus, cfg.Redis.Channel, cfg.Redis.Stream, logger)
		deps.SignalBus = bus
		deps.History = signalLog
		deps.SignalSinks = append(deps.SignalSinks, signalLog)
		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)

		if cfg.Server.RequestsPerMinute > 0 {
			deps.APILimiter = redis.NewRateLimiter(redisClient, cfg.Server.RequestsPerMinute, time.Minute)
		}
		if cfg.Scanner.VenueRequestsPerSecond > 0 {
			venueLimiter = redis.NewRateLimiter(redisClient, cfg.Scanner.VenueRequestsPerSecond, time.Second)
		}
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.Postgres = pgClient
		pingers["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		opportunities := postgres.NewOpportunityStore(pool)
		deps.History = opportunities
		deps.SignalSinks = append(deps.SignalSinks, opportunities)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- S3 report archive ---
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.S3 = s3Client
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		pingers["s3"] = pingFunc(s3Client.Health)
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		sink := kafka.NewSink(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		closers = append(closers, func() { _ = sink.Close() })
		deps.SignalSinks = append(deps.SignalSinks, sink)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			notify.DefaultTelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if len(senders) > 0 {
		deps.SignalSinks = append(deps.SignalSinks, deps.Notifier)
	}

	// --- Risk state ---
	riskStore, err := newRiskStore(cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	deps.RiskStore = riskStore

	loc, err := time.LoadLocation(cfg.Risk.Timezone)
	if err != nil {
		return fail(fmt.Errorf("wire: risk timezone: %w", err))
	}
	deps.Risk = service.NewRiskManager(riskStore, service.RiskConfig{
		MaxSignalsPerCycle: cfg.Risk.MaxSignalsPerCycle,
		MaxDailyLoss:       decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		Location:           loc,
	}, logger)
	if deps.AuditStore != nil {
		deps.Risk.SetAudit(deps.AuditStore)
	}

	// --- Matching core ---
	engine, err := arbitrage.NewEngine(arbitrage.EngineConfig{
		TakerFeePercent:   cfg.Engine.TakerFeePercent,
		SlippagePercent:   cfg.Engine.SlippagePercent,
		MinProfitPercent:  cfg.Engine.MinProfitPercent,
		ReferenceCurrency: cfg.Engine.ReferenceCurrency,
		Rates:             cfg.Engine.FXRates,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Engine = engine
	deps.Validator = service.NewPreTradeValidator(service.ValidatorConfig{
		MinVolume:         cfg.Validator.MinVolume,
		MinVolumeBySource: cfg.Validator.MinVolumeBySource,
		MaxSpreadPercent:  cfg.Validator.MaxSpreadPercent,
		BlockedSources:    cfg.Validator.BlockedSources,
	})

	// --- Venue collectors ---
	opts := collector.HTTPOptions{
		Timeout: cfg.Scanner.RequestTimeout.Duration,
		Limiter: venueLimiter,
	}
	collectors, err := buildCollectors(cfg, opts)
	if err != nil {
		return fail(err)
	}
	deps.Collectors = collector.NewSet(collectors, logger)

	if cfg.Scanner.UseCoinCapUniverse {
		universe, err := collector.NewUniverse(
			cfg.Venues.CoinCapURL,
			cfg.Scanner.CoinCapLimit,
			cfg.Scanner.UniverseTTL.Duration,
			opts,
			logger,
		)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, universe.Close)
		deps.Universe = universe
	}

	deps.Reports = report.NewWriter(cfg.Scanner.Output, deps.BlobWriter, cfg.S3.Prefix, logger)

	// --- WebSocket hub ---
	if servesAPI(cfg) {
		hubCfg := ws.Config{Mode: cfg.Mode, StartedAt: time.Now().UTC()}
		if scansInProcess(cfg.Mode) {
			// Signals arrive directly from the scan service.
			deps.Hub = ws.NewHub(nil, hubCfg, logger)
			deps.SignalSinks = append(deps.SignalSinks, deps.Hub)
		} else {
			if deps.SignalBus != nil {
				hubCfg.BridgeChannel = cfg.Redis.Channel
			}
			deps.Hub = ws.NewHub(deps.SignalBus, hubCfg, logger)
		}
	}

	// --- Scan service ---
	scanDeps := service.ScanDeps{
		Source:    deps.Collectors,
		Engine:    deps.Engine,
		Validator: deps.Validator,
		Risk:      deps.Risk,
		Cache:     deps.QuoteCache,
		Sinks:     deps.SignalSinks,
		Reports:   deps.Reports,
		Audit:     deps.AuditStore,
		Alerter:   deps.Notifier,
		Metrics:   deps.Metrics,
	}
	if deps.Universe != nil {
		scanDeps.Universe = deps.Universe
	}
	deps.Scanner = service.NewScanService(scanDeps, service.ScanConfig{
		Symbols:            cfg.Scanner.Symbols,
		AllowCrossCurrency: cfg.Scanner.AllowCrossCurrency,
		PrintTop:           cfg.Scanner.PrintTop,
	}, logger)

	// --- HTTP server ---
	if servesAPI(cfg) {
		var cycles handler.CycleInfo
		if scansInProcess(cfg.Mode) {
			cycles = deps.Scanner
		}
		deps.Server = server.NewServer(server.Config{
			Port:              cfg.Server.Port,
			CORSOrigins:       cfg.Server.CORSOrigins,
			APIKey:            cfg.Server.APIKey,
			Limiter:           deps.APILimiter,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
		}, server.Handlers{
			Health:        handler.NewHealthHandler(cfg.Mode, pingers, cycles, logger),
			Opportunities: handler.NewOpportunityHandler(cfg.Scanner.Output, deps.History, logger),
			Risk:          handler.NewRiskHandler(deps.Risk, logger),
			Metrics:       deps.Metrics.Handler(),
		}, deps.Hub, logger)
	}

	return deps, cleanup, nil
}

// newRiskStore picks the risk state backend named in the configuration.
func newRiskStore(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (domain.RiskStateStore, error) {
	switch strings.ToLower(cfg.Risk.Backend) {
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("wire: risk backend redis: redis is not enabled")
		}
		return redis.NewRiskStateStore(
			deps.Redis,
			redis.NewLockManager(deps.Redis),
			cfg.Risk.StateKey,
			cfg.Risk.LockTTL.Duration,
			logger,
		), nil
	case "postgres":
		if deps.Postgres == nil {
			return nil, fmt.Errorf("wire: risk backend postgres: postgres is not enabled")
		}
		return postgres.NewRiskStateStore(deps.Postgres.Pool(), cfg.Risk.StateKey, logger), nil
	default:
		return file.NewRiskStateStore(cfg.Risk.StatePath, logger), nil
	}
}

// buildCollectors creates one collector per configured venue.
func buildCollectors(cfg *config.Config, opts collector.HTTPOptions) ([]collector.Collector, error) {
	var out []collector.Collector

	cexURLs := map[string]string{
		collector.VenueMEXC:   cfg.Venues.MEXCURL,
		collector.VenueBybit:  cfg.Venues.BybitURL,
		collector.VenueBitget: cfg.Venues.BitgetURL,
	}
	for _, name := range cfg.Scanner.CEXExchanges {
		venue := strings.ToLower(strings.TrimSpace(name))
		c, err := collector.NewCEXCollector(venue, cexURLs[venue], collector.CEXConfig{
			QuoteAsset:     cfg.Scanner.QuoteAsset,
			MinQuoteVolume: cfg.Scanner.MinQuoteVolume,
		}, opts)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
		out = append(out, c)
	}

	if cfg.Scanner.EnableDEX {
		out = append(out, collector.NewDexScreenerCollector(cfg.Venues.DexScreenerURL, collector.DEXConfig{
			QuoteAssets:     cfg.Scanner.DEXQuoteAssets,
			MinLiquidityUSD: cfg.Scanner.DEXMinLiquidityUSD,
		}, opts))
	}

	if cfg.Scanner.EnableP2P {
		out = append(out, collector.NewBybitP2PCollector(cfg.Venues.BybitP2PURL, cfg.Scanner.P2PSymbols, collector.P2PConfig{
			Fiat:     cfg.Scanner.P2PFiat,
			Amount:   cfg.Scanner.P2PAmount,
			PageSize: cfg.Scanner.P2PPageSize,
		}, opts))
	}

	return out, nil
}
