// Package arbitrage matches quotes for the same asset across venues and ranks
// the fee-adjusted, currency-normalized opportunities they imply.
package arbitrage

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// EngineConfig holds the fee model and currency table used by the engine.
// Rates convert one unit of a currency into the reference currency.
type EngineConfig struct {
	TakerFeePercent   float64
	SlippagePercent   float64
	MinProfitPercent  float64
	ReferenceCurrency string
	Rates             map[string]float64
}

// FindStats counts the pairs the engine looked at and why it dropped them.
type FindStats struct {
	Groups           int
	PairsEvaluated   int
	MissingPrice     int
	CurrencyMismatch int
	MissingRate      int
	BelowMinProfit   int
	Emitted          int
}

// Engine finds cross-venue arbitrage opportunities. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	cfg    EngineConfig
	ref    string
	rates  map[string]float64
	logger *slog.Logger
}

// NewEngine validates cfg and returns an Engine. The reference currency must
// be present in Rates with a self-rate of exactly 1.
func NewEngine(cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	var errs []string

	ref := strings.ToUpper(strings.TrimSpace(cfg.ReferenceCurrency))
	if ref == "" {
		errs = append(errs, "reference currency must not be empty")
	}
	for name, v := range map[string]float64{
		"taker fee percent":  cfg.TakerFeePercent,
		"slippage percent":   cfg.SlippagePercent,
		"min profit percent": cfg.MinProfitPercent,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, name+" must be a finite number")
		}
	}
	if cfg.TakerFeePercent < 0 {
		errs = append(errs, "taker fee percent must be >= 0")
	}
	if cfg.SlippagePercent < 0 {
		errs = append(errs, "slippage percent must be >= 0")
	}

	rates := make(map[string]float64, len(cfg.Rates))
	for cur, rate := range cfg.Rates {
		code := strings.ToUpper(strings.TrimSpace(cur))
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
			errs = append(errs, fmt.Sprintf("rate for %q must be a positive number, got %v", cur, rate))
			continue
		}
		rates[code] = rate
	}
	if ref != "" {
		self, ok := rates[ref]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("rate table is missing the reference currency %q", ref))
		case self != 1:
			errs = append(errs, fmt.Sprintf("reference currency %q must have a self-rate of 1, got %v", ref, self))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("arbitrage: %w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return &Engine{
		cfg:    cfg,
		ref:    ref,
		rates:  rates,
		logger: logger.With(slog.String("component", "arb_engine")),
	}, nil
}

// ReferenceCurrency returns the currency cross-currency results are quoted in.
func (e *Engine) ReferenceCurrency() string { return e.ref }

// Find returns every opportunity whose net percent clears the configured
// minimum, sorted by net percent descending. Equal net percents keep the
// order in which their pairs were discovered.
func (e *Engine) Find(quotes []domain.Quote, crossCurrency bool) []domain.Opportunity {
	opps, _ := e.FindWithStats(quotes, crossCurrency)
	return opps
}

// FindWithStats is Find plus counters describing which pairs were dropped.
func (e *Engine) FindWithStats(quotes []domain.Quote, crossCurrency bool) ([]domain.Opportunity, FindStats) {
	var (
		stats FindStats
		opps  []domain.Opportunity
	)
	groups := Group(quotes, crossCurrency)
	stats.Groups = len(groups)

	for _, g := range groups {
		for _, buy := range g.Quotes {
			for _, sell := range g.Quotes {
				if buy.Source == sell.Source {
					continue
				}
				stats.PairsEvaluated++
				if opp, ok := e.match(buy, sell, crossCurrency, &stats); ok {
					opps = append(opps, opp)
				}
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].NetPercent > opps[j].NetPercent
	})
	stats.Emitted = len(opps)

	e.logger.Debug("arb engine pass complete",
		slog.Int("quotes", len(quotes)),
		slog.Int("groups", stats.Groups),
		slog.Int("pairs", stats.PairsEvaluated),
		slog.Int("missing_rate", stats.MissingRate),
		slog.Int("emitted", stats.Emitted),
	)
	return opps, stats
}

// match prices a single ordered pair. The bool is false when the pair is
// filtered out.
func (e *Engine) match(buy, sell domain.Quote, crossCurrency bool, stats *FindStats) (domain.Opportunity, bool) {
	if buy.Ask <= 0 || sell.Bid <= 0 {
		stats.MissingPrice++
		return domain.Opportunity{}, false
	}

	buyPrice, sellPrice := buy.Ask, sell.Bid
	currency := buy.CurrencyCode()

	if buy.CurrencyCode() != sell.CurrencyCode() {
		if !crossCurrency {
			stats.CurrencyMismatch++
			return domain.Opportunity{}, false
		}
		buyRate, okBuy := e.rates[buy.CurrencyCode()]
		sellRate, okSell := e.rates[sell.CurrencyCode()]
		if !okBuy || !okSell {
			stats.MissingRate++
			return domain.Opportunity{}, false
		}
		buyPrice *= buyRate
		sellPrice *= sellRate
		currency = e.ref
	}

	gross := (sellPrice - buyPrice) / buyPrice * 100
	net := gross - 2*e.cfg.TakerFeePercent - e.cfg.SlippagePercent
	if net < e.cfg.MinProfitPercent {
		stats.BelowMinProfit++
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Symbol:         buy.Symbol,
		BuySource:      buy.Source,
		SellSource:     sell.Source,
		BuyPrice:       buyPrice,
		SellPrice:      sellPrice,
		GrossPercent:   gross,
		NetPercent:     net,
		SpreadValue:    sellPrice - buyPrice,
		Currency:       currency,
		MarketTypeBuy:  buy.MarketType,
		MarketTypeSell: sell.MarketType,
	}, true
}
