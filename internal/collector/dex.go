package collector

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Synthetic half-spread applied around a DEX pool's fair price.
const (
	dexBidFactor = 0.998
	dexAskFactor = 1.002
)

// DEXConfig filters DexScreener pairs.
type DEXConfig struct {
	QuoteAssets     []string
	MinLiquidityUSD float64
}

// DexScreenerCollector picks the deepest pool per asset from DexScreener's
// search endpoint. One request is issued per symbol.
type DexScreenerCollector struct {
	req         requester
	quoteAssets map[string]bool
	minLiq      float64
	now         func() time.Time
}

// NewDexScreenerCollector creates a DEX collector against baseURL.
func NewDexScreenerCollector(baseURL string, cfg DEXConfig, opts HTTPOptions) *DexScreenerCollector {
	assets := cfg.QuoteAssets
	if len(assets) == 0 {
		assets = []string{"USDT", "USDC"}
	}
	return &DexScreenerCollector{
		req:         newRequester("dexscreener", baseURL, opts),
		quoteAssets: upperSet(assets),
		minLiq:      cfg.MinLiquidityUSD,
		now:         time.Now,
	}
}

// Name returns the collector id.
func (d *DexScreenerCollector) Name() string { return "dexscreener" }

type dexPair struct {
	DexID      string `json:"dexId"`
	PriceUSD   string `json:"priceUsd"`
	QuoteToken struct {
		Symbol string `json:"symbol"`
	} `json:"quoteToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// Collect returns at most one quote per symbol. A symbol whose search fails
// is skipped; the first such error is returned only when nothing was found.
func (d *DexScreenerCollector) Collect(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	var (
		quotes   []domain.Quote
		firstErr error
	)
	for _, s := range symbols {
		base := strings.ToUpper(s)
		q, ok, err := d.collectOne(ctx, base)
		if err != nil {
			if ctx.Err() != nil {
				return quotes, ctx.Err()
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return quotes, nil
}

func (d *DexScreenerCollector) collectOne(ctx context.Context, base string) (domain.Quote, bool, error) {
	var resp struct {
		Pairs []dexPair `json:"pairs"`
	}
	if err := d.req.getJSON(ctx, "/latest/dex/search?q="+url.QueryEscape(base), &resp); err != nil {
		return domain.Quote{}, false, err
	}

	var (
		best      *dexPair
		bestPrice float64
	)
	for i := range resp.Pairs {
		p := &resp.Pairs[i]
		if !d.quoteAssets[strings.ToUpper(p.QuoteToken.Symbol)] {
			continue
		}
		price := parseFloat(p.PriceUSD)
		if price <= 0 || p.Liquidity.USD < d.minLiq {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best, bestPrice = p, price
		}
	}
	if best == nil {
		return domain.Quote{}, false, nil
	}

	dexID := best.DexID
	if dexID == "" {
		dexID = "dex"
	}
	return domain.Quote{
		Symbol:     base,
		Source:     "dex:" + dexID,
		MarketType: domain.MarketTypeDEX,
		Bid:        bestPrice * dexBidFactor,
		Ask:        bestPrice * dexAskFactor,
		Volume:     best.Liquidity.USD,
		Currency:   "USD",
		ObservedAt: d.now().UTC(),
	}, true, nil
}
