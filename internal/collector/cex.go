package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Known centralized venue identifiers.
const (
	VenueMEXC   = "mexc"
	VenueBybit  = "bybit"
	VenueBitget = "bitget"
)

// CEXConfig filters the tickers a centralized venue contributes.
type CEXConfig struct {
	QuoteAsset     string
	MinQuoteVolume float64
}

// ticker is one venue market normalized to the fields the scanner needs.
type ticker struct {
	Market      string
	Bid         float64
	Ask         float64
	QuoteVolume float64
}

type tickerFetcher func(ctx context.Context, r requester) ([]ticker, error)

// CEXCollector pulls every spot ticker from a venue in one request and keeps
// the markets quoted in the configured asset.
type CEXCollector struct {
	name  string
	req   requester
	fetch tickerFetcher
	cfg   CEXConfig
	now   func() time.Time
}

// NewCEXCollector returns the collector for a known venue id.
func NewCEXCollector(venue, baseURL string, cfg CEXConfig, opts HTTPOptions) (*CEXCollector, error) {
	var fetch tickerFetcher
	switch strings.ToLower(venue) {
	case VenueMEXC:
		fetch = fetchMEXC
	case VenueBybit:
		fetch = fetchBybit
	case VenueBitget:
		fetch = fetchBitget
	default:
		return nil, fmt.Errorf("collector: unsupported cex %q", venue)
	}
	name := strings.ToLower(venue)
	cfg.QuoteAsset = strings.ToUpper(cfg.QuoteAsset)
	return &CEXCollector{
		name:  name,
		req:   newRequester(name, baseURL, opts),
		fetch: fetch,
		cfg:   cfg,
		now:   time.Now,
	}, nil
}

// Name returns the venue id.
func (c *CEXCollector) Name() string { return c.name }

// Collect returns one quote per requested symbol listed on the venue.
func (c *CEXCollector) Collect(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	tickers, err := c.fetch(ctx, c.req)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]string, len(symbols))
	for _, s := range symbols {
		base := strings.ToUpper(s)
		wanted[base+c.cfg.QuoteAsset] = base
	}

	now := c.now().UTC()
	var quotes []domain.Quote
	for _, t := range tickers {
		base, ok := wanted[strings.ToUpper(t.Market)]
		if !ok {
			continue
		}
		if t.Bid <= 0 || t.Ask <= 0 {
			continue
		}
		if t.QuoteVolume < c.cfg.MinQuoteVolume {
			continue
		}
		quotes = append(quotes, domain.Quote{
			Symbol:     base,
			Source:     c.name,
			MarketType: domain.MarketTypeCEX,
			Bid:        t.Bid,
			Ask:        t.Ask,
			Volume:     t.QuoteVolume,
			Currency:   c.cfg.QuoteAsset,
			ObservedAt: now,
		})
		// First listing of a market wins.
		delete(wanted, strings.ToUpper(t.Market))
	}
	return quotes, nil
}

func fetchMEXC(ctx context.Context, r requester) ([]ticker, error) {
	var resp []struct {
		Symbol      string `json:"symbol"`
		BidPrice    string `json:"bidPrice"`
		AskPrice    string `json:"askPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := r.getJSON(ctx, "/api/v3/ticker/24hr", &resp); err != nil {
		return nil, err
	}
	out := make([]ticker, 0, len(resp))
	for _, t := range resp {
		out = append(out, ticker{
			Market:      t.Symbol,
			Bid:         parseFloat(t.BidPrice),
			Ask:         parseFloat(t.AskPrice),
			QuoteVolume: parseFloat(t.QuoteVolume),
		})
	}
	return out, nil
}

func fetchBybit(ctx context.Context, r requester) ([]ticker, error) {
	var resp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Symbol      string `json:"symbol"`
				Bid1Price   string `json:"bid1Price"`
				Ask1Price   string `json:"ask1Price"`
				Turnover24h string `json:"turnover24h"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := r.getJSON(ctx, "/v5/market/tickers?category=spot", &resp); err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("%s: api error %d: %s", r.venue, resp.RetCode, resp.RetMsg)
	}
	out := make([]ticker, 0, len(resp.Result.List))
	for _, t := range resp.Result.List {
		out = append(out, ticker{
			Market:      t.Symbol,
			Bid:         parseFloat(t.Bid1Price),
			Ask:         parseFloat(t.Ask1Price),
			QuoteVolume: parseFloat(t.Turnover24h),
		})
	}
	return out, nil
}

func fetchBitget(ctx context.Context, r requester) ([]ticker, error) {
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Symbol      string `json:"symbol"`
			BidPr       string `json:"bidPr"`
			AskPr       string `json:"askPr"`
			QuoteVolume string `json:"quoteVolume"`
		} `json:"data"`
	}
	if err := r.getJSON(ctx, "/api/v2/spot/market/tickers", &resp); err != nil {
		return nil, err
	}
	if resp.Code != "" && resp.Code != "00000" {
		return nil, fmt.Errorf("%s: api error %s: %s", r.venue, resp.Code, resp.Msg)
	}
	out := make([]ticker, 0, len(resp.Data))
	for _, t := range resp.Data {
		out = append(out, ticker{
			Market:      t.Symbol,
			Bid:         parseFloat(t.BidPr),
			Ask:         parseFloat(t.AskPr),
			QuoteVolume: parseFloat(t.QuoteVolume),
		})
	}
	return out, nil
}
