package collector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// P2PSource is the source id of Bybit P2P quotes.
const P2PSource = "bybit_p2p"

// Bybit OTC side codes: "1" lists sellers (what we pay), "0" lists buyers.
const (
	p2pSideAsk = "1"
	p2pSideBid = "0"
)

// P2PConfig selects the fiat market and ticket size to query.
type P2PConfig struct {
	Fiat     string
	Amount   float64
	PageSize int
}

// BybitP2PCollector derives a bid/ask per token from the best advertised
// peer-to-peer prices. It ignores the scan symbols and queries its own token
// list instead.
type BybitP2PCollector struct {
	req    requester
	tokens []string
	cfg    P2PConfig
	now    func() time.Time
}

// NewBybitP2PCollector creates a P2P collector for tokens against baseURL.
func NewBybitP2PCollector(baseURL string, tokens []string, cfg P2PConfig, opts HTTPOptions) *BybitP2PCollector {
	if cfg.Fiat == "" {
		cfg.Fiat = "RUB"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	cfg.Fiat = strings.ToUpper(cfg.Fiat)
	up := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			up = append(up, t)
		}
	}
	return &BybitP2PCollector{
		req:    newRequester(P2PSource, baseURL, opts),
		tokens: up,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Name returns the source id.
func (p *BybitP2PCollector) Name() string { return P2PSource }

type p2pRequest struct {
	TokenID    string `json:"tokenId"`
	CurrencyID string `json:"currencyId"`
	Side       string `json:"side"`
	Size       string `json:"size"`
	Page       string `json:"page"`
	Amount     string `json:"amount"`
	AuthMaker  bool   `json:"authMaker"`
	CanTrade   bool   `json:"canTrade"`
}

type p2pAd struct {
	Price        float64
	LastQuantity float64
}

// Collect returns one quote per configured token with ads on both sides.
func (p *BybitP2PCollector) Collect(ctx context.Context, _ []string) ([]domain.Quote, error) {
	var (
		quotes   []domain.Quote
		firstErr error
	)
	for _, token := range p.tokens {
		asks, err := p.side(ctx, token, p2pSideAsk)
		if err == nil && len(asks) > 0 {
			var bids []p2pAd
			bids, err = p.side(ctx, token, p2pSideBid)
			if err == nil && len(bids) > 0 {
				quotes = append(quotes, p.quote(token, asks, bids))
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return quotes, ctx.Err()
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(quotes) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return quotes, nil
}

// quote builds the best ask (cheapest seller) and best bid (richest buyer).
// Volume is the fiat value of every listed ad on the thinner side.
func (p *BybitP2PCollector) quote(token string, asks, bids []p2pAd) domain.Quote {
	ask, askDepth := asks[0].Price, 0.0
	for _, a := range asks {
		if a.Price < ask {
			ask = a.Price
		}
		askDepth += a.Price * a.LastQuantity
	}
	bid, bidDepth := bids[0].Price, 0.0
	for _, b := range bids {
		if b.Price > bid {
			bid = b.Price
		}
		bidDepth += b.Price * b.LastQuantity
	}
	return domain.Quote{
		Symbol:     token,
		Source:     P2PSource,
		MarketType: domain.MarketTypeP2P,
		Bid:        bid,
		Ask:        ask,
		Volume:     min(askDepth, bidDepth),
		Currency:   p.cfg.Fiat,
		ObservedAt: p.now().UTC(),
	}
}

func (p *BybitP2PCollector) side(ctx context.Context, token, side string) ([]p2pAd, error) {
	body := p2pRequest{
		TokenID:    token,
		CurrencyID: p.cfg.Fiat,
		Side:       side,
		Size:       strconv.Itoa(p.cfg.PageSize),
		Page:       "1",
		Amount:     strconv.FormatFloat(p.cfg.Amount, 'f', -1, 64),
	}
	var resp struct {
		Result struct {
			Items []struct {
				Price        string `json:"price"`
				LastQuantity string `json:"lastQuantity"`
			} `json:"items"`
		} `json:"result"`
	}
	if err := p.req.postJSON(ctx, "/fiat/otc/item/online", body, &resp); err != nil {
		return nil, err
	}
	ads := make([]p2pAd, 0, len(resp.Result.Items))
	for _, it := range resp.Result.Items {
		price := parseFloat(it.Price)
		if price <= 0 {
			continue
		}
		ads = append(ads, p2pAd{Price: price, LastQuantity: parseFloat(it.LastQuantity)})
	}
	return ads, nil
}
