package domain

import (
	"strings"
	"time"
)

// MarketType classifies the kind of venue a quote was observed on.
type MarketType string

const (
	MarketTypeCEX MarketType = "cex"
	MarketTypeDEX MarketType = "dex"
	MarketTypeP2P MarketType = "p2p"
)

// Valid reports whether t is one of the known market types.
func (t MarketType) Valid() bool {
	switch t {
	case MarketTypeCEX, MarketTypeDEX, MarketTypeP2P:
		return true
	default:
		return false
	}
}

// Quote is a single venue's top-of-book price for one asset. A non-positive
// Bid or Ask means the side is absent.
type Quote struct {
	Symbol     string     `json:"symbol"`
	Source     string     `json:"source"`
	MarketType MarketType `json:"market_type"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	Volume     float64    `json:"volume_quote"`
	Currency   string     `json:"currency"`
	ObservedAt time.Time  `json:"observed_at"`
}

// CurrencyCode returns the quote's settlement currency in canonical upper case.
func (q Quote) CurrencyCode() string {
	return strings.ToUpper(strings.TrimSpace(q.Currency))
}

// QuoteKey identifies the latest quote of one asset on one venue.
type QuoteKey struct {
	Symbol string
	Source string
}

// Key returns the index key of q.
func (q Quote) Key() QuoteKey {
	return QuoteKey{Symbol: q.Symbol, Source: q.Source}
}

// QuoteIndex maps (asset, source) to the most recent quote for that venue.
type QuoteIndex map[QuoteKey]Quote

// IndexQuotes builds a QuoteIndex keeping the newest quote per key. When two
// quotes share a timestamp the later one in the input wins.
func IndexQuotes(quotes []Quote) QuoteIndex {
	idx := make(QuoteIndex, len(quotes))
	for _, q := range quotes {
		prev, ok := idx[q.Key()]
		if ok && prev.ObservedAt.After(q.ObservedAt) {
			continue
		}
		idx[q.Key()] = q
	}
	return idx
}

// Lookup returns the quote for symbol on source.
func (idx QuoteIndex) Lookup(symbol, source string) (Quote, bool) {
	q, ok := idx[QuoteKey{Symbol: symbol, Source: source}]
	return q, ok
}
