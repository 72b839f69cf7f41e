package arbitrage

import "github.com/alanyoungcy/arbscanner/internal/domain"

// GroupKey identifies a matching pool. Currency is empty when quotes are
// pooled by asset alone for cross-currency matching.
type GroupKey struct {
	Symbol   string
	Currency string
}

// QuoteGroup is an ordered set of quotes that may be paired with each other.
type QuoteGroup struct {
	Key    GroupKey
	Quotes []domain.Quote
}

// Group partitions quotes by (asset, currency), or by asset alone when
// crossCurrency is set. Groups appear in first-seen order and each group keeps
// the input order of its quotes.
func Group(quotes []domain.Quote, crossCurrency bool) []QuoteGroup {
	pos := make(map[GroupKey]int)
	var groups []QuoteGroup
	for _, q := range quotes {
		key := GroupKey{Symbol: q.Symbol}
		if !crossCurrency {
			key.Currency = q.CurrencyCode()
		}
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, QuoteGroup{Key: key})
		}
		groups[i].Quotes = append(groups[i].Quotes, q)
	}
	return groups
}
