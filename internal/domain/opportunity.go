package domain

import "time"

// Opportunity is a candidate buy-low/sell-high pair across two venues.
// BuySource never equals SellSource. Prices are in Currency, which is the
// reference currency whenever the two legs settle in different currencies.
type Opportunity struct {
	ID             string     `json:"id,omitempty"`
	Symbol         string     `json:"symbol"`
	BuySource      string     `json:"buy_source"`
	SellSource     string     `json:"sell_source"`
	BuyPrice       float64    `json:"buy_price"`
	SellPrice      float64    `json:"sell_price"`
	GrossPercent   float64    `json:"gross_percent"`
	NetPercent     float64    `json:"net_percent"`
	SpreadValue    float64    `json:"spread_value"`
	Currency       string     `json:"currency"`
	MarketTypeBuy  MarketType `json:"market_type_buy"`
	MarketTypeSell MarketType `json:"market_type_sell"`
	DetectedAt     time.Time  `json:"detected_at,omitempty"`
}

// SpreadPercent recomputes the raw price-difference percentage from the
// recorded prices. It returns 0 when BuyPrice is not positive.
func (o Opportunity) SpreadPercent() float64 {
	if o.BuyPrice <= 0 {
		return 0
	}
	return (o.SellPrice - o.BuyPrice) / o.BuyPrice * 100
}

// SignalStatus is the outcome of gating an opportunity.
type SignalStatus string

const (
	SignalAccepted SignalStatus = "accepted"
	SignalRejected SignalStatus = "rejected"
)

// Signal is the per-opportunity verdict produced by a scan cycle after the
// pre-trade validator and the risk gate ran.
type Signal struct {
	ID          string       `json:"id"`
	Opportunity Opportunity  `json:"opportunity"`
	Status      SignalStatus `json:"status"`
	Reasons     []string     `json:"reasons,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Report is the document persisted after every scan cycle.
type Report struct {
	Timestamp     time.Time     `json:"timestamp"`
	QuotesCount   int           `json:"quotes_count"`
	Opportunities []Opportunity `json:"opportunities"`
}
