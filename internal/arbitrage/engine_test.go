package arbitrage

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, fee, slippage, minProfit float64, rates map[string]float64) *Engine {
	t.Helper()
	if rates == nil {
		rates = map[string]float64{"USDT": 1}
	}
	e, err := NewEngine(EngineConfig{
		TakerFeePercent:   fee,
		SlippagePercent:   slippage,
		MinProfitPercent:  minProfit,
		ReferenceCurrency: "USDT",
		Rates:             rates,
	}, discardLogger())
	require.NoError(t, err)
	return e
}

func quote(symbol, source string, mt domain.MarketType, bid, ask float64, currency string) domain.Quote {
	return domain.Quote{Symbol: symbol, Source: source, MarketType: mt, Bid: bid, Ask: ask, Currency: currency}
}

func TestFind_SameCurrencyProfitable(t *testing.T) {
	e := newTestEngine(t, 0.1, 0.2, 0.5, nil)
	quotes := []domain.Quote{
		quote("BTC", "A", domain.MarketTypeCEX, 100.0, 100.2, "USDT"),
		quote("BTC", "B", domain.MarketTypeCEX, 102.0, 102.2, "USDT"),
	}

	opps := e.Find(quotes, false)

	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, "BTC", opp.Symbol)
	assert.Equal(t, "A", opp.BuySource)
	assert.Equal(t, "B", opp.SellSource)
	assert.Equal(t, 100.2, opp.BuyPrice)
	assert.Equal(t, 102.0, opp.SellPrice)
	assert.Equal(t, "USDT", opp.Currency)
	assert.InDelta(t, 1.7964, opp.GrossPercent, 1e-4)
	assert.InDelta(t, 1.3964, opp.NetPercent, 1e-4)
	assert.InDelta(t, 1.8, opp.SpreadValue, 1e-9)
	assert.Equal(t, domain.MarketTypeCEX, opp.MarketTypeBuy)
	assert.Equal(t, domain.MarketTypeCEX, opp.MarketTypeSell)
}

func TestFind_BelowMinimumProfit(t *testing.T) {
	e := newTestEngine(t, 0.1, 0.5, 1.0, nil)
	quotes := []domain.Quote{
		quote("ETH", "dex:a", domain.MarketTypeDEX, 100.0, 100.1, "USDT"),
		quote("ETH", "cex:b", domain.MarketTypeCEX, 100.2, 100.3, "USDT"),
	}

	assert.Empty(t, e.Find(quotes, false))
}

func TestFind_NetExactlyAtMinimumIsKept(t *testing.T) {
	// gross is exactly 1%, costs 0.5%, floor 0.5%.
	e := newTestEngine(t, 0.25, 0, 0.5, nil)
	quotes := []domain.Quote{
		quote("SOL", "a", domain.MarketTypeCEX, 90, 100, "USDT"),
		quote("SOL", "b", domain.MarketTypeCEX, 101, 120, "USDT"),
	}

	opps := e.Find(quotes, false)
	require.Len(t, opps, 1)
	assert.InDelta(t, 0.5, opps[0].NetPercent, 1e-9)
}

func TestFind_CrossCurrencyDisabledByDefault(t *testing.T) {
	e := newTestEngine(t, 0.1, 0.2, 0.1, map[string]float64{"USDT": 1, "RUB": 0.01})
	quotes := []domain.Quote{
		quote("USDT", "bybit_p2p", domain.MarketTypeP2P, 100.0, 100.5, "RUB"),
		quote("USDT", "mexc", domain.MarketTypeCEX, 1.01, 1.02, "USDT"),
	}

	assert.Empty(t, e.Find(quotes, false))
}

func TestFind_CrossCurrencyNormalizesToReference(t *testing.T) {
	e := newTestEngine(t, 0.1, 0.1, 0.1, map[string]float64{"RUB": 0.01, "USDT": 1})
	quotes := []domain.Quote{
		quote("USDT", "bybit_p2p", domain.MarketTypeP2P, 102.0, 100.0, "RUB"),
		quote("USDT", "mexc", domain.MarketTypeCEX, 1.05, 1.06, "USDT"),
	}

	opps := e.Find(quotes, true)

	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, "USDT", opp.Currency)
	assert.Equal(t, "bybit_p2p", opp.BuySource)
	assert.Equal(t, "mexc", opp.SellSource)
	assert.InDelta(t, 1.0, opp.BuyPrice, 1e-9)
	assert.InDelta(t, 1.05, opp.SellPrice, 1e-9)
	assert.InDelta(t, 5.0, opp.GrossPercent, 1e-6)
	assert.InDelta(t, 4.7, opp.NetPercent, 1e-6)
	assert.Equal(t, domain.MarketTypeP2P, opp.MarketTypeBuy)
	assert.Equal(t, domain.MarketTypeCEX, opp.MarketTypeSell)
}

func TestFind_CrossCurrencyMissingRateDropsPair(t *testing.T) {
	e := newTestEngine(t, 0, 0, 0, nil)
	quotes := []domain.Quote{
		quote("USDT", "p2p", domain.MarketTypeP2P, 102.0, 100.0, "RUB"),
		quote("USDT", "mexc", domain.MarketTypeCEX, 1.05, 1.06, "USDT"),
	}

	opps, stats := e.FindWithStats(quotes, true)

	assert.Empty(t, opps)
	assert.Equal(t, 2, stats.MissingRate)
}

func TestFind_CrossCurrencySameCurrencyKeepsOwnCurrency(t *testing.T) {
	e := newTestEngine(t, 0, 0, 0, map[string]float64{"USDT": 1, "RUB": 0.01})
	quotes := []domain.Quote{
		quote("USDT", "p2p_a", domain.MarketTypeP2P, 99, 100, "RUB"),
		quote("USDT", "p2p_b", domain.MarketTypeP2P, 105, 106, "RUB"),
	}

	opps := e.Find(quotes, true)

	require.Len(t, opps, 1)
	assert.Equal(t, "RUB", opps[0].Currency)
	assert.Equal(t, 100.0, opps[0].BuyPrice)
}

func TestFind_SkipsNonPositivePrices(t *testing.T) {
	e := newTestEngine(t, 0, 0, 0, nil)
	quotes := []domain.Quote{
		// Bids are never positive, so no quote can be a sell leg.
		quote("BTC", "a", domain.MarketTypeCEX, 0, 100, "USDT"),
		quote("BTC", "b", domain.MarketTypeCEX, 0, 50, "USDT"),
		quote("BTC", "c", domain.MarketTypeCEX, -1, -1, "USDT"),
	}

	opps, stats := e.FindWithStats(quotes, false)

	assert.Empty(t, opps)
	assert.Equal(t, 6, stats.PairsEvaluated)
	assert.Equal(t, 6, stats.MissingPrice)
}

func TestFind_NonPositiveLegDropsOnlyThatPair(t *testing.T) {
	e := newTestEngine(t, 0, 0, 0, nil)
	quotes := []domain.Quote{
		quote("BTC", "a", domain.MarketTypeCEX, 100, 0, "USDT"),
		quote("BTC", "b", domain.MarketTypeCEX, 0, 50, "USDT"),
	}

	opps, stats := e.FindWithStats(quotes, false)

	require.Len(t, opps, 1)
	assert.Equal(t, "b", opps[0].BuySource)
	assert.Equal(t, "a", opps[0].SellSource)
	assert.Equal(t, 2, stats.PairsEvaluated)
	assert.Equal(t, 1, stats.MissingPrice)
}

func TestFind_SameSourceNeverPaired(t *testing.T) {
	e := newTestEngine(t, 0, 0, -100, map[string]float64{"USDT": 1, "USD": 1})
	quotes := []domain.Quote{
		quote("BTC", "a", domain.MarketTypeCEX, 200, 100, "USDT"),
		quote("BTC", "a", domain.MarketTypeDEX, 300, 90, "USD"),
		quote("BTC", "b", domain.MarketTypeCEX, 110, 120, "USDT"),
	}

	for _, cross := range []bool{false, true} {
		for _, opp := range e.Find(quotes, cross) {
			assert.NotEqual(t, opp.BuySource, opp.SellSource)
		}
	}
}

func TestFind_NoCrossCurrencyPairsWhenDisabled(t *testing.T) {
	e := newTestEngine(t, 0, 0, -100, map[string]float64{"USDT": 1, "USD": 1})
	quotes := []domain.Quote{
		quote("BTC", "a", domain.MarketTypeCEX, 100, 101, "USDT"),
		quote("BTC", "b", domain.MarketTypeDEX, 150, 151, "USD"),
		quote("BTC", "c", domain.MarketTypeCEX, 102, 103, "usdt"),
	}

	opps := e.Find(quotes, false)

	require.NotEmpty(t, opps)
	for _, opp := range opps {
		assert.NotEqual(t, "b", opp.BuySource)
		assert.NotEqual(t, "b", opp.SellSource)
	}
}

func TestFind_SortedDescendingWithStableTies(t *testing.T) {
	e := newTestEngine(t, 0, 0, 0, nil)
	quotes := []domain.Quote{
		quote("AAA", "x", domain.MarketTypeCEX, 0, 100, "USDT"),
		quote("AAA", "y", domain.MarketTypeCEX, 101, 0, "USDT"),
		quote("BBB", "x", domain.MarketTypeCEX, 0, 100, "USDT"),
		quote("BBB", "y", domain.MarketTypeCEX, 101, 0, "USDT"),
		quote("CCC", "x", domain.MarketTypeCEX, 0, 100, "USDT"),
		quote("CCC", "y", domain.MarketTypeCEX, 105, 0, "USDT"),
	}

	opps := e.Find(quotes, false)

	require.Len(t, opps, 3)
	assert.Equal(t, "CCC", opps[0].Symbol)
	assert.Equal(t, "AAA", opps[1].Symbol)
	assert.Equal(t, "BBB", opps[2].Symbol)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].NetPercent, opps[i].NetPercent)
	}
}

func TestFind_Idempotent(t *testing.T) {
	e := newTestEngine(t, 0.1, 0.1, 0, map[string]float64{"USDT": 1, "USD": 1, "RUB": 0.0105})
	quotes := []domain.Quote{
		quote("BTC", "mexc", domain.MarketTypeCEX, 100, 100.1, "USDT"),
		quote("BTC", "bybit", domain.MarketTypeCEX, 101, 101.2, "USDT"),
		quote("BTC", "dex:uni", domain.MarketTypeDEX, 101, 101.4, "USD"),
		quote("BTC", "bitget", domain.MarketTypeCEX, 101, 101.3, "USDT"),
		quote("BTC", "bybit_p2p", domain.MarketTypeP2P, 9700, 9500, "RUB"),
	}

	first := e.Find(quotes, true)
	second := e.Find(quotes, true)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  EngineConfig
	}{
		{"missing reference", EngineConfig{Rates: map[string]float64{"USDT": 1}}},
		{"missing self rate", EngineConfig{ReferenceCurrency: "USDT", Rates: map[string]float64{"RUB": 0.01}}},
		{"self rate not one", EngineConfig{ReferenceCurrency: "USDT", Rates: map[string]float64{"USDT": 2}}},
		{"negative rate", EngineConfig{ReferenceCurrency: "USDT", Rates: map[string]float64{"USDT": 1, "RUB": -1}}},
		{"negative fee", EngineConfig{ReferenceCurrency: "USDT", Rates: map[string]float64{"USDT": 1}, TakerFeePercent: -0.1}},
		{"negative slippage", EngineConfig{ReferenceCurrency: "USDT", Rates: map[string]float64{"USDT": 1}, SlippagePercent: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg, discardLogger())
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
		})
	}
}

func TestNewEngine_NormalizesCurrencyCase(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		ReferenceCurrency: "usdt",
		Rates:             map[string]float64{"Usdt": 1, "rub": 0.01},
	}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "USDT", e.ReferenceCurrency())

	opps := e.Find([]domain.Quote{
		quote("USDT", "p2p", domain.MarketTypeP2P, 102, 100, "rub"),
		quote("USDT", "mexc", domain.MarketTypeCEX, 1.05, 1.06, "USDT"),
	}, true)
	require.Len(t, opps, 1)
	assert.Equal(t, "USDT", opps[0].Currency)
}
